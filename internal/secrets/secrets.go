/*
Copyright 2024 Svelto Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package secrets implements envelope encryption for stored integration
// credentials. Each secret is encrypted with a fresh data key (DEK) and
// the DEK is wrapped by the master key, so rotating the master key only
// requires re-wrapping DEKs, not re-encrypting every secret.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	keySize     = 32
	gcmTagSize  = 16
	envelopeVer = "v1"
)

// Envelope is the at-rest shape of an encrypted secret.
type Envelope struct {
	Ciphertext   string `json:"ciphertext"`
	EncryptedDek string `json:"encrypted_dek"`
	IV           string `json:"iv"`
	Tag          string `json:"tag"`
	Version      string `json:"version"`
}

// Vault encrypts and decrypts secrets under a single master key.
type Vault struct {
	masterKey []byte
}

// NewVault builds a vault from a hex-encoded 256-bit master key.
func NewVault(masterKeyHex string) (*Vault, error) {
	key, err := hex.DecodeString(strings.TrimSpace(masterKeyHex))
	if err != nil {
		return nil, errors.Wrap(err, "master key is not valid hex")
	}
	if len(key) != keySize {
		return nil, errors.Errorf("master key must be %d bytes, got %d", keySize, len(key))
	}
	return &Vault{masterKey: key}, nil
}

// Encrypt seals the plaintext under a fresh DEK and wraps the DEK with the
// master key.
func (v *Vault) Encrypt(plaintext string) (*Envelope, error) {
	dek := make([]byte, keySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, errors.Wrap(err, "failed to generate data key")
	}

	iv, sealed, err := seal(dek, []byte(plaintext))
	if err != nil {
		return nil, err
	}
	ciphertext, tag := splitTag(sealed)

	wrapped, err := wrapKey(v.masterKey, dek)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Ciphertext:   hex.EncodeToString(ciphertext),
		EncryptedDek: wrapped,
		IV:           hex.EncodeToString(iv),
		Tag:          hex.EncodeToString(tag),
		Version:      envelopeVer,
	}, nil
}

// Decrypt unwraps the DEK and opens the ciphertext.
func (v *Vault) Decrypt(env *Envelope) (string, error) {
	if env.Version != envelopeVer {
		return "", errors.Errorf("unsupported envelope version %q", env.Version)
	}

	dek, err := unwrapKey(v.masterKey, env.EncryptedDek)
	if err != nil {
		return "", err
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", errors.Wrap(err, "bad envelope iv")
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "bad envelope ciphertext")
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil {
		return "", errors.Wrap(err, "bad envelope tag")
	}

	plaintext, err := open(dek, iv, append(ciphertext, tag...))
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt secret")
	}
	return string(plaintext), nil
}

// EncryptString seals the plaintext and returns the envelope as a JSON
// string for storage in a text column.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	env, err := v.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecryptString parses a stored JSON envelope and opens it.
func (v *Vault) DecryptString(stored string) (string, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		return "", errors.Wrap(err, "stored secret is not a valid envelope")
	}
	return v.Decrypt(&env)
}

// wrapKey seals the DEK with the master key, packed as iv:tag:ciphertext
// in hex.
func wrapKey(masterKey, dek []byte) (string, error) {
	iv, sealed, err := seal(masterKey, dek)
	if err != nil {
		return "", err
	}
	ciphertext, tag := splitTag(sealed)
	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext)), nil
}

func unwrapKey(masterKey []byte, packed string) ([]byte, error) {
	parts := strings.Split(packed, ":")
	if len(parts) != 3 {
		return nil, errors.New("wrapped key is malformed")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(err, "bad wrapped key iv")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Wrap(err, "bad wrapped key tag")
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(err, "bad wrapped key ciphertext")
	}
	dek, err := open(masterKey, iv, append(ciphertext, tag...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to unwrap data key")
	}
	return dek, nil
}

func seal(key, plaintext []byte) (iv []byte, sealed []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, err
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

func open(key, iv, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, sealed, nil)
}

func splitTag(sealed []byte) (ciphertext, tag []byte) {
	n := len(sealed) - gcmTagSize
	return sealed[:n], sealed[n:]
}
