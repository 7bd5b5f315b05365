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

package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestVaultRoundTrip(t *testing.T) {
	vault, err := NewVault(testMasterKey)
	require.NoError(t, err)

	env, err := vault.Encrypt("APP-1234-ACCESS-TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "v1", env.Version)
	assert.NotEmpty(t, env.Ciphertext)
	assert.NotEmpty(t, env.IV)
	assert.NotEmpty(t, env.Tag)
	assert.Len(t, strings.Split(env.EncryptedDek, ":"), 3)

	plaintext, err := vault.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, "APP-1234-ACCESS-TOKEN", plaintext)
}

func TestVaultFreshDekPerSecret(t *testing.T) {
	vault, err := NewVault(testMasterKey)
	require.NoError(t, err)

	a, err := vault.Encrypt("same-secret")
	require.NoError(t, err)
	b, err := vault.Encrypt("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.EncryptedDek, b.EncryptedDek)
}

func TestVaultRejectsTamperedCiphertext(t *testing.T) {
	vault, err := NewVault(testMasterKey)
	require.NoError(t, err)

	env, err := vault.Encrypt("secret")
	require.NoError(t, err)

	env.Ciphertext = strings.Repeat("0", len(env.Ciphertext))
	_, err = vault.Decrypt(env)
	assert.Error(t, err)
}

func TestVaultRejectsBadMasterKey(t *testing.T) {
	_, err := NewVault("not-hex")
	assert.Error(t, err)

	_, err = NewVault("abcd")
	assert.Error(t, err)
}

func TestVaultStringStorageRoundTrip(t *testing.T) {
	vault, err := NewVault(testMasterKey)
	require.NoError(t, err)

	stored, err := vault.EncryptString("omie-app-secret")
	require.NoError(t, err)
	assert.Contains(t, stored, `"version":"v1"`)

	plaintext, err := vault.DecryptString(stored)
	require.NoError(t, err)
	assert.Equal(t, "omie-app-secret", plaintext)
}

func TestVaultRejectsUnknownVersion(t *testing.T) {
	vault, err := NewVault(testMasterKey)
	require.NoError(t, err)

	env, err := vault.Encrypt("secret")
	require.NoError(t, err)
	env.Version = "v9"

	_, err = vault.Decrypt(env)
	assert.Error(t, err)
}
