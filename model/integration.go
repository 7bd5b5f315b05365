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
package model

import "time"

// Integration providers supported by the sync layer.
const (
	ProviderMercadoPago = "mercadopago"
	ProviderOmie        = "omie"
)

// Integration is a tenant's connection to an external provider. Credentials
// are stored as envelope-encrypted blobs and only decrypted at call time.
type Integration struct {
	IntegrationID string `json:"integration_id"`
	TenantID      string `json:"tenant_id"`
	Provider      string `json:"provider"`
	Name          string `json:"name"`
	Active        bool   `json:"active"`

	// Envelope-encrypted credential payloads, opaque at rest.
	EncryptedAccessToken string `json:"-"`
	EncryptedAppSecret   string `json:"-"`

	Settings  IntegrationSettings `json:"settings"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// IntegrationSettings is the typed settings record for an integration.
// Each sync domain keeps its own checkpoint so a failure in one domain
// does not stall the others.
type IntegrationSettings struct {
	BankAccountID        string     `json:"bank_account_id,omitempty"`
	LastTransactionsSync *time.Time `json:"last_transactions_sync,omitempty"`
	LastReceivablesSync  *time.Time `json:"last_receivables_sync,omitempty"`
	LastCustomersSync    *time.Time `json:"last_customers_sync,omitempty"`
}

// CheckpointFor returns the checkpoint for the named sync domain.
func (s IntegrationSettings) CheckpointFor(domain string) *time.Time {
	switch domain {
	case "transactions":
		return s.LastTransactionsSync
	case "receivables":
		return s.LastReceivablesSync
	case "customers":
		return s.LastCustomersSync
	}
	return nil
}

// SetCheckpoint records the checkpoint for the named sync domain.
func (s *IntegrationSettings) SetCheckpoint(domain string, at time.Time) {
	switch domain {
	case "transactions":
		s.LastTransactionsSync = &at
	case "receivables":
		s.LastReceivablesSync = &at
	case "customers":
		s.LastCustomersSync = &at
	}
}
