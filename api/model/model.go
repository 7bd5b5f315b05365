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

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	svelto "github.com/balazzarini/svelto-app"
	"github.com/balazzarini/svelto-app/model"
)

// CreateIntegration is the request body for registering a provider
// connection. Credentials arrive in plaintext and are encrypted before
// persistence.
type CreateIntegration struct {
	Provider      string `json:"provider"`
	Name          string `json:"name"`
	Credentials   string `json:"credentials"`
	BankAccountID string `json:"bank_account_id"`
}

func (i *CreateIntegration) ValidateCreateIntegration() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.Provider, validation.Required,
			validation.In(model.ProviderMercadoPago, model.ProviderOmie)),
		validation.Field(&i.Name, validation.Required),
		validation.Field(&i.Credentials, validation.Required),
	)
}

func (i *CreateIntegration) ToParams() svelto.CreateIntegrationParams {
	return svelto.CreateIntegrationParams{
		Provider:      i.Provider,
		Name:          i.Name,
		Credentials:   i.Credentials,
		BankAccountID: i.BankAccountID,
	}
}

// RunMatch is the request body for an auto-match pass. With an explicit
// id list only those transactions are considered.
type RunMatch struct {
	IntegrationID  string   `json:"integration_id"`
	TransactionIDs []string `json:"transaction_ids"`
}

// ResolveCandidate is the request body for manually resolving a dispute.
type ResolveCandidate struct {
	ReceivableID string `json:"receivable_id"`
}

func (r *ResolveCandidate) ValidateResolveCandidate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ReceivableID, validation.Required),
	)
}

// BatchTransactions is the request body for batch ignore/restore
// operations.
type BatchTransactions struct {
	TransactionIDs []string `json:"transaction_ids"`
	Reason         string   `json:"reason"`
}

func (b *BatchTransactions) ValidateBatchTransactions() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.TransactionIDs, validation.Required, validation.Length(1, 0)),
	)
}
