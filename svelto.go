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

package svelto

import (
	"context"
	"time"

	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/database"
	"github.com/balazzarini/svelto-app/internal/secrets"
	"github.com/balazzarini/svelto-app/model"
	"github.com/balazzarini/svelto-app/provider/mercadopago"
	"github.com/balazzarini/svelto-app/provider/omie"
)

// GatewayClient is the slice of the payment gateway the service consumes.
type GatewayClient interface {
	SearchPayments(ctx context.Context, from, to time.Time, useLastUpdated bool) ([]*model.Transaction, error)
}

// ErpClient is the slice of the ERP the service consumes.
type ErpClient interface {
	ListReceivables(ctx context.Context, from, to time.Time) ([]*model.Receivable, error)
	ListCustomers(ctx context.Context) ([]*model.ErpCustomer, error)
	ReceivePayment(ctx context.Context, p omie.ReceivePaymentParams) error
	PostLedgerEntry(ctx context.Context, p omie.LedgerEntryParams) error
	AmendLedgerEntry(ctx context.Context, p omie.LedgerEntryParams) error
}

// Svelto is the conciliation service. Provider clients are built per call
// from the integration's decrypted credentials.
type Svelto struct {
	datasource database.IDataSource
	vault      *secrets.Vault

	newGateway func(accessToken string) GatewayClient
	newErp     func(credentials string) (ErpClient, error)
}

// NewSvelto initializes the service with the provided datasource, using
// the configured master key for the credential vault and the real
// provider clients.
func NewSvelto(db database.IDataSource) (*Svelto, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	vault, err := secrets.NewVault(configuration.Vault.MasterKey)
	if err != nil {
		return nil, err
	}
	return &Svelto{
		datasource: db,
		vault:      vault,
		newGateway: func(accessToken string) GatewayClient {
			return mercadopago.NewClient(accessToken)
		},
		newErp: func(credentials string) (ErpClient, error) {
			return omie.NewClient(credentials)
		},
	}, nil
}

// gatewayFor decrypts the integration's token and builds a gateway client.
func (s *Svelto) gatewayFor(itg *model.Integration) (GatewayClient, error) {
	token, err := s.vault.DecryptString(itg.EncryptedAccessToken)
	if err != nil {
		return nil, err
	}
	return s.newGateway(token), nil
}

// erpFor decrypts the integration's credentials and builds an ERP client.
func (s *Svelto) erpFor(itg *model.Integration) (ErpClient, error) {
	credentials, err := s.vault.DecryptString(itg.EncryptedAccessToken)
	if err != nil {
		return nil, err
	}
	return s.newErp(credentials)
}
