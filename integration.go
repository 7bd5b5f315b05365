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

	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/model"
)

// CreateIntegrationParams carries the plaintext credentials of a new
// provider connection. They are encrypted before anything is persisted.
type CreateIntegrationParams struct {
	Provider      string
	Name          string
	Credentials   string
	BankAccountID string
}

// CreateIntegration encrypts the credentials and registers the provider
// connection as active.
func (s *Svelto) CreateIntegration(ctx context.Context, tenantID string, p CreateIntegrationParams) (*model.Integration, error) {
	ctx, span := otel.Tracer("Integration").Start(ctx, "Creating integration")
	defer span.End()

	switch p.Provider {
	case model.ProviderMercadoPago, model.ProviderOmie:
	default:
		return nil, apierror.NewAPIError(apierror.ErrBadRequest,
			"integration provider "+p.Provider+" is not supported", nil)
	}
	if p.Credentials == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "integration credentials are required", nil)
	}
	if p.Provider == model.ProviderOmie {
		// Fail fast on malformed credentials instead of at first sync.
		if _, err := s.newErp(p.Credentials); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), err)
		}
	}

	encrypted, err := s.vault.EncryptString(p.Credentials)
	if err != nil {
		return nil, err
	}

	itg := &model.Integration{
		TenantID:             tenantID,
		Provider:             p.Provider,
		Name:                 p.Name,
		Active:               true,
		EncryptedAccessToken: encrypted,
		Settings: model.IntegrationSettings{
			BankAccountID: p.BankAccountID,
		},
	}
	if err := s.datasource.CreateIntegration(ctx, itg); err != nil {
		return nil, err
	}
	return itg, nil
}

// GetIntegrations lists the tenant's active provider connections.
func (s *Svelto) GetIntegrations(ctx context.Context, tenantID string) ([]*model.Integration, error) {
	return s.datasource.GetActiveIntegrations(ctx, tenantID)
}
