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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/internal/notification"
	"github.com/balazzarini/svelto-app/model"
)

// initialSyncDays bounds the first pull for an integration with no
// checkpoint yet.
const initialSyncDays = 30

// SyncResult reports one integration's sync pass.
type SyncResult struct {
	IntegrationID string `json:"integration_id"`
	Provider      string `json:"provider"`
	Transactions  int    `json:"transactions"`
	Receivables   int    `json:"receivables"`
	Customers     int    `json:"customers"`
	Error         string `json:"error,omitempty"`
}

// SyncAllIntegrations runs a sync pass over every active integration for
// the tenant. One integration failing does not stop the others; the
// failure is reported in its result and notified.
func (s *Svelto) SyncAllIntegrations(ctx context.Context, tenantID string) ([]*SyncResult, error) {
	ctx, span := otel.Tracer("Sync").Start(ctx, "Syncing all integrations")
	defer span.End()

	itgs, err := s.datasource.GetActiveIntegrations(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]*SyncResult, 0, len(itgs))
	for _, itg := range itgs {
		res, err := s.SyncIntegration(ctx, tenantID, itg.IntegrationID)
		if err != nil {
			logrus.WithError(err).Errorf("sync failed for integration %s (%s)", itg.IntegrationID, itg.Provider)
			notification.NotifyError(errors.Wrapf(err, "sync failed for integration %s", itg.IntegrationID))
			res = &SyncResult{IntegrationID: itg.IntegrationID, Provider: itg.Provider, Error: err.Error()}
		}
		results = append(results, res)
	}
	return results, nil
}

// SyncIntegration dispatches one integration's sync by provider.
func (s *Svelto) SyncIntegration(ctx context.Context, tenantID, integrationID string) (*SyncResult, error) {
	ctx, span := otel.Tracer("Sync").Start(ctx, "Syncing integration")
	defer span.End()

	itg, err := s.datasource.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "integration not found", err)
		}
		return nil, err
	}

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{IntegrationID: itg.IntegrationID, Provider: itg.Provider}
	switch itg.Provider {
	case model.ProviderMercadoPago:
		result.Transactions, err = s.syncGatewayTransactions(ctx, tenantID, itg, conf.Sync)
	case model.ProviderOmie:
		result.Receivables, result.Customers, err = s.syncErp(ctx, tenantID, itg, conf.Sync)
	default:
		err = apierror.NewAPIError(apierror.ErrBadRequest,
			"integration provider "+itg.Provider+" is not supported", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// syncWindow derives the pull window for one sync domain: from the
// checkpoint minus the overlap, or the initial window when the domain
// never synced.
func syncWindow(settings model.IntegrationSettings, domain string, overlap time.Duration, now time.Time) (time.Time, bool) {
	checkpoint := settings.CheckpointFor(domain)
	if checkpoint == nil {
		return now.AddDate(0, 0, -initialSyncDays), false
	}
	return checkpoint.Add(-overlap), true
}

// syncGatewayTransactions pulls the payment window from the gateway and
// merges it into the local mirror. Existing rows keep their conciliation
// state: only the gateway-owned fields are refreshed, through the
// lifecycle rules so disputes and reversals land even on matched rows.
func (s *Svelto) syncGatewayTransactions(ctx context.Context, tenantID string, itg *model.Integration, sc config.SyncConfig) (int, error) {
	ctx, span := otel.Tracer("Sync").Start(ctx, "Syncing gateway transactions")
	defer span.End()

	gateway, err := s.gatewayFor(itg)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	overlap := time.Duration(sc.OverlapMinutes) * time.Minute
	from, incremental := syncWindow(itg.Settings, "transactions", overlap, now)

	incoming, err := gateway.SearchPayments(ctx, from, now, incremental)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUpstream, "gateway payment search failed", err)
	}

	merged := make([]*model.Transaction, 0, len(incoming))
	for _, txn := range incoming {
		txn.TenantID = tenantID
		txn.IntegrationID = itg.IntegrationID

		update := model.GatewayUpdate{
			GatewayStatus:      txn.GatewayStatus,
			StatusDetail:       txn.GatewayDetail,
			MoneyReleaseStatus: txn.MoneyReleaseStatus,
			MoneyReleaseDate:   txn.MoneyReleaseDate,
		}

		existing, err := s.datasource.GetTransactionByGatewayID(ctx, tenantID, itg.IntegrationID, txn.GatewayID)
		if err != nil {
			if !isNotFound(err) {
				return 0, err
			}
			txn.ApplyGatewayUpdate(update, now)
			merged = append(merged, txn)
			continue
		}

		existing.AmountGross = txn.AmountGross
		existing.AmountNet = txn.AmountNet
		existing.AmountPaidByCustomer = txn.AmountPaidByCustomer
		existing.FeeMdr = txn.FeeMdr
		existing.FeeFinancing = txn.FeeFinancing
		existing.FeeShipping = txn.FeeShipping
		existing.FeeTaxes = txn.FeeTaxes
		existing.FeeCoupon = txn.FeeCoupon
		existing.FeeTotal = txn.FeeTotal
		existing.ApplyGatewayUpdate(update, now)
		merged = append(merged, existing)
	}

	if len(merged) > 0 {
		if err := s.datasource.UpsertTransactions(ctx, tenantID, merged); err != nil {
			return 0, err
		}
	}

	itg.Settings.SetCheckpoint("transactions", now)
	if err := s.datasource.UpdateIntegrationSettings(ctx, tenantID, itg.IntegrationID, itg.Settings); err != nil {
		return 0, err
	}
	return len(merged), nil
}

// syncErp pulls the receivable window and the customer registry, then
// backfills customer names on receivables that arrived without one.
func (s *Svelto) syncErp(ctx context.Context, tenantID string, itg *model.Integration, sc config.SyncConfig) (int, int, error) {
	ctx, span := otel.Tracer("Sync").Start(ctx, "Syncing erp receivables")
	defer span.End()

	erp, err := s.erpFor(itg)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	overlap := time.Duration(sc.OverlapMinutes) * time.Minute
	from, _ := syncWindow(itg.Settings, "receivables", overlap, now)

	rcvs, err := erp.ListReceivables(ctx, from, now)
	if err != nil {
		return 0, 0, apierror.NewAPIError(apierror.ErrUpstream, "erp receivable listing failed", err)
	}
	for _, rcv := range rcvs {
		rcv.TenantID = tenantID
		rcv.IntegrationID = itg.IntegrationID
	}
	if len(rcvs) > 0 {
		if err := s.datasource.UpsertReceivables(ctx, tenantID, rcvs); err != nil {
			return 0, 0, err
		}
	}
	itg.Settings.SetCheckpoint("receivables", now)

	customers, err := s.syncCustomers(ctx, tenantID, itg, erp, now)
	if err != nil {
		// Receivables already landed, so the customer registry failing
		// only costs name enrichment. Persist the receivable checkpoint
		// and surface the error.
		if uerr := s.datasource.UpdateIntegrationSettings(ctx, tenantID, itg.IntegrationID, itg.Settings); uerr != nil {
			logrus.WithError(uerr).Errorf("could not persist sync checkpoint for integration %s", itg.IntegrationID)
		}
		return len(rcvs), 0, err
	}

	if err := s.datasource.UpdateIntegrationSettings(ctx, tenantID, itg.IntegrationID, itg.Settings); err != nil {
		return len(rcvs), customers, err
	}
	return len(rcvs), customers, nil
}

func (s *Svelto) syncCustomers(ctx context.Context, tenantID string, itg *model.Integration, erp ErpClient, now time.Time) (int, error) {
	customers, err := erp.ListCustomers(ctx)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUpstream, "erp customer listing failed", err)
	}
	for _, c := range customers {
		c.TenantID = tenantID
		c.IntegrationID = itg.IntegrationID
	}
	if len(customers) > 0 {
		if err := s.datasource.UpsertErpCustomers(ctx, tenantID, customers); err != nil {
			return 0, err
		}
		enriched, err := s.datasource.EnrichReceivableCustomers(ctx, tenantID, itg.IntegrationID)
		if err != nil {
			return 0, err
		}
		if enriched > 0 {
			logrus.Infof("backfilled customer names on %d receivables for integration %s", enriched, itg.IntegrationID)
		}
	}
	itg.Settings.SetCheckpoint("customers", now)
	return len(customers), nil
}
