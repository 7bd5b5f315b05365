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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/model"
	"github.com/balazzarini/svelto-app/provider/omie"
)

const (
	feeCategoryCode = "2.01.93"
	feeKeyPrefix    = "TAX-"
)

// SettlementResult reports what the reconciler actually booked.
type SettlementResult struct {
	TransactionID  string          `json:"transaction_id"`
	ErpID          string          `json:"erp_id"`
	SettledAmount  decimal.Decimal `json:"settled_amount"`
	FeePosted      decimal.Decimal `json:"fee_posted"`
	AlreadySettled bool            `json:"already_settled"`
}

// SettleTransaction books a matched transaction in the ERP: the receivable
// is settled at its own face value, the gateway fee is posted as a bank
// ledger debit with no customer linkage, and both local rows move to their
// settled terminal states. Retries after a partial failure are safe: the
// ERP rejecting an already-settled title is reclassified as success.
func (s *Svelto) SettleTransaction(ctx context.Context, tenantID, transactionID string) (*SettlementResult, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Settling transaction")
	defer span.End()

	txn, err := s.GetTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	if err := txn.EnsureCanSettle(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrPrecondition, err.Error(), err)
	}

	rcv, err := s.datasource.GetReceivableByErpID(ctx, tenantID, "", txn.ErpID)
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NewAPIError(apierror.ErrPrecondition,
				fmt.Sprintf("linked receivable %s no longer exists", txn.ErpID), err)
		}
		return nil, err
	}
	if !rcv.Open() {
		return nil, apierror.NewAPIError(apierror.ErrPrecondition,
			fmt.Sprintf("receivable %s is %s, nothing left to settle", rcv.ErpID, rcv.Status), nil)
	}

	// Amount guard: the gateway reporting more than the title by over a
	// cent means the match is wrong, not that the ERP should absorb the
	// difference. A title at or above gross settles at gross.
	diff := txn.AmountGross.Sub(rcv.Amount)
	if diff.GreaterThan(model.AmountTolerance) {
		return nil, apierror.NewAPIError(apierror.ErrPrecondition,
			fmt.Sprintf("amount divergence of %s between transaction and receivable %s exceeds tolerance",
				diff.StringFixed(2), rcv.ErpID), nil)
	}

	erpItg, err := s.erpIntegration(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if erpItg.Settings.BankAccountID == "" {
		return nil, apierror.NewAPIError(apierror.ErrPrecondition,
			"integration has no bank account configured for settlement", nil)
	}
	erp, err := s.erpFor(erpItg)
	if err != nil {
		return nil, err
	}

	settleDate := time.Now().UTC()
	if txn.MoneyReleaseDate != nil {
		settleDate = *txn.MoneyReleaseDate
	}
	settleAmount := txn.AmountGross
	if diff.GreaterThan(decimal.Zero) {
		// Up to one cent short in the ERP: settle at the title's own
		// face value, never invent the difference.
		settleAmount = rcv.Amount
	}

	result := &SettlementResult{
		TransactionID: txn.TransactionID,
		ErpID:         rcv.ErpID,
		SettledAmount: settleAmount,
	}

	err = erp.ReceivePayment(ctx, omie.ReceivePaymentParams{
		ErpID:         rcv.ErpID,
		BankAccountID: erpItg.Settings.BankAccountID,
		Amount:        settleAmount,
		Date:          settleDate,
		Note:          fmt.Sprintf("Conciliado automaticamente. Gateway ref %s", txn.GatewayID),
		Reconcile:     true,
	})
	if err != nil {
		if !omie.IsAlreadySettled(err) {
			return nil, apierror.NewAPIError(apierror.ErrUpstream, "erp rejected the settlement", err)
		}
		// A prior attempt already booked the payment. Finish the local
		// bookkeeping instead of failing forever.
		logrus.Infof("receivable %s already settled in erp, reclassifying transaction %s as settled",
			rcv.ErpID, txn.TransactionID)
		result.AlreadySettled = true
	}

	fee := settleAmount.Sub(txn.AmountNet)
	if fee.GreaterThan(decimal.Zero) && !result.AlreadySettled {
		feeEntry := omie.LedgerEntryParams{
			IdempotencyKey: feeKeyPrefix + txn.GatewayID,
			BankAccountID:  erpItg.Settings.BankAccountID,
			Date:           settleDate,
			Amount:         fee,
			CategoryCode:   feeCategoryCode,
			Debit:          true,
			Note:           fmt.Sprintf("Taxa gateway ref %s", txn.GatewayID),
			DocNumber:      rcv.ExternalRef,
		}
		if err := erp.PostLedgerEntry(ctx, feeEntry); err != nil {
			if !omie.IsAlreadySettled(err) {
				return nil, apierror.NewAPIError(apierror.ErrUpstream, "erp rejected the fee entry", err)
			}
			logrus.Infof("fee entry %s already posted, skipping", feeEntry.IdempotencyKey)
		} else {
			result.FeePosted = fee
		}
		// Re-submitting forces the entry's reconciliation flag. Funds
		// already moved, so a failure here is only logged.
		if err := erp.AmendLedgerEntry(ctx, feeEntry); err != nil {
			logrus.WithError(err).Warnf("could not amend fee entry %s", feeEntry.IdempotencyKey)
		}
	}

	description := fmt.Sprintf("Settled %s in ERP", settleAmount.StringFixed(2))
	if result.AlreadySettled {
		description = "Settled in ERP by a prior attempt"
	}
	if err := s.datasource.MarkTransactionSettled(ctx, tenantID, txn.TransactionID, model.ReceivablePaidOut, description); err != nil {
		return nil, err
	}
	if err := s.datasource.MarkReceivableSettled(ctx, tenantID, rcv.ReceivableID, settleDate); err != nil {
		return nil, err
	}
	return result, nil
}

// erpIntegration finds the tenant's active ERP integration.
func (s *Svelto) erpIntegration(ctx context.Context, tenantID string) (*model.Integration, error) {
	itgs, err := s.datasource.GetActiveIntegrations(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, itg := range itgs {
		if itg.Provider == model.ProviderOmie {
			return itg, nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrPrecondition, "no active erp integration for tenant", nil)
}

// erpBankFilter returns the ERP integration's configured bank account for
// scoping receivable lookups. Empty when the tenant has no ERP
// integration or no account configured, which leaves lookups unscoped.
func (s *Svelto) erpBankFilter(ctx context.Context, tenantID string) (string, error) {
	itgs, err := s.datasource.GetActiveIntegrations(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, itg := range itgs {
		if itg.Provider == model.ProviderOmie {
			return itg.Settings.BankAccountID, nil
		}
	}
	return "", nil
}
