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
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Live candidate lookup windows. The name pass trusts a cleaned first
// name; the value pass only trusts the exact amount and decays fast with
// date distance.
const (
	nameSearchDaysAfter  = 5
	valueSearchDaysAfter = 7
	valueSearchTake      = 20

	namePassScore = 90
)

// GetTransaction returns one transaction for the tenant.
func (s *Svelto) GetTransaction(ctx context.Context, tenantID, transactionID string) (*model.Transaction, error) {
	txn, err := s.datasource.GetTransaction(ctx, tenantID, transactionID)
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "transaction not found", err)
		}
		return nil, err
	}
	return txn, nil
}

// ListTransactions pages over the tenant's transactions.
func (s *Svelto) ListTransactions(ctx context.Context, tenantID, status, integrationID string, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.datasource.ListTransactions(ctx, tenantID, status, integrationID, limit, offset)
}

// GetDashboard aggregates the tenant's conciliation workload.
func (s *Svelto) GetDashboard(ctx context.Context, tenantID string) (*model.Dashboard, error) {
	return s.datasource.GetDashboard(ctx, tenantID)
}

// GetPendingTransactionIDs lists every pending transaction id, oldest
// first, so callers can feed explicit batches back into the matcher.
func (s *Svelto) GetPendingTransactionIDs(ctx context.Context, tenantID, integrationID string) ([]string, error) {
	return s.datasource.GetPendingTransactionIDs(ctx, tenantID, integrationID)
}

// FindCandidates returns the ranking for a transaction. Persisted
// candidates from the last matching run win; otherwise a live lookup
// scans by payer name first and by exact amount second.
func (s *Svelto) FindCandidates(ctx context.Context, tenantID, transactionID string) ([]*model.Candidate, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Finding candidates")
	defer span.End()

	txn, err := s.GetTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return nil, err
	}

	persisted, err := s.datasource.GetCandidates(ctx, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	if len(persisted) > 0 {
		return persisted, nil
	}

	bankFilter, err := s.erpBankFilter(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.liveCandidates(ctx, tenantID, txn, bankFilter)
}

func (s *Svelto) liveCandidates(ctx context.Context, tenantID string, txn *model.Transaction, bankFilter string) ([]*model.Candidate, error) {
	byErpID := make(map[string]*model.Candidate)
	var out []*model.Candidate

	add := func(rcv *model.Receivable, score int, reason string) {
		if _, seen := byErpID[rcv.ErpID]; seen {
			return
		}
		c := &model.Candidate{
			TenantID:      tenantID,
			TransactionID: txn.TransactionID,
			ReceivableID:  rcv.ReceivableID,
			Score:         score,
			Reasons:       []string{reason},
			ErpID:         rcv.ErpID,
			CustomerName:  rcv.CustomerName,
			Amount:        rcv.Amount,
			EmissionDate:  rcv.EmissionDate,
			CreatedAt:     time.Now(),
		}
		byErpID[rcv.ErpID] = c
		out = append(out, c)
	}

	// Name pass: exact amount plus the payer's first name.
	if first := firstNameToken(txn.PayerName); first != "" {
		window, err := s.datasource.SearchReceivables(ctx, tenantID, model.ReceivableQuery{
			BankAccountID: bankFilter,
			Amount:        txn.AmountGross,
			EmissionFrom:  txn.DateEvent.AddDate(0, 0, -windowDaysBefore),
			EmissionTo:    txn.DateEvent.AddDate(0, 0, nameSearchDaysAfter),
			NameLike:      first,
			OnlyOpen:      true,
			Limit:         candidateFetchLimit,
		})
		if err != nil {
			return nil, err
		}
		for _, rcv := range window {
			add(rcv, namePassScore, "payer name and exact amount")
		}
	}

	// Value pass: exact amount only, score decays with date distance.
	window, err := s.datasource.SearchReceivables(ctx, tenantID, model.ReceivableQuery{
		BankAccountID: bankFilter,
		Amount:        txn.AmountGross,
		EmissionFrom:  txn.DateEvent.AddDate(0, 0, -windowDaysBefore),
		EmissionTo:    txn.DateEvent.AddDate(0, 0, valueSearchDaysAfter),
		OnlyOpen:      true,
		Limit:         candidateFetchLimit,
	})
	if err != nil {
		return nil, err
	}
	taken := 0
	for _, rcv := range window {
		if taken >= valueSearchTake {
			break
		}
		days := daysBetween(txn.DateEvent, rcv.EmissionDate)
		score := 70 - days*5
		if score < 10 {
			score = 10
		}
		add(rcv, score, fmt.Sprintf("exact amount, %dd apart", days))
		taken++
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// firstNameToken extracts a usable first name for the name-pass filter.
// Short tokens match too much to be trusted.
func firstNameToken(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	if len(fields) == 0 {
		return ""
	}
	if len(fields[0]) <= 2 {
		return ""
	}
	return fields[0]
}

func daysBetween(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// ResolveCandidate settles a dispute by hand: the operator picked the
// receivable, the transaction moves to MATCHED and the candidate rows are
// dropped.
func (s *Svelto) ResolveCandidate(ctx context.Context, tenantID, transactionID, receivableID string) error {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Resolving dispute")
	defer span.End()

	txn, err := s.GetTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return err
	}
	if err := txn.EnsureCanResolve(); err != nil {
		return apierror.NewAPIError(apierror.ErrPrecondition, err.Error(), err)
	}

	rcv, err := s.datasource.GetReceivable(ctx, tenantID, receivableID)
	if err != nil {
		if isNotFound(err) {
			return apierror.NewAPIError(apierror.ErrNotFound, "receivable not found", err)
		}
		return err
	}
	if !rcv.Open() {
		return apierror.NewAPIError(apierror.ErrPrecondition,
			fmt.Sprintf("receivable %s is %s, only open receivables can be linked", rcv.ErpID, rcv.Status), nil)
	}

	claimed, err := s.datasource.IsReceivableClaimed(ctx, tenantID, rcv.ErpID, transactionID)
	if err != nil {
		return err
	}
	if claimed {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("receivable %s is already linked to another transaction", rcv.ErpID), nil)
	}

	ok, err := s.datasource.CommitMatch(ctx, tenantID, transactionID, rcv.ErpID, rcv.Status,
		"Matched manually by operator", []model.Status{model.StatusAmbiguous, model.StatusPending})
	if err != nil {
		return err
	}
	if !ok {
		return apierror.NewAPIError(apierror.ErrConflict, "transaction changed while resolving, reload and retry", nil)
	}
	return s.datasource.DeleteCandidates(ctx, tenantID, transactionID)
}

// IgnoreTransactions ignores a batch of transactions, returning how many
// rows actually changed. Settled transactions are refused.
func (s *Svelto) IgnoreTransactions(ctx context.Context, tenantID string, transactionIDs []string, reason string) (int, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Ignoring transactions")
	defer span.End()

	if reason == "" {
		reason = "Ignored by operator"
	}

	affected := 0
	for _, id := range transactionIDs {
		txn, err := s.GetTransaction(ctx, tenantID, id)
		if err != nil {
			return affected, err
		}
		if err := txn.EnsureCanIgnore(); err != nil {
			return affected, apierror.NewAPIError(apierror.ErrPrecondition, err.Error(), err)
		}
		if err := s.datasource.UpdateTransactionStatus(ctx, tenantID, id, model.StatusIgnored, reason); err != nil {
			return affected, err
		}
		affected++
	}
	return affected, nil
}

// RestoreTransactions returns ignored transactions to the pending pool.
func (s *Svelto) RestoreTransactions(ctx context.Context, tenantID string, transactionIDs []string) (int, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Restoring transactions")
	defer span.End()

	affected := 0
	for _, id := range transactionIDs {
		txn, err := s.GetTransaction(ctx, tenantID, id)
		if err != nil {
			return affected, err
		}
		if err := txn.EnsureCanRestore(); err != nil {
			return affected, apierror.NewAPIError(apierror.ErrPrecondition, err.Error(), err)
		}
		if err := s.datasource.UpdateTransactionStatus(ctx, tenantID, id, model.StatusPending, ""); err != nil {
			return affected, err
		}
		affected++
	}
	return affected, nil
}

// UnmatchTransaction breaks the receivable link and returns the
// transaction to PENDING. Forbidden after settlement completed.
func (s *Svelto) UnmatchTransaction(ctx context.Context, tenantID, transactionID string) error {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Unmatching transaction")
	defer span.End()

	txn, err := s.GetTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return err
	}
	if err := txn.EnsureCanUnmatch(); err != nil {
		return apierror.NewAPIError(apierror.ErrPrecondition, err.Error(), err)
	}
	return s.datasource.ClearTransactionMatch(ctx, tenantID, transactionID)
}
