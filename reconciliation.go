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
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/model"
)

// Candidate search window. The amount window is intentionally looser than
// the scoring tolerance: it only filters what gets scored, the score
// decides the match.
var windowTolerance = decimal.NewFromFloat(0.02)

const (
	windowDaysBefore = 1
	windowDaysAfter  = 6

	// candidateFetchLimit bounds scoring cost per transaction.
	candidateFetchLimit = 50
)

// MatchRunResult aggregates one auto-match pass.
type MatchRunResult struct {
	Processed int `json:"processed"`
	Matches   int `json:"matches"`
	Disputes  int `json:"disputes"`
	Ignored   int `json:"ignored"`
	Errors    int `json:"errors"`
}

// RunAutoMatch runs the orchestrator over a batch of pending transactions,
// either an explicit id list or the oldest pending up to the configured
// cap. Safe to re-run: transactions that already moved on are skipped by
// the status recheck.
func (s *Svelto) RunAutoMatch(ctx context.Context, tenantID, integrationID string, ids []string) (*MatchRunResult, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Running auto match")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	// An explicit integration scope must exist. A missing integration is
	// structural, the whole pass aborts instead of matching nothing.
	if integrationID != "" {
		if _, err := s.datasource.GetIntegration(ctx, tenantID, integrationID); err != nil {
			if isNotFound(err) {
				return nil, apierror.NewAPIError(apierror.ErrNotFound, "integration not found", err)
			}
			return nil, err
		}
	}

	batch, err := s.datasource.GetPendingTransactions(ctx, tenantID, integrationID, ids, conf.Matching.BatchCap)
	if err != nil {
		return nil, err
	}

	result := &MatchRunResult{}
	if len(batch) == 0 {
		return result, nil
	}

	bankFilter, err := s.erpBankFilter(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, txn := range batch {
		result.Processed++
		if err := s.matchOne(ctx, tenantID, txn, conf.Matching, bankFilter, result); err != nil {
			logrus.WithError(err).Errorf("auto match failed for transaction %s", txn.TransactionID)
			result.Errors++
		}
	}
	return result, nil
}

func (s *Svelto) matchOne(ctx context.Context, tenantID string, txn *model.Transaction, matching config.MatchingConfig, bankFilter string, result *MatchRunResult) error {
	// Re-read right before acting. The batch snapshot may be stale if a
	// concurrent run or a manual action already moved this row.
	current, err := s.datasource.GetTransaction(ctx, tenantID, txn.TransactionID)
	if err != nil {
		return err
	}
	if current.Status != model.StatusPending {
		return nil
	}

	// Cleanup rule: cancelled or rejected payments never match anything.
	if current.GatewayStatus == "cancelled" || current.GatewayStatus == "rejected" {
		ok, err := s.datasource.IgnoreTransactionIf(ctx, tenantID, current.TransactionID,
			fmt.Sprintf("Auto-ignored: gateway status is %s", current.GatewayStatus), model.StatusPending)
		if err != nil {
			return err
		}
		if ok {
			result.Ignored++
		}
		return nil
	}

	matched, err := s.tryHardMatch(ctx, tenantID, current, bankFilter)
	if err != nil {
		return err
	}
	if matched {
		result.Matches++
		return nil
	}

	return s.trySmartMatch(ctx, tenantID, current, matching, bankFilter, result)
}

// tryHardMatch links by the exact reference the gateway and the ERP
// share. A claimed receivable logs a conflict and falls through to
// scoring instead of dropping the clue silently.
func (s *Svelto) tryHardMatch(ctx context.Context, tenantID string, txn *model.Transaction, bankFilter string) (bool, error) {
	if txn.GatewayID == "" {
		return false, nil
	}

	rcv, err := s.datasource.FindReceivableByNsu(ctx, tenantID, "", bankFilter, txn.GatewayID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	claimed, err := s.datasource.IsReceivableClaimed(ctx, tenantID, rcv.ErpID, txn.TransactionID)
	if err != nil {
		return false, err
	}
	if claimed {
		logrus.Warnf("hard match conflict: receivable %s already claimed, transaction %s falls through to scoring",
			rcv.ErpID, txn.TransactionID)
		return false, nil
	}

	return s.datasource.CommitMatch(ctx, tenantID, txn.TransactionID, rcv.ErpID, rcv.Status,
		"Hard match by gateway reference", []model.Status{model.StatusPending})
}

func (s *Svelto) trySmartMatch(ctx context.Context, tenantID string, txn *model.Transaction, matching config.MatchingConfig, bankFilter string, result *MatchRunResult) error {
	scored, err := s.scoreWindow(ctx, tenantID, txn, bankFilter)
	if err != nil {
		return err
	}
	if len(scored) == 0 {
		// Nothing above the floor: the transaction stays PENDING
		// untouched, no candidate rows.
		return nil
	}

	best := scored[0]
	aboveThreshold := 0
	for _, c := range scored {
		if c.Score >= matching.AcceptThreshold {
			aboveThreshold++
		}
	}

	if best.Score >= matching.AcceptThreshold && (aboveThreshold == 1 || matching.AllowMultipleAboveThreshold) {
		ok, err := s.datasource.CommitMatch(ctx, tenantID, txn.TransactionID, best.ErpID, best.receivableStatus,
			fmt.Sprintf("Smart match, score %d%%", best.Score), []model.Status{model.StatusPending})
		if err != nil {
			return err
		}
		if ok {
			result.Matches++
		}
		return nil
	}

	candidates := make([]*model.Candidate, len(scored))
	for i, c := range scored {
		candidates[i] = c.Candidate
	}
	if err := s.datasource.ReplaceCandidates(ctx, tenantID, txn.TransactionID, candidates); err != nil {
		return err
	}
	ok, err := s.datasource.MarkAmbiguous(ctx, tenantID, txn.TransactionID,
		fmt.Sprintf("%d candidates. Top score: %d%%", len(scored), best.Score), model.StatusPending)
	if err != nil {
		return err
	}
	if ok {
		result.Disputes++
	}
	return nil
}

type scoredCandidate struct {
	*model.Candidate
	receivableStatus string
}

// scoreWindow fetches the raw window and ranks everything above the
// floor, best first.
func (s *Svelto) scoreWindow(ctx context.Context, tenantID string, txn *model.Transaction, bankFilter string) ([]*scoredCandidate, error) {
	q := model.ReceivableQuery{
		BankAccountID: bankFilter,
		Amount:        txn.AmountGross,
		Tolerance:     windowTolerance,
		EmissionFrom:  txn.DateEvent.AddDate(0, 0, -windowDaysBefore),
		EmissionTo:    txn.DateEvent.AddDate(0, 0, windowDaysAfter),
		Limit:         candidateFetchLimit,
	}
	window, err := s.datasource.SearchReceivables(ctx, tenantID, q)
	if err != nil {
		return nil, err
	}

	var scored []*scoredCandidate
	for _, rcv := range window {
		ms := model.ScoreCandidate(txn, rcv)
		if !ms.Accepted() {
			continue
		}
		scored = append(scored, &scoredCandidate{
			Candidate: &model.Candidate{
				TenantID:      tenantID,
				TransactionID: txn.TransactionID,
				ReceivableID:  rcv.ReceivableID,
				Score:         ms.Score,
				Reasons:       ms.Reasons,
				ErpID:         rcv.ErpID,
				CustomerName:  rcv.CustomerName,
				Amount:        rcv.Amount,
				EmissionDate:  rcv.EmissionDate,
				CreatedAt:     time.Now(),
			},
			receivableStatus: rcv.Status,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}
