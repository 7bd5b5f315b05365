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
	"time"

	"github.com/pkg/errors"
)

// GatewayUpdate carries the fields of a gateway re-sync that can force a
// lifecycle transition regardless of the current match state.
type GatewayUpdate struct {
	GatewayStatus      string
	StatusDetail       string
	MoneyReleaseStatus string
	MoneyReleaseDate   *time.Time
}

// ApplyGatewayUpdate folds a re-synced gateway state into the transaction.
// It derives the financial status, applies the dispute table and preserves
// the original release date when a reversal event repurposes that field.
func (t *Transaction) ApplyGatewayUpdate(u GatewayUpdate, now time.Time) {
	t.GatewayStatus = u.GatewayStatus
	t.GatewayDetail = u.StatusDetail
	if u.MoneyReleaseStatus != "" {
		t.MoneyReleaseStatus = u.MoneyReleaseStatus
	}

	t.applyReleaseDate(u)
	t.FinancialStatus = t.deriveFinancialStatus(now)

	switch {
	case u.StatusDetail == "in_process" || u.GatewayStatus == "in_mediation":
		t.Status = StatusAmbiguous
		t.FinancialStatus = FinancialBlocked
		t.MatchDescription = "Dispute opened at the gateway. Funds are blocked pending mediation."
	case u.StatusDetail == "settled" || u.GatewayStatus == "charged_back":
		t.Status = StatusChargeback
		t.FinancialStatus = FinancialReversed
		t.MatchDescription = "Chargeback confirmed. Funds were returned to the payer."
	case u.StatusDetail == "refunded" || u.GatewayStatus == "refunded":
		t.Status = StatusRefunded
		t.FinancialStatus = FinancialReversed
		t.MatchDescription = "Payment refunded to the customer."
	}
}

// applyReleaseDate stores the incoming release date, except when a reversal
// event reuses the field. Once funds landed the original date is kept and
// the new value is recorded as the void date instead.
func (t *Transaction) applyReleaseDate(u GatewayUpdate) {
	if u.MoneyReleaseDate == nil {
		return
	}
	if t.MoneyReleaseDate != nil && !t.MoneyReleaseDate.Equal(*u.MoneyReleaseDate) && isReversalEvent(u) {
		void := *u.MoneyReleaseDate
		t.MoneyVoidDate = &void
		return
	}
	rel := *u.MoneyReleaseDate
	t.MoneyReleaseDate = &rel
}

func isReversalEvent(u GatewayUpdate) bool {
	switch u.GatewayStatus {
	case "charged_back", "refunded", "in_mediation":
		return true
	}
	return u.StatusDetail == "refunded"
}

func (t *Transaction) deriveFinancialStatus(now time.Time) FinancialStatus {
	if t.MoneyReleaseStatus == "released" {
		return FinancialSettled
	}
	if t.MoneyReleaseDate != nil && t.MoneyReleaseDate.Before(now) {
		return FinancialSettled
	}
	return FinancialOpen
}

// Manual transition guards. Each returns a validation error describing why
// the transition is refused, so handlers can surface the exact reason.

// EnsureCanIgnore refuses ignoring a transaction whose settlement already
// moved money.
func (t *Transaction) EnsureCanIgnore() error {
	if t.SettlementProtected() {
		return errors.Errorf("transaction %s is %s and cannot be ignored", t.GatewayID, t.Status)
	}
	if t.Status == StatusIgnored {
		return errors.Errorf("transaction %s is already ignored", t.GatewayID)
	}
	return nil
}

// EnsureCanRestore only allows IGNORED transactions back to PENDING.
func (t *Transaction) EnsureCanRestore() error {
	if t.Status != StatusIgnored {
		return errors.Errorf("transaction %s is %s, only ignored transactions can be restored", t.GatewayID, t.Status)
	}
	return nil
}

// EnsureCanUnmatch forbids breaking a link after settlement completed.
func (t *Transaction) EnsureCanUnmatch() error {
	if t.SettlementProtected() {
		return errors.Errorf("transaction %s is %s, completed settlements cannot be unmatched", t.GatewayID, t.Status)
	}
	return nil
}

// EnsureCanResolve guards manual dispute resolution.
func (t *Transaction) EnsureCanResolve() error {
	if t.Status != StatusAmbiguous && t.Status != StatusPending {
		return errors.Errorf("transaction %s is %s and has no open dispute to resolve", t.GatewayID, t.Status)
	}
	return nil
}

// EnsureCanSettle guards the settlement reconciler preconditions that
// depend only on the transaction row itself.
func (t *Transaction) EnsureCanSettle() error {
	if t.Status != StatusMatched {
		return errors.Errorf("transaction %s is %s, only matched transactions can be settled", t.GatewayID, t.Status)
	}
	if !t.Linked() {
		return errors.Errorf("transaction %s has no linked receivable", t.GatewayID)
	}
	return nil
}
