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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyGatewayUpdateMediationBlocksFunds(t *testing.T) {
	txn := &Transaction{GatewayID: "mp-1", Status: StatusMatched, FinancialStatus: FinancialOpen}
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	txn.ApplyGatewayUpdate(GatewayUpdate{GatewayStatus: "in_mediation"}, now)

	assert.Equal(t, StatusAmbiguous, txn.Status)
	assert.Equal(t, FinancialBlocked, txn.FinancialStatus)
	assert.Contains(t, txn.MatchDescription, "Dispute")
}

func TestApplyGatewayUpdateChargebackSettledDetail(t *testing.T) {
	txn := &Transaction{GatewayID: "mp-2", Status: StatusConciliated}
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	txn.ApplyGatewayUpdate(GatewayUpdate{GatewayStatus: "charged_back", StatusDetail: "settled"}, now)

	assert.Equal(t, StatusChargeback, txn.Status)
	assert.Equal(t, FinancialReversed, txn.FinancialStatus)
}

func TestApplyGatewayUpdateRefund(t *testing.T) {
	txn := &Transaction{GatewayID: "mp-3", Status: StatusMatched}
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	txn.ApplyGatewayUpdate(GatewayUpdate{GatewayStatus: "refunded"}, now)

	assert.Equal(t, StatusRefunded, txn.Status)
	assert.Equal(t, FinancialReversed, txn.FinancialStatus)
}

func TestApplyGatewayUpdateReleaseDateProtection(t *testing.T) {
	original := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	incoming := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)

	txn := &Transaction{GatewayID: "mp-4", Status: StatusConciliated, MoneyReleaseDate: &original}
	txn.ApplyGatewayUpdate(GatewayUpdate{
		GatewayStatus:    "refunded",
		MoneyReleaseDate: &incoming,
	}, now)

	require.NotNil(t, txn.MoneyReleaseDate)
	assert.True(t, txn.MoneyReleaseDate.Equal(original), "original cash-in date must survive the reversal")
	require.NotNil(t, txn.MoneyVoidDate)
	assert.True(t, txn.MoneyVoidDate.Equal(incoming))
}

func TestApplyGatewayUpdateReleaseDateNormalOverwrite(t *testing.T) {
	original := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	incoming := time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	txn := &Transaction{GatewayID: "mp-5", Status: StatusMatched, MoneyReleaseDate: &original}
	txn.ApplyGatewayUpdate(GatewayUpdate{
		GatewayStatus:    "approved",
		MoneyReleaseDate: &incoming,
	}, now)

	assert.True(t, txn.MoneyReleaseDate.Equal(incoming), "non-reversal updates track the gateway")
	assert.Nil(t, txn.MoneyVoidDate)
}

func TestFinancialStatusDerivation(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -2)
	future := now.AddDate(0, 0, 2)

	released := &Transaction{Status: StatusPending}
	released.ApplyGatewayUpdate(GatewayUpdate{GatewayStatus: "approved", MoneyReleaseStatus: "released"}, now)
	assert.Equal(t, FinancialSettled, released.FinancialStatus)

	pastDue := &Transaction{Status: StatusPending}
	pastDue.ApplyGatewayUpdate(GatewayUpdate{GatewayStatus: "approved", MoneyReleaseDate: &past}, now)
	assert.Equal(t, FinancialSettled, pastDue.FinancialStatus)

	pending := &Transaction{Status: StatusPending}
	pending.ApplyGatewayUpdate(GatewayUpdate{GatewayStatus: "approved", MoneyReleaseDate: &future}, now)
	assert.Equal(t, FinancialOpen, pending.FinancialStatus)
}

func TestManualTransitionGuards(t *testing.T) {
	conciliated := &Transaction{GatewayID: "mp-6", Status: StatusConciliated}
	assert.Error(t, conciliated.EnsureCanIgnore())
	assert.Error(t, conciliated.EnsureCanUnmatch())
	assert.Error(t, conciliated.EnsureCanResolve())

	paidOut := &Transaction{GatewayID: "mp-7", Status: StatusPaidOut}
	assert.Error(t, paidOut.EnsureCanIgnore())
	assert.Error(t, paidOut.EnsureCanUnmatch())

	pending := &Transaction{GatewayID: "mp-8", Status: StatusPending}
	assert.NoError(t, pending.EnsureCanIgnore())
	assert.NoError(t, pending.EnsureCanUnmatch())
	assert.NoError(t, pending.EnsureCanResolve())
	assert.Error(t, pending.EnsureCanRestore())

	ignored := &Transaction{GatewayID: "mp-9", Status: StatusIgnored}
	assert.NoError(t, ignored.EnsureCanRestore())
	assert.Error(t, ignored.EnsureCanIgnore())

	matched := &Transaction{GatewayID: "mp-10", Status: StatusMatched, ErpID: "901"}
	assert.NoError(t, matched.EnsureCanSettle())

	unlinked := &Transaction{GatewayID: "mp-11", Status: StatusMatched}
	assert.Error(t, unlinked.EnsureCanSettle())
}

func TestDeriveReceivableStatus(t *testing.T) {
	assert.Equal(t, ReceivableCancelled, DeriveReceivableStatus(true, true))
	assert.Equal(t, ReceivableReceived, DeriveReceivableStatus(false, true))
	assert.Equal(t, ReceivableOpen, DeriveReceivableStatus(false, false))
}
