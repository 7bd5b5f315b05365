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
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/database"
	"github.com/balazzarini/svelto-app/database/mocks"
	"github.com/balazzarini/svelto-app/internal/secrets"
	"github.com/balazzarini/svelto-app/model"
	"github.com/balazzarini/svelto-app/provider/omie"
)

const testTenant = "tenant_test"

func testConfig() {
	config.MockConfig(&config.Configuration{
		ProjectName:   "Svelto",
		DefaultTenant: testTenant,
		Matching: config.MatchingConfig{
			AcceptThreshold: 95,
			BatchCap:        200,
		},
		Sync: config.SyncConfig{
			IntervalMinutes: 60,
			OverlapMinutes:  30,
		},
	})
}

type stubGateway struct {
	payments       []*model.Transaction
	err            error
	gotFrom, gotTo time.Time
	gotIncremental bool
}

func (g *stubGateway) SearchPayments(_ context.Context, from, to time.Time, useLastUpdated bool) ([]*model.Transaction, error) {
	g.gotFrom, g.gotTo, g.gotIncremental = from, to, useLastUpdated
	return g.payments, g.err
}

type stubErp struct {
	receivables []*model.Receivable
	customers   []*model.ErpCustomer
	listErr     error
	receiveErr  error
	postErr     error
	amendErr    error

	received []omie.ReceivePaymentParams
	posted   []omie.LedgerEntryParams
	amended  []omie.LedgerEntryParams
}

func (e *stubErp) ListReceivables(_ context.Context, _, _ time.Time) ([]*model.Receivable, error) {
	return e.receivables, e.listErr
}

func (e *stubErp) ListCustomers(_ context.Context) ([]*model.ErpCustomer, error) {
	return e.customers, e.listErr
}

func (e *stubErp) ReceivePayment(_ context.Context, p omie.ReceivePaymentParams) error {
	e.received = append(e.received, p)
	return e.receiveErr
}

func (e *stubErp) PostLedgerEntry(_ context.Context, p omie.LedgerEntryParams) error {
	e.posted = append(e.posted, p)
	return e.postErr
}

func (e *stubErp) AmendLedgerEntry(_ context.Context, p omie.LedgerEntryParams) error {
	e.amended = append(e.amended, p)
	return e.amendErr
}

func newTestService(t *testing.T, ds database.IDataSource, gw GatewayClient, erp ErpClient) *Svelto {
	t.Helper()
	vault, err := secrets.NewVault(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return &Svelto{
		datasource: ds,
		vault:      vault,
		newGateway: func(string) GatewayClient { return gw },
		newErp:     func(string) (ErpClient, error) { return erp, nil },
	}
}

func testIntegration(t *testing.T, s *Svelto, provider, bankAccountID string) *model.Integration {
	t.Helper()
	encrypted, err := s.vault.EncryptString("key:secret")
	require.NoError(t, err)
	return &model.Integration{
		IntegrationID:        "itg_" + provider,
		TenantID:             testTenant,
		Provider:             provider,
		Active:               true,
		EncryptedAccessToken: encrypted,
		Settings:             model.IntegrationSettings{BankAccountID: bankAccountID},
	}
}

func pendingTxn(id, gatewayID string, amount string, at time.Time) *model.Transaction {
	return &model.Transaction{
		TransactionID: id,
		TenantID:      testTenant,
		IntegrationID: "itg_mercadopago",
		GatewayID:     gatewayID,
		AmountGross:   decimal.RequireFromString(amount),
		AmountNet:     decimal.RequireFromString(amount),
		Status:        model.StatusPending,
		GatewayStatus: "approved",
		PayerName:     "Maria Silva",
		DateEvent:     at,
	}
}

func openReceivable(id, erpID, name, amount string, at time.Time) *model.Receivable {
	return &model.Receivable{
		ReceivableID:  id,
		TenantID:      testTenant,
		IntegrationID: "itg_omie",
		ErpID:         erpID,
		CustomerName:  name,
		Amount:        decimal.RequireFromString(amount),
		Status:        model.ReceivableOpen,
		EmissionDate:  at,
	}
}

func TestRunAutoMatchHardMatch(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("FindReceivableByNsu", mock.Anything, testTenant, "", "", "mp-100").Return(rcv, nil)
	ds.On("IsReceivableClaimed", mock.Anything, testTenant, "901", "txn_1").Return(false, nil)
	ds.On("CommitMatch", mock.Anything, testTenant, "txn_1", "901", model.ReceivableOpen,
		"Hard match by gateway reference", []model.Status{model.StatusPending}).Return(true, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Matches)
	assert.Zero(t, result.Errors)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchClaimedReceivableFallsThroughToScoring(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	claimed := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)
	other := openReceivable("rcv_2", "902", "Maria Silva Ltda", "150.00", at)

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("FindReceivableByNsu", mock.Anything, testTenant, "", "", "mp-100").Return(claimed, nil)
	ds.On("IsReceivableClaimed", mock.Anything, testTenant, "901", "txn_1").Return(true, nil)
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.Anything).
		Return([]*model.Receivable{other}, nil)
	ds.On("CommitMatch", mock.Anything, testTenant, "txn_1", "902", model.ReceivableOpen,
		"Smart match, score 100%", []model.Status{model.StatusPending}).Return(true, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matches)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchAmbiguousWhenMultipleClearThreshold(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "", "150.00", at)
	first := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)
	second := openReceivable("rcv_2", "902", "Maria Silva ME", "150.00", at)

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.Anything).
		Return([]*model.Receivable{first, second}, nil)
	ds.On("ReplaceCandidates", mock.Anything, testTenant, "txn_1", mock.MatchedBy(func(cs []*model.Candidate) bool {
		return len(cs) == 2
	})).Return(nil)
	ds.On("MarkAmbiguous", mock.Anything, testTenant, "txn_1",
		"2 candidates. Top score: 100%", model.StatusPending).Return(true, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Disputes)
	assert.Zero(t, result.Matches)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchIgnoresCancelledPayments(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	txn := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	txn.GatewayStatus = "cancelled"

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("IgnoreTransactionIf", mock.Anything, testTenant, "txn_1",
		"Auto-ignored: gateway status is cancelled", model.StatusPending).Return(true, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ignored)
	ds.AssertNotCalled(t, "FindReceivableByNsu", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchSkipsRowsThatAlreadyMoved(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	stale := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	current := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	current.Status = model.StatusMatched

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{stale}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(current, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Matches)
	assert.Zero(t, result.Disputes)
	ds.AssertNotCalled(t, "CommitMatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchLeavesPendingWhenNothingScores(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	txn := pendingTxn("txn_1", "", "150.00", time.Now().UTC())

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.Anything).
		Return([]*model.Receivable{}, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Matches)
	assert.Zero(t, result.Disputes)
	ds.AssertNotCalled(t, "MarkAmbiguous", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchMissingHardReferenceFallsThrough(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("FindReceivableByNsu", mock.Anything, testTenant, "", "", "mp-100").Return(nil, sql.ErrNoRows)
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.Anything).
		Return([]*model.Receivable{rcv}, nil)
	ds.On("CommitMatch", mock.Anything, testTenant, "txn_1", "901", model.ReceivableOpen,
		"Smart match, score 100%", []model.Status{model.StatusPending}).Return(true, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matches)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchScopesLookupsToErpBankAccount(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)
	rcv.BankAccountID = "777"

	ds.On("GetPendingTransactions", mock.Anything, testTenant, "", []string(nil), 200).
		Return([]*model.Transaction{txn}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).
		Return([]*model.Integration{testIntegration(t, s, model.ProviderOmie, "777")}, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	// Both the hard-match lookup and the scoring window carry the ERP
	// integration's bank account.
	ds.On("FindReceivableByNsu", mock.Anything, testTenant, "", "777", "mp-100").Return(nil, sql.ErrNoRows)
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.MatchedBy(func(q model.ReceivableQuery) bool {
		return q.BankAccountID == "777"
	})).Return([]*model.Receivable{rcv}, nil)
	ds.On("CommitMatch", mock.Anything, testTenant, "txn_1", "901", model.ReceivableOpen,
		"Smart match, score 100%", []model.Status{model.StatusPending}).Return(true, nil)

	result, err := s.RunAutoMatch(context.Background(), testTenant, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matches)
	ds.AssertExpectations(t)
}

func TestRunAutoMatchAbortsOnUnknownIntegration(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	ds.On("GetIntegration", mock.Anything, testTenant, "itg_missing").Return(nil, sql.ErrNoRows)

	_, err := s.RunAutoMatch(context.Background(), testTenant, "itg_missing", nil)
	require.Error(t, err)
	ds.AssertNotCalled(t, "GetPendingTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
