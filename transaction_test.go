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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/balazzarini/svelto-app/database/mocks"
	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/model"
)

func TestFindCandidatesPrefersPersistedRanking(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	txn := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	persisted := []*model.Candidate{{CandidateID: "cnd_1", TransactionID: "txn_1", Score: 96}}

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetCandidates", mock.Anything, testTenant, "txn_1").Return(persisted, nil)

	out, err := s.FindCandidates(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cnd_1", out[0].CandidateID)
	ds.AssertNotCalled(t, "SearchReceivables", mock.Anything, mock.Anything, mock.Anything)
}

func TestFindCandidatesLiveLookupDeduplicates(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	byName := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)
	byValue := openReceivable("rcv_2", "902", "Outro Cliente", "150.00", at.AddDate(0, 0, 2))

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetCandidates", mock.Anything, testTenant, "txn_1").Return([]*model.Candidate{}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).Return([]*model.Integration{}, nil)
	// Name pass filters on the payer's first name.
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.MatchedBy(func(q model.ReceivableQuery) bool {
		return q.NameLike == "maria"
	})).Return([]*model.Receivable{byName}, nil)
	// Value pass returns the same receivable again plus a new one.
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.MatchedBy(func(q model.ReceivableQuery) bool {
		return q.NameLike == ""
	})).Return([]*model.Receivable{byName, byValue}, nil)

	out, err := s.FindCandidates(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "901", out[0].ErpID)
	assert.Equal(t, namePassScore, out[0].Score)
	assert.Equal(t, "902", out[1].ErpID)
	assert.Equal(t, 60, out[1].Score)
	ds.AssertExpectations(t)
}

func TestFindCandidatesScopesLiveLookupToErpBankAccount(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetCandidates", mock.Anything, testTenant, "txn_1").Return([]*model.Candidate{}, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).
		Return([]*model.Integration{testIntegration(t, s, model.ProviderOmie, "777")}, nil)
	ds.On("SearchReceivables", mock.Anything, testTenant, mock.MatchedBy(func(q model.ReceivableQuery) bool {
		return q.BankAccountID == "777"
	})).Return([]*model.Receivable{rcv}, nil)

	out, err := s.FindCandidates(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "901", out[0].ErpID)
	ds.AssertExpectations(t)
}

func TestResolveCandidateLinksAndDropsRanking(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Now().UTC()
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	txn.Status = model.StatusAmbiguous
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivable", mock.Anything, testTenant, "rcv_1").Return(rcv, nil)
	ds.On("IsReceivableClaimed", mock.Anything, testTenant, "901", "txn_1").Return(false, nil)
	ds.On("CommitMatch", mock.Anything, testTenant, "txn_1", "901", model.ReceivableOpen,
		"Matched manually by operator", []model.Status{model.StatusAmbiguous, model.StatusPending}).Return(true, nil)
	ds.On("DeleteCandidates", mock.Anything, testTenant, "txn_1").Return(nil)

	err := s.ResolveCandidate(context.Background(), testTenant, "txn_1", "rcv_1")
	require.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestResolveCandidateRefusesClosedReceivable(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	at := time.Now().UTC()
	txn := pendingTxn("txn_1", "mp-100", "150.00", at)
	txn.Status = model.StatusAmbiguous
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "150.00", at)
	rcv.Status = model.ReceivableReceived

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivable", mock.Anything, testTenant, "rcv_1").Return(rcv, nil)

	err := s.ResolveCandidate(context.Background(), testTenant, "txn_1", "rcv_1")
	require.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrPrecondition, apiErr.Code)
	ds.AssertNotCalled(t, "CommitMatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIgnoreTransactionsRefusesSettledRows(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	first := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	settled := pendingTxn("txn_2", "mp-101", "80.00", time.Now().UTC())
	settled.Status = model.StatusConciliated

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(first, nil)
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_2").Return(settled, nil)
	ds.On("UpdateTransactionStatus", mock.Anything, testTenant, "txn_1", model.StatusIgnored, "noise").Return(nil)

	affected, err := s.IgnoreTransactions(context.Background(), testTenant, []string{"txn_1", "txn_2"}, "noise")
	require.Error(t, err)
	assert.Equal(t, 1, affected)

	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrPrecondition, apiErr.Code)
}

func TestRestoreTransactionsOnlyAcceptsIgnoredRows(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	ignored := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	ignored.Status = model.StatusIgnored

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(ignored, nil)
	ds.On("UpdateTransactionStatus", mock.Anything, testTenant, "txn_1", model.StatusPending, "").Return(nil)

	affected, err := s.RestoreTransactions(context.Background(), testTenant, []string{"txn_1"})
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
	ds.AssertExpectations(t)
}

func TestUnmatchTransactionForbiddenAfterSettlement(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	settled := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	settled.Status = model.StatusPaidOut

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(settled, nil)

	err := s.UnmatchTransaction(context.Background(), testTenant, "txn_1")
	require.Error(t, err)
	ds.AssertNotCalled(t, "ClearTransactionMatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnmatchTransactionReturnsRowToPending(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, nil)

	matched := pendingTxn("txn_1", "mp-100", "150.00", time.Now().UTC())
	matched.Status = model.StatusMatched
	matched.ErpID = "901"

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(matched, nil)
	ds.On("ClearTransactionMatch", mock.Anything, testTenant, "txn_1").Return(nil)

	err := s.UnmatchTransaction(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)
	ds.AssertExpectations(t)
}
