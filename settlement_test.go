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

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/balazzarini/svelto-app/database/mocks"
	"github.com/balazzarini/svelto-app/internal/apierror"
	"github.com/balazzarini/svelto-app/model"
	"github.com/balazzarini/svelto-app/provider/omie"
)

func matchedTxn(releaseDate time.Time) *model.Transaction {
	return &model.Transaction{
		TransactionID:    "txn_1",
		TenantID:         testTenant,
		IntegrationID:    "itg_mercadopago",
		GatewayID:        "mp-100",
		AmountGross:      decimal.RequireFromString("100.00"),
		AmountNet:        decimal.RequireFromString("93.55"),
		Status:           model.StatusMatched,
		ErpID:            "901",
		MoneyReleaseDate: &releaseDate,
	}
}

func TestSettleTransactionWithinTolerance(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	erp := &stubErp{}
	s := newTestService(t, ds, nil, erp)

	release := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	txn := matchedTxn(release)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "99.99", release)
	rcv.ExternalRef = "PED-55"

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivableByErpID", mock.Anything, testTenant, "", "901").Return(rcv, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).
		Return([]*model.Integration{testIntegration(t, s, model.ProviderOmie, "777")}, nil)
	ds.On("MarkTransactionSettled", mock.Anything, testTenant, "txn_1", model.ReceivablePaidOut,
		"Settled 99.99 in ERP").Return(nil)
	ds.On("MarkReceivableSettled", mock.Anything, testTenant, "rcv_1", release).Return(nil)

	result, err := s.SettleTransaction(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)

	// One cent short of the gateway gross: settle at the receivable's own
	// face value, never invent the difference.
	assert.True(t, result.SettledAmount.Equal(decimal.RequireFromString("99.99")))
	assert.False(t, result.AlreadySettled)

	require.Len(t, erp.received, 1)
	assert.Equal(t, "901", erp.received[0].ErpID)
	assert.Equal(t, "777", erp.received[0].BankAccountID)
	assert.True(t, erp.received[0].Amount.Equal(decimal.RequireFromString("99.99")))
	assert.True(t, erp.received[0].Reconcile)

	require.Len(t, erp.posted, 1)
	fee := erp.posted[0]
	assert.Equal(t, "TAX-mp-100", fee.IdempotencyKey)
	assert.Equal(t, "2.01.93", fee.CategoryCode)
	assert.True(t, fee.Debit)
	assert.True(t, fee.Amount.Equal(decimal.RequireFromString("6.44")))
	assert.Equal(t, "PED-55", fee.DocNumber)
	assert.True(t, result.FeePosted.Equal(decimal.RequireFromString("6.44")))

	require.Len(t, erp.amended, 1)
	ds.AssertExpectations(t)
}

func TestSettleTransactionSettlesAtGrossWhenReceivableLarger(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	erp := &stubErp{}
	s := newTestService(t, ds, nil, erp)

	release := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	txn := matchedTxn(release)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "100.50", release)

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivableByErpID", mock.Anything, testTenant, "", "901").Return(rcv, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).
		Return([]*model.Integration{testIntegration(t, s, model.ProviderOmie, "777")}, nil)
	ds.On("MarkTransactionSettled", mock.Anything, testTenant, "txn_1", model.ReceivablePaidOut,
		"Settled 100.00 in ERP").Return(nil)
	ds.On("MarkReceivableSettled", mock.Anything, testTenant, "rcv_1", release).Return(nil)

	result, err := s.SettleTransaction(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)

	// The title is worth more than the gateway paid out. Only the gateway
	// amount gets booked, leaving the remainder open in the ERP.
	assert.True(t, result.SettledAmount.Equal(decimal.RequireFromString("100.00")))

	require.Len(t, erp.received, 1)
	assert.True(t, erp.received[0].Amount.Equal(decimal.RequireFromString("100.00")))

	require.Len(t, erp.posted, 1)
	assert.True(t, erp.posted[0].Amount.Equal(decimal.RequireFromString("6.45")))
	ds.AssertExpectations(t)
}

func TestSettleTransactionRejectsAmountDivergence(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	erp := &stubErp{}
	s := newTestService(t, ds, nil, erp)

	release := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	txn := matchedTxn(release)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "99.50", release)

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivableByErpID", mock.Anything, testTenant, "", "901").Return(rcv, nil)

	_, err := s.SettleTransaction(context.Background(), testTenant, "txn_1")
	require.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrPrecondition, apiErr.Code)
	assert.Empty(t, erp.received)
	ds.AssertNotCalled(t, "MarkTransactionSettled", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSettleTransactionReclassifiesAlreadySettled(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	erp := &stubErp{receiveErr: &omie.FaultError{Fault: "ERROR: Titulo ja baixado."}}
	s := newTestService(t, ds, nil, erp)

	release := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	txn := matchedTxn(release)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "100.00", release)

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivableByErpID", mock.Anything, testTenant, "", "901").Return(rcv, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).
		Return([]*model.Integration{testIntegration(t, s, model.ProviderOmie, "777")}, nil)
	ds.On("MarkTransactionSettled", mock.Anything, testTenant, "txn_1", model.ReceivablePaidOut,
		"Settled in ERP by a prior attempt").Return(nil)
	ds.On("MarkReceivableSettled", mock.Anything, testTenant, "rcv_1", release).Return(nil)

	result, err := s.SettleTransaction(context.Background(), testTenant, "txn_1")
	require.NoError(t, err)
	assert.True(t, result.AlreadySettled)
	assert.True(t, result.FeePosted.IsZero())
	assert.Empty(t, erp.posted)
	ds.AssertExpectations(t)
}

func TestSettleTransactionRefusesUnmatchedRows(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	s := newTestService(t, ds, nil, &stubErp{})

	txn := pendingTxn("txn_1", "mp-100", "100.00", time.Now().UTC())
	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)

	_, err := s.SettleTransaction(context.Background(), testTenant, "txn_1")
	require.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrPrecondition, apiErr.Code)
}

func TestSettleTransactionRequiresBankAccount(t *testing.T) {
	testConfig()
	ds := &mocks.MockDataSource{}
	erp := &stubErp{}
	s := newTestService(t, ds, nil, erp)

	release := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	txn := matchedTxn(release)
	rcv := openReceivable("rcv_1", "901", "Maria Silva Ltda", "100.00", release)

	ds.On("GetTransaction", mock.Anything, testTenant, "txn_1").Return(txn, nil)
	ds.On("GetReceivableByErpID", mock.Anything, testTenant, "", "901").Return(rcv, nil)
	ds.On("GetActiveIntegrations", mock.Anything, testTenant).
		Return([]*model.Integration{testIntegration(t, s, model.ProviderOmie, "")}, nil)

	_, err := s.SettleTransaction(context.Background(), testTenant, "txn_1")
	require.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrPrecondition, apiErr.Code)
	assert.Empty(t, erp.received)
}
