package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/balazzarini/svelto-app/model"
)

// MockDataSource is a testify mock of the repository surface consumed by
// the service layer.
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) UpsertTransactions(ctx context.Context, tenantID string, txns []*model.Transaction) error {
	args := m.Called(ctx, tenantID, txns)
	return args.Error(0)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, tenantID, transactionID string) (*model.Transaction, error) {
	args := m.Called(ctx, tenantID, transactionID)
	if txn, ok := args.Get(0).(*model.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetTransactionByGatewayID(ctx context.Context, tenantID, integrationID, gatewayID string) (*model.Transaction, error) {
	args := m.Called(ctx, tenantID, integrationID, gatewayID)
	if txn, ok := args.Get(0).(*model.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetPendingTransactions(ctx context.Context, tenantID, integrationID string, ids []string, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, tenantID, integrationID, ids, limit)
	if txns, ok := args.Get(0).([]*model.Transaction); ok {
		return txns, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetPendingTransactionIDs(ctx context.Context, tenantID, integrationID string) ([]string, error) {
	args := m.Called(ctx, tenantID, integrationID)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) ListTransactions(ctx context.Context, tenantID string, status, integrationID string, limit, offset int) ([]*model.Transaction, error) {
	args := m.Called(ctx, tenantID, status, integrationID, limit, offset)
	if txns, ok := args.Get(0).([]*model.Transaction); ok {
		return txns, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetDashboard(ctx context.Context, tenantID string) (*model.Dashboard, error) {
	args := m.Called(ctx, tenantID)
	if dash, ok := args.Get(0).(*model.Dashboard); ok {
		return dash, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) CommitMatch(ctx context.Context, tenantID, transactionID, erpID, erpStatus, description string, expected []model.Status) (bool, error) {
	args := m.Called(ctx, tenantID, transactionID, erpID, erpStatus, description, expected)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkAmbiguous(ctx context.Context, tenantID, transactionID, description string, expected model.Status) (bool, error) {
	args := m.Called(ctx, tenantID, transactionID, description, expected)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) IgnoreTransactionIf(ctx context.Context, tenantID, transactionID, description string, expected model.Status) (bool, error) {
	args := m.Called(ctx, tenantID, transactionID, description, expected)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) IsReceivableClaimed(ctx context.Context, tenantID, erpID, excludeTransactionID string) (bool, error) {
	args := m.Called(ctx, tenantID, erpID, excludeTransactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateTransactionStatus(ctx context.Context, tenantID, transactionID string, status model.Status, description string) error {
	args := m.Called(ctx, tenantID, transactionID, status, description)
	return args.Error(0)
}

func (m *MockDataSource) ClearTransactionMatch(ctx context.Context, tenantID, transactionID string) error {
	args := m.Called(ctx, tenantID, transactionID)
	return args.Error(0)
}

func (m *MockDataSource) MarkTransactionSettled(ctx context.Context, tenantID, transactionID, erpStatus, description string) error {
	args := m.Called(ctx, tenantID, transactionID, erpStatus, description)
	return args.Error(0)
}

func (m *MockDataSource) UpsertReceivables(ctx context.Context, tenantID string, rcvs []*model.Receivable) error {
	args := m.Called(ctx, tenantID, rcvs)
	return args.Error(0)
}

func (m *MockDataSource) GetReceivable(ctx context.Context, tenantID, receivableID string) (*model.Receivable, error) {
	args := m.Called(ctx, tenantID, receivableID)
	if rcv, ok := args.Get(0).(*model.Receivable); ok {
		return rcv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetReceivableByErpID(ctx context.Context, tenantID, integrationID, erpID string) (*model.Receivable, error) {
	args := m.Called(ctx, tenantID, integrationID, erpID)
	if rcv, ok := args.Get(0).(*model.Receivable); ok {
		return rcv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) FindReceivableByNsu(ctx context.Context, tenantID, integrationID, bankAccountID, nsu string) (*model.Receivable, error) {
	args := m.Called(ctx, tenantID, integrationID, bankAccountID, nsu)
	if rcv, ok := args.Get(0).(*model.Receivable); ok {
		return rcv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) SearchReceivables(ctx context.Context, tenantID string, q model.ReceivableQuery) ([]*model.Receivable, error) {
	args := m.Called(ctx, tenantID, q)
	if rcvs, ok := args.Get(0).([]*model.Receivable); ok {
		return rcvs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) MarkReceivableSettled(ctx context.Context, tenantID, receivableID string, paymentDate time.Time) error {
	args := m.Called(ctx, tenantID, receivableID, paymentDate)
	return args.Error(0)
}

func (m *MockDataSource) UpsertErpCustomers(ctx context.Context, tenantID string, customers []*model.ErpCustomer) error {
	args := m.Called(ctx, tenantID, customers)
	return args.Error(0)
}

func (m *MockDataSource) EnrichReceivableCustomers(ctx context.Context, tenantID, integrationID string) (int64, error) {
	args := m.Called(ctx, tenantID, integrationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ReplaceCandidates(ctx context.Context, tenantID, transactionID string, candidates []*model.Candidate) error {
	args := m.Called(ctx, tenantID, transactionID, candidates)
	return args.Error(0)
}

func (m *MockDataSource) GetCandidates(ctx context.Context, tenantID, transactionID string) ([]*model.Candidate, error) {
	args := m.Called(ctx, tenantID, transactionID)
	if candidates, ok := args.Get(0).([]*model.Candidate); ok {
		return candidates, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) DeleteCandidates(ctx context.Context, tenantID, transactionID string) error {
	args := m.Called(ctx, tenantID, transactionID)
	return args.Error(0)
}

func (m *MockDataSource) CreateIntegration(ctx context.Context, itg *model.Integration) error {
	args := m.Called(ctx, itg)
	return args.Error(0)
}

func (m *MockDataSource) GetIntegration(ctx context.Context, tenantID, integrationID string) (*model.Integration, error) {
	args := m.Called(ctx, tenantID, integrationID)
	if itg, ok := args.Get(0).(*model.Integration); ok {
		return itg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetActiveIntegrations(ctx context.Context, tenantID string) ([]*model.Integration, error) {
	args := m.Called(ctx, tenantID)
	if itgs, ok := args.Get(0).([]*model.Integration); ok {
		return itgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) UpdateIntegrationSettings(ctx context.Context, tenantID, integrationID string, settings model.IntegrationSettings) error {
	args := m.Called(ctx, tenantID, integrationID, settings)
	return args.Error(0)
}
