package database

import (
	"context"
	"time"

	"github.com/balazzarini/svelto-app/model"
)

// IDataSource is the composite repository surface consumed by the service
// layer.
type IDataSource interface {
	transaction
	receivable
	candidate
	integration
}

type transaction interface {
	UpsertTransactions(ctx context.Context, tenantID string, txns []*model.Transaction) error
	GetTransaction(ctx context.Context, tenantID, transactionID string) (*model.Transaction, error)
	GetTransactionByGatewayID(ctx context.Context, tenantID, integrationID, gatewayID string) (*model.Transaction, error)
	GetPendingTransactions(ctx context.Context, tenantID, integrationID string, ids []string, limit int) ([]*model.Transaction, error)
	GetPendingTransactionIDs(ctx context.Context, tenantID, integrationID string) ([]string, error)
	ListTransactions(ctx context.Context, tenantID string, status, integrationID string, limit, offset int) ([]*model.Transaction, error)
	GetDashboard(ctx context.Context, tenantID string) (*model.Dashboard, error)

	CommitMatch(ctx context.Context, tenantID, transactionID, erpID, erpStatus, description string, expected []model.Status) (bool, error)
	MarkAmbiguous(ctx context.Context, tenantID, transactionID, description string, expected model.Status) (bool, error)
	IgnoreTransactionIf(ctx context.Context, tenantID, transactionID, description string, expected model.Status) (bool, error)
	IsReceivableClaimed(ctx context.Context, tenantID, erpID, excludeTransactionID string) (bool, error)

	UpdateTransactionStatus(ctx context.Context, tenantID, transactionID string, status model.Status, description string) error
	ClearTransactionMatch(ctx context.Context, tenantID, transactionID string) error
	MarkTransactionSettled(ctx context.Context, tenantID, transactionID, erpStatus, description string) error
}

type receivable interface {
	UpsertReceivables(ctx context.Context, tenantID string, rcvs []*model.Receivable) error
	GetReceivable(ctx context.Context, tenantID, receivableID string) (*model.Receivable, error)
	GetReceivableByErpID(ctx context.Context, tenantID, integrationID, erpID string) (*model.Receivable, error)
	FindReceivableByNsu(ctx context.Context, tenantID, integrationID, bankAccountID, nsu string) (*model.Receivable, error)
	SearchReceivables(ctx context.Context, tenantID string, q model.ReceivableQuery) ([]*model.Receivable, error)
	MarkReceivableSettled(ctx context.Context, tenantID, receivableID string, paymentDate time.Time) error
	UpsertErpCustomers(ctx context.Context, tenantID string, customers []*model.ErpCustomer) error
	EnrichReceivableCustomers(ctx context.Context, tenantID, integrationID string) (int64, error)
}

type candidate interface {
	ReplaceCandidates(ctx context.Context, tenantID, transactionID string, candidates []*model.Candidate) error
	GetCandidates(ctx context.Context, tenantID, transactionID string) ([]*model.Candidate, error)
	DeleteCandidates(ctx context.Context, tenantID, transactionID string) error
}

type integration interface {
	CreateIntegration(ctx context.Context, itg *model.Integration) error
	GetIntegration(ctx context.Context, tenantID, integrationID string) (*model.Integration, error)
	GetActiveIntegrations(ctx context.Context, tenantID string) ([]*model.Integration, error)
	UpdateIntegrationSettings(ctx context.Context, tenantID, integrationID string, settings model.IntegrationSettings) error
}

// Compile-time check that Datasource satisfies the repository surface.
var _ IDataSource = Datasource{}
