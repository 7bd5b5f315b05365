package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/model"
)

// upsertChunkSize bounds how many rows go into one ingestion transaction.
const upsertChunkSize = 50

const transactionColumns = `
	transaction_id, tenant_id, integration_id, gateway_id, external_reference,
	operation_type, description, amount_gross, amount_net, amount_paid_by_customer,
	fee_mdr, fee_financing, fee_shipping, fee_taxes, fee_coupon, fee_total, status, financial_status,
	gateway_status, gateway_detail, money_release_status, money_release_date,
	money_void_date, erp_id, erp_status, match_description, payer_name,
	payer_document, payer_email, payment_method, installments, date_event,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var (
		externalRef, operationType, description          sql.NullString
		gatewayStatus, gatewayDetail, moneyReleaseStatus sql.NullString
		erpID, erpStatus, matchDescription               sql.NullString
		payerName, payerDocument, payerEmail             sql.NullString
		paymentMethod                                    sql.NullString
		moneyReleaseDate, moneyVoidDate                  sql.NullTime
	)

	err := row.Scan(
		&txn.TransactionID, &txn.TenantID, &txn.IntegrationID, &txn.GatewayID, &externalRef,
		&operationType, &description, &txn.AmountGross, &txn.AmountNet, &txn.AmountPaidByCustomer,
		&txn.FeeMdr, &txn.FeeFinancing, &txn.FeeShipping, &txn.FeeTaxes, &txn.FeeCoupon, &txn.FeeTotal, &txn.Status, &txn.FinancialStatus,
		&gatewayStatus, &gatewayDetail, &moneyReleaseStatus, &moneyReleaseDate,
		&moneyVoidDate, &erpID, &erpStatus, &matchDescription, &payerName,
		&payerDocument, &payerEmail, &paymentMethod, &txn.Installments, &txn.DateEvent,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.ExternalReference = externalRef.String
	txn.OperationType = operationType.String
	txn.Description = description.String
	txn.GatewayStatus = gatewayStatus.String
	txn.GatewayDetail = gatewayDetail.String
	txn.MoneyReleaseStatus = moneyReleaseStatus.String
	txn.ErpID = erpID.String
	txn.ErpStatus = erpStatus.String
	txn.MatchDescription = matchDescription.String
	txn.PayerName = payerName.String
	txn.PayerDocument = payerDocument.String
	txn.PayerEmail = payerEmail.String
	txn.PaymentMethod = paymentMethod.String
	if moneyReleaseDate.Valid {
		t := moneyReleaseDate.Time
		txn.MoneyReleaseDate = &t
	}
	if moneyVoidDate.Valid {
		t := moneyVoidDate.Time
		txn.MoneyVoidDate = &t
	}
	return txn, nil
}

// UpsertTransactions writes gateway transactions in chunks, each chunk as
// one database transaction. Conciliation-owned fields on existing rows are
// only overwritten when the incoming row carries a value, so ingestion
// never silently clears a committed match.
func (d Datasource) UpsertTransactions(ctx context.Context, tenantID string, txns []*model.Transaction) error {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Upserting gateway transactions")
	defer span.End()

	for start := 0; start < len(txns); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(txns) {
			end = len(txns)
		}
		if err := d.upsertTransactionChunk(ctx, tenantID, txns[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d Datasource) upsertTransactionChunk(ctx context.Context, tenantID string, txns []*model.Transaction) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, txn := range txns {
		if txn.TransactionID == "" {
			txn.TransactionID = GenerateUUIDWithSuffix("txn")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions (
				transaction_id, tenant_id, integration_id, gateway_id, external_reference,
				operation_type, description, amount_gross, amount_net, amount_paid_by_customer,
				fee_mdr, fee_financing, fee_shipping, fee_taxes, fee_coupon, fee_total, status, financial_status,
				gateway_status, gateway_detail, money_release_status, money_release_date,
				money_void_date, erp_id, erp_status, match_description, payer_name,
				payer_document, payer_email, payment_method, installments, date_event
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
			ON CONFLICT (integration_id, gateway_id) DO UPDATE SET
				external_reference = EXCLUDED.external_reference,
				operation_type = EXCLUDED.operation_type,
				description = EXCLUDED.description,
				amount_gross = EXCLUDED.amount_gross,
				amount_net = EXCLUDED.amount_net,
				amount_paid_by_customer = EXCLUDED.amount_paid_by_customer,
				fee_mdr = EXCLUDED.fee_mdr,
				fee_financing = EXCLUDED.fee_financing,
				fee_shipping = EXCLUDED.fee_shipping,
				fee_taxes = EXCLUDED.fee_taxes,
				fee_coupon = EXCLUDED.fee_coupon,
				fee_total = EXCLUDED.fee_total,
				status = EXCLUDED.status,
				financial_status = EXCLUDED.financial_status,
				gateway_status = EXCLUDED.gateway_status,
				gateway_detail = EXCLUDED.gateway_detail,
				money_release_status = EXCLUDED.money_release_status,
				money_release_date = EXCLUDED.money_release_date,
				money_void_date = EXCLUDED.money_void_date,
				erp_id = COALESCE(NULLIF(EXCLUDED.erp_id, ''), transactions.erp_id),
				erp_status = COALESCE(NULLIF(EXCLUDED.erp_status, ''), transactions.erp_status),
				match_description = COALESCE(NULLIF(EXCLUDED.match_description, ''), transactions.match_description),
				payer_name = EXCLUDED.payer_name,
				payer_document = EXCLUDED.payer_document,
				payer_email = EXCLUDED.payer_email,
				payment_method = EXCLUDED.payment_method,
				installments = EXCLUDED.installments,
				date_event = EXCLUDED.date_event,
				updated_at = NOW()`,
			txn.TransactionID, tenantID, txn.IntegrationID, txn.GatewayID, txn.ExternalReference,
			txn.OperationType, txn.Description, txn.AmountGross, txn.AmountNet, txn.AmountPaidByCustomer,
			txn.FeeMdr, txn.FeeFinancing, txn.FeeShipping, txn.FeeTaxes, txn.FeeCoupon, txn.FeeTotal, txn.Status, txn.FinancialStatus,
			txn.GatewayStatus, txn.GatewayDetail, txn.MoneyReleaseStatus, txn.MoneyReleaseDate,
			txn.MoneyVoidDate, txn.ErpID, txn.ErpStatus, txn.MatchDescription, txn.PayerName,
			txn.PayerDocument, txn.PayerEmail, txn.PaymentMethod, txn.Installments, txn.DateEvent,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetTransaction retrieves a transaction by its internal id.
func (d Datasource) GetTransaction(ctx context.Context, tenantID, transactionID string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Fetching transaction from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1 AND transaction_id = $2
	`, tenantID, transactionID)
	return scanTransaction(row)
}

// GetTransactionByGatewayID retrieves a transaction by its gateway key.
func (d Datasource) GetTransactionByGatewayID(ctx context.Context, tenantID, integrationID, gatewayID string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Fetching transaction by gateway id")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1 AND integration_id = $2 AND gateway_id = $3
	`, tenantID, integrationID, gatewayID)
	return scanTransaction(row)
}

// GetPendingTransactions selects the matching batch. With an explicit id
// list only those rows are considered, otherwise the oldest pending rows
// up to limit.
func (d Datasource) GetPendingTransactions(ctx context.Context, tenantID, integrationID string, ids []string, limit int) ([]*model.Transaction, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Selecting pending transactions batch")
	defer span.End()

	var (
		rows *sql.Rows
		err  error
	)
	if len(ids) > 0 {
		rows, err = d.Conn.QueryContext(ctx, `
			SELECT `+transactionColumns+`
			FROM transactions
			WHERE tenant_id = $1 AND ($2 = '' OR integration_id = $2) AND transaction_id = ANY($3)
			ORDER BY date_event ASC
		`, tenantID, integrationID, pq.Array(ids))
	} else {
		rows, err = d.Conn.QueryContext(ctx, `
			SELECT `+transactionColumns+`
			FROM transactions
			WHERE tenant_id = $1 AND ($2 = '' OR integration_id = $2) AND status = 'PENDING'
			ORDER BY date_event ASC
			LIMIT $3
		`, tenantID, integrationID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// GetPendingTransactionIDs returns the ids of every pending transaction
// for the tenant, oldest first.
func (d Datasource) GetPendingTransactionIDs(ctx context.Context, tenantID, integrationID string) ([]string, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Fetching pending transaction ids")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transaction_id
		FROM transactions
		WHERE tenant_id = $1 AND ($2 = '' OR integration_id = $2) AND status = 'PENDING'
		ORDER BY date_event ASC
	`, tenantID, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListTransactions pages over a tenant's transactions with optional status
// and integration filters.
func (d Datasource) ListTransactions(ctx context.Context, tenantID string, status, integrationID string, limit, offset int) ([]*model.Transaction, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Listing transactions")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1
			AND ($2 = '' OR status = $2)
			AND ($3 = '' OR integration_id = $3)
		ORDER BY date_event DESC
		LIMIT $4 OFFSET $5
	`, tenantID, status, integrationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// GetDashboard aggregates the conciliation workload for a tenant.
func (d Datasource) GetDashboard(ctx context.Context, tenantID string) (*model.Dashboard, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Aggregating dashboard")
	defer span.End()

	dash := &model.Dashboard{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'MATCHED'),
			COUNT(*) FILTER (WHERE status = 'AMBIGUOUS'),
			COUNT(*) FILTER (WHERE status IN ('CONCILIATED', 'PAID_OUT')),
			COUNT(*) FILTER (WHERE status = 'IGNORED'),
			COALESCE(SUM(amount_gross), 0),
			COALESCE(SUM(amount_net), 0)
		FROM transactions
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&dash.TotalCount, &dash.PendingCount, &dash.MatchedCount,
		&dash.AmbiguousCount, &dash.ConciliatedCount, &dash.IgnoredCount,
		&dash.GrossTotal, &dash.NetTotal,
	)
	if err != nil {
		return nil, err
	}
	return dash, nil
}

// CommitMatch links a transaction to a receivable only while its status
// still matches one of the expected values. Zero rows affected means
// another process already moved the row and the caller must skip it.
func (d Datasource) CommitMatch(ctx context.Context, tenantID, transactionID, erpID, erpStatus, description string, expected []model.Status) (bool, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Committing match")
	defer span.End()

	states := make([]string, len(expected))
	for i, s := range expected {
		states[i] = string(s)
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'MATCHED', erp_id = $3, erp_status = $4, match_description = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND transaction_id = $2 AND status = ANY($6)
	`, tenantID, transactionID, erpID, erpStatus, description, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkAmbiguous flags a transaction for human adjudication, guarded by the
// expected current status.
func (d Datasource) MarkAmbiguous(ctx context.Context, tenantID, transactionID, description string, expected model.Status) (bool, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Marking transaction ambiguous")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'AMBIGUOUS', match_description = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND transaction_id = $2 AND status = $4
	`, tenantID, transactionID, description, string(expected))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IgnoreTransactionIf ignores a transaction, guarded by the expected
// current status.
func (d Datasource) IgnoreTransactionIf(ctx context.Context, tenantID, transactionID, description string, expected model.Status) (bool, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Ignoring transaction")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'IGNORED', match_description = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND transaction_id = $2 AND status = $4
	`, tenantID, transactionID, description, string(expected))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsReceivableClaimed reports whether another live transaction already
// holds the receivable. IGNORED rows do not count as claims.
func (d Datasource) IsReceivableClaimed(ctx context.Context, tenantID, erpID, excludeTransactionID string) (bool, error) {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Checking receivable claim")
	defer span.End()

	var claimed bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE tenant_id = $1 AND erp_id = $2
				AND status <> 'IGNORED'
				AND transaction_id <> $3
		)
	`, tenantID, erpID, excludeTransactionID).Scan(&claimed)
	return claimed, err
}

// UpdateTransactionStatus sets the lifecycle status and description.
func (d Datasource) UpdateTransactionStatus(ctx context.Context, tenantID, transactionID string, status model.Status, description string) error {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Updating transaction status")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, match_description = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND transaction_id = $2
	`, tenantID, transactionID, string(status), description)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearTransactionMatch unlinks a transaction from its receivable and
// returns it to the pending pool.
func (d Datasource) ClearTransactionMatch(ctx context.Context, tenantID, transactionID string) error {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Clearing transaction match")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'PENDING', erp_id = NULL, erp_status = NULL, match_description = NULL, updated_at = NOW()
		WHERE tenant_id = $1 AND transaction_id = $2
	`, tenantID, transactionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkTransactionSettled completes the lifecycle after a successful
// settlement.
func (d Datasource) MarkTransactionSettled(ctx context.Context, tenantID, transactionID, erpStatus, description string) error {
	ctx, span := otel.Tracer("Transaction").Start(ctx, "Marking transaction settled")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'CONCILIATED', erp_status = $3, match_description = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND transaction_id = $2
	`, tenantID, transactionID, erpStatus, description)
	return err
}

func collectTransactions(rows *sql.Rows) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
