package database

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/model"
)

const receivableColumns = `
	receivable_id, tenant_id, integration_id, erp_id, customer_code,
	customer_name, customer_doc, document_number, nsu, external_ref,
	category_code, bank_account_id, amount, status, emission_date,
	due_date, payment_date, created_at, updated_at`

func scanReceivable(row rowScanner) (*model.Receivable, error) {
	rcv := &model.Receivable{}
	var (
		customerCode, customerName, customerDoc        sql.NullString
		documentNumber, nsu, externalRef, categoryCode sql.NullString
		bankAccountID                                  sql.NullString
		dueDate, paymentDate                           sql.NullTime
	)

	err := row.Scan(
		&rcv.ReceivableID, &rcv.TenantID, &rcv.IntegrationID, &rcv.ErpID, &customerCode,
		&customerName, &customerDoc, &documentNumber, &nsu, &externalRef,
		&categoryCode, &bankAccountID, &rcv.Amount, &rcv.Status, &rcv.EmissionDate,
		&dueDate, &paymentDate, &rcv.CreatedAt, &rcv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rcv.CustomerCode = customerCode.String
	rcv.CustomerName = customerName.String
	rcv.CustomerDoc = customerDoc.String
	rcv.DocumentNumber = documentNumber.String
	rcv.Nsu = nsu.String
	rcv.ExternalRef = externalRef.String
	rcv.CategoryCode = categoryCode.String
	rcv.BankAccountID = bankAccountID.String
	if dueDate.Valid {
		t := dueDate.Time
		rcv.DueDate = &t
	}
	if paymentDate.Valid {
		t := paymentDate.Time
		rcv.PaymentDate = &t
	}
	return rcv, nil
}

// UpsertReceivables writes ERP receivables in chunks, each chunk as one
// database transaction.
func (d Datasource) UpsertReceivables(ctx context.Context, tenantID string, rcvs []*model.Receivable) error {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Upserting receivables")
	defer span.End()

	for start := 0; start < len(rcvs); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rcvs) {
			end = len(rcvs)
		}
		if err := d.upsertReceivableChunk(ctx, tenantID, rcvs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d Datasource) upsertReceivableChunk(ctx context.Context, tenantID string, rcvs []*model.Receivable) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, rcv := range rcvs {
		if rcv.ReceivableID == "" {
			rcv.ReceivableID = GenerateUUIDWithSuffix("rcv")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receivables (
				receivable_id, tenant_id, integration_id, erp_id, customer_code,
				customer_name, customer_doc, document_number, nsu, external_ref,
				category_code, bank_account_id, amount, status, emission_date,
				due_date, payment_date
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (integration_id, erp_id) DO UPDATE SET
				customer_code = EXCLUDED.customer_code,
				customer_name = COALESCE(NULLIF(EXCLUDED.customer_name, ''), receivables.customer_name),
				customer_doc = COALESCE(NULLIF(EXCLUDED.customer_doc, ''), receivables.customer_doc),
				document_number = EXCLUDED.document_number,
				nsu = EXCLUDED.nsu,
				external_ref = EXCLUDED.external_ref,
				category_code = EXCLUDED.category_code,
				bank_account_id = EXCLUDED.bank_account_id,
				amount = EXCLUDED.amount,
				status = EXCLUDED.status,
				emission_date = EXCLUDED.emission_date,
				due_date = EXCLUDED.due_date,
				payment_date = EXCLUDED.payment_date,
				updated_at = NOW()`,
			rcv.ReceivableID, tenantID, rcv.IntegrationID, rcv.ErpID, rcv.CustomerCode,
			rcv.CustomerName, rcv.CustomerDoc, rcv.DocumentNumber, rcv.Nsu, rcv.ExternalRef,
			rcv.CategoryCode, rcv.BankAccountID, rcv.Amount, rcv.Status, rcv.EmissionDate,
			rcv.DueDate, rcv.PaymentDate,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetReceivable retrieves a receivable by its internal id.
func (d Datasource) GetReceivable(ctx context.Context, tenantID, receivableID string) (*model.Receivable, error) {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Fetching receivable from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+receivableColumns+`
		FROM receivables
		WHERE tenant_id = $1 AND receivable_id = $2
	`, tenantID, receivableID)
	return scanReceivable(row)
}

// GetReceivableByErpID retrieves a receivable by its ERP key.
func (d Datasource) GetReceivableByErpID(ctx context.Context, tenantID, integrationID, erpID string) (*model.Receivable, error) {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Fetching receivable by erp id")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+receivableColumns+`
		FROM receivables
		WHERE tenant_id = $1 AND ($2 = '' OR integration_id = $2) AND erp_id = $3
		LIMIT 1
	`, tenantID, integrationID, erpID)
	return scanReceivable(row)
}

// FindReceivableByNsu looks up a non-cancelled receivable by the external
// reference the gateway and the ERP share. Used by the hard-match step.
// The bank account filter keeps multi-account tenants from hard-matching
// another account's title.
func (d Datasource) FindReceivableByNsu(ctx context.Context, tenantID, integrationID, bankAccountID, nsu string) (*model.Receivable, error) {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Fetching receivable by nsu")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+receivableColumns+`
		FROM receivables
		WHERE tenant_id = $1 AND ($2 = '' OR integration_id = $2)
			AND ($3 = '' OR bank_account_id = '' OR bank_account_id = $3)
			AND nsu = $4
			AND status <> 'CANCELADO'
		ORDER BY emission_date ASC
		LIMIT 1
	`, tenantID, integrationID, bankAccountID, nsu)
	return scanReceivable(row)
}

// SearchReceivables runs a windowed candidate search. Cancelled titles are
// excluded unconditionally.
func (d Datasource) SearchReceivables(ctx context.Context, tenantID string, q model.ReceivableQuery) ([]*model.Receivable, error) {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Searching candidate window")
	defer span.End()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+receivableColumns+`
		FROM receivables
		WHERE tenant_id = $1 AND ($2 = '' OR integration_id = $2)
			AND ($3 = '' OR bank_account_id = '' OR bank_account_id = $3)
			AND status <> 'CANCELADO'
			AND ($4 = FALSE OR status = 'EM ABERTO')
			AND amount BETWEEN $5 AND $6
			AND emission_date BETWEEN $7 AND $8
			AND ($9 = '' OR customer_name ILIKE '%' || $9 || '%')
		ORDER BY emission_date ASC
		LIMIT $10
	`, tenantID, q.IntegrationID, q.BankAccountID, q.OnlyOpen,
		q.Amount.Sub(q.Tolerance), q.Amount.Add(q.Tolerance),
		q.EmissionFrom, q.EmissionTo, q.NameLike, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Receivable
	for rows.Next() {
		rcv, err := scanReceivable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rcv)
	}
	return out, rows.Err()
}

// MarkReceivableSettled flips the receivable to its settled terminal
// status after the ERP confirmed the payment entry.
func (d Datasource) MarkReceivableSettled(ctx context.Context, tenantID, receivableID string, paymentDate time.Time) error {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Marking receivable settled")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE receivables
		SET status = 'LIQUIDADO', payment_date = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND receivable_id = $2
	`, tenantID, receivableID, paymentDate)
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

// UpsertErpCustomers writes ERP customer registry entries in chunks.
func (d Datasource) UpsertErpCustomers(ctx context.Context, tenantID string, customers []*model.ErpCustomer) error {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Upserting erp customers")
	defer span.End()

	for start := 0; start < len(customers); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(customers) {
			end = len(customers)
		}
		if err := d.upsertErpCustomerChunk(ctx, tenantID, customers[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d Datasource) upsertErpCustomerChunk(ctx context.Context, tenantID string, customers []*model.ErpCustomer) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, c := range customers {
		if c.CustomerID == "" {
			c.CustomerID = GenerateUUIDWithSuffix("cst")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO erp_customers (
				customer_id, tenant_id, integration_id, erp_code, name, trade_name, document
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (integration_id, erp_code) DO UPDATE SET
				name = EXCLUDED.name,
				trade_name = EXCLUDED.trade_name,
				document = EXCLUDED.document`,
			c.CustomerID, tenantID, c.IntegrationID, c.ErpCode, c.Name, c.TradeName, c.Document,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// EnrichReceivableCustomers backfills customer names on receivables that
// arrived without one, joining on the customer registry by ERP code.
func (d Datasource) EnrichReceivableCustomers(ctx context.Context, tenantID, integrationID string) (int64, error) {
	ctx, span := otel.Tracer("Receivable").Start(ctx, "Enriching receivable customers")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE receivables r
		SET customer_name = c.name,
			customer_doc = COALESCE(NULLIF(r.customer_doc, ''), c.document),
			updated_at = NOW()
		FROM erp_customers c
		WHERE r.tenant_id = $1 AND r.integration_id = $2
			AND c.tenant_id = r.tenant_id AND c.integration_id = r.integration_id
			AND c.erp_code = r.customer_code
			AND (r.customer_name IS NULL OR r.customer_name = '')
			AND c.name IS NOT NULL AND c.name <> ''
	`, tenantID, integrationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
