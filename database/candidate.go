package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/model"
)

// ReplaceCandidates swaps the persisted candidate set for a transaction in
// one database transaction. No candidate history is kept, each matching
// run fully replaces the previous ranking.
func (d Datasource) ReplaceCandidates(ctx context.Context, tenantID, transactionID string, candidates []*model.Candidate) error {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Replacing candidates")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM candidates WHERE tenant_id = $1 AND transaction_id = $2
	`, tenantID, transactionID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, c := range candidates {
		if c.CandidateID == "" {
			c.CandidateID = GenerateUUIDWithSuffix("cnd")
		}
		reasons, err := json.Marshal(c.Reasons)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO candidates (
				candidate_id, tenant_id, transaction_id, receivable_id, score,
				reasons, erp_id, customer_name, amount, emission_date
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			c.CandidateID, tenantID, transactionID, c.ReceivableID, c.Score,
			reasons, c.ErpID, c.CustomerName, c.Amount, c.EmissionDate,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetCandidates returns the persisted ranking for a transaction, best
// score first.
func (d Datasource) GetCandidates(ctx context.Context, tenantID, transactionID string) ([]*model.Candidate, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Fetching candidates")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT candidate_id, tenant_id, transaction_id, receivable_id, score,
			reasons, erp_id, customer_name, amount, emission_date, created_at
		FROM candidates
		WHERE tenant_id = $1 AND transaction_id = $2
		ORDER BY score DESC, id ASC
	`, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Candidate
	for rows.Next() {
		c := &model.Candidate{}
		var reasons []byte
		var customerName sql.NullString
		err = rows.Scan(
			&c.CandidateID, &c.TenantID, &c.TransactionID, &c.ReceivableID, &c.Score,
			&reasons, &c.ErpID, &customerName, &c.Amount, &c.EmissionDate, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		c.CustomerName = customerName.String
		if len(reasons) > 0 {
			if err := json.Unmarshal(reasons, &c.Reasons); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCandidates drops every persisted candidate for a transaction.
func (d Datasource) DeleteCandidates(ctx context.Context, tenantID, transactionID string) error {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Deleting candidates")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM candidates WHERE tenant_id = $1 AND transaction_id = $2
	`, tenantID, transactionID)
	return err
}
