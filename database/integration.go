package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.opentelemetry.io/otel"

	"github.com/balazzarini/svelto-app/model"
)

const integrationColumns = `
	integration_id, tenant_id, provider, name, active,
	encrypted_access_token, encrypted_app_secret, settings, created_at, updated_at`

func scanIntegration(row rowScanner) (*model.Integration, error) {
	itg := &model.Integration{}
	var (
		accessToken, appSecret sql.NullString
		settings               []byte
	)

	err := row.Scan(
		&itg.IntegrationID, &itg.TenantID, &itg.Provider, &itg.Name, &itg.Active,
		&accessToken, &appSecret, &settings, &itg.CreatedAt, &itg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	itg.EncryptedAccessToken = accessToken.String
	itg.EncryptedAppSecret = appSecret.String
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &itg.Settings); err != nil {
			return nil, err
		}
	}
	return itg, nil
}

// CreateIntegration persists a new provider connection.
func (d Datasource) CreateIntegration(ctx context.Context, itg *model.Integration) error {
	ctx, span := otel.Tracer("Integration").Start(ctx, "Creating integration")
	defer span.End()

	if itg.IntegrationID == "" {
		itg.IntegrationID = GenerateUUIDWithSuffix("itg")
	}
	settings, err := json.Marshal(itg.Settings)
	if err != nil {
		return err
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO integrations (
			integration_id, tenant_id, provider, name, active,
			encrypted_access_token, encrypted_app_secret, settings
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		itg.IntegrationID, itg.TenantID, itg.Provider, itg.Name, itg.Active,
		itg.EncryptedAccessToken, itg.EncryptedAppSecret, settings,
	)
	return err
}

// GetIntegration retrieves one integration for a tenant.
func (d Datasource) GetIntegration(ctx context.Context, tenantID, integrationID string) (*model.Integration, error) {
	ctx, span := otel.Tracer("Integration").Start(ctx, "Fetching integration")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+integrationColumns+`
		FROM integrations
		WHERE tenant_id = $1 AND integration_id = $2
	`, tenantID, integrationID)
	return scanIntegration(row)
}

// GetActiveIntegrations lists the tenant's active provider connections.
func (d Datasource) GetActiveIntegrations(ctx context.Context, tenantID string) ([]*model.Integration, error) {
	ctx, span := otel.Tracer("Integration").Start(ctx, "Fetching active integrations")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+integrationColumns+`
		FROM integrations
		WHERE tenant_id = $1 AND active = TRUE
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Integration
	for rows.Next() {
		itg, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, itg)
	}
	return out, rows.Err()
}

// UpdateIntegrationSettings stores the typed settings record, including
// the per-domain sync checkpoints.
func (d Datasource) UpdateIntegrationSettings(ctx context.Context, tenantID, integrationID string, settings model.IntegrationSettings) error {
	ctx, span := otel.Tracer("Integration").Start(ctx, "Updating integration settings")
	defer span.End()

	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE integrations
		SET settings = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND integration_id = $2
	`, tenantID, integrationID, raw)
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
