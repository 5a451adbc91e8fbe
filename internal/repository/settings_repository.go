package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/kanban-service/internal/domain"
)

// SettingsRepository stores per-tenant settings.
type SettingsRepository interface {
	Get(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
	Upsert(ctx context.Context, settings *domain.TenantSettings) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository builds repository.
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{pool: pool}
}

// Get returns the tenant's settings, or defaults when none were ever saved.
func (r *settingsRepository) Get(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	const query = `
        SELECT tenant_id, send_agent_signature, updated_at
        FROM tenant_settings WHERE tenant_id=$1`
	var settings domain.TenantSettings
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&settings.TenantID,
		&settings.SendAgentSignature,
		&settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultTenantSettings(tenantID), nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings *domain.TenantSettings) error {
	const query = `
        INSERT INTO tenant_settings (tenant_id, send_agent_signature, updated_at)
        VALUES ($1,$2,NOW())
        ON CONFLICT (tenant_id) DO UPDATE
            SET send_agent_signature=EXCLUDED.send_agent_signature, updated_at=NOW()
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		settings.TenantID,
		settings.SendAgentSignature,
	).Scan(&settings.UpdatedAt)
}
