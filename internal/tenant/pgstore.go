package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/jhpark-dev/video-relay/shared/postgresql"
)

// PGStore keeps the tenant → channel mapping in PostgreSQL for deployments
// where the relay runs on more than one host. Expected schema:
//
//	CREATE TABLE tenants (
//	    tenant_id  TEXT PRIMARY KEY,
//	    channel_id TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PGStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPGStore creates a new PGStore instance
func NewPGStore(pg *postgresql.Client, logger *slog.Logger) *PGStore {
	return &PGStore{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// Get returns the destination channel for a tenant, if provisioned.
func (s *PGStore) Get(ctx context.Context, tenantID string) (string, bool, error) {
	query := `SELECT channel_id FROM tenants WHERE tenant_id = $1`

	var channelID string
	err := s.db.GetContext(ctx, &channelID, query, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get tenant: %w", err)
	}

	return channelID, true, nil
}

// Set upserts the tenant's destination channel.
func (s *PGStore) Set(ctx context.Context, tenantID, channelID string) error {
	query := `
		INSERT INTO tenants (tenant_id, channel_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id)
		DO UPDATE SET channel_id = EXCLUDED.channel_id, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, tenantID, channelID); err != nil {
		return fmt.Errorf("failed to set tenant: %w", err)
	}

	s.logger.Info("Tenant destination set",
		slog.String("tenant_id", tenantID),
		slog.String("channel_id", channelID),
	)

	return nil
}

// IsDestination reports whether channelID is the tenant's configured channel.
func (s *PGStore) IsDestination(ctx context.Context, tenantID, channelID string) (bool, error) {
	configured, ok, err := s.Get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return ok && configured == channelID, nil
}

// ListTenantIDs returns all provisioned tenant ids in lexicographic order.
func (s *PGStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	query := `SELECT tenant_id FROM tenants ORDER BY tenant_id`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	return ids, nil
}
