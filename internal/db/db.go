// Package db provides PostgreSQL-backed repository implementations for the
// DuePoint service. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
//
// Schema owned by this package:
//
//	scheduler_state (tenant_id TEXT PRIMARY KEY,
//	                 state      JSONB NOT NULL,
//	                 updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())
//
//	events          (id         TEXT PRIMARY KEY,
//	                 tenant_id  TEXT NOT NULL,
//	                 invoice_id TEXT NOT NULL,
//	                 event_type TEXT NOT NULL,
//	                 payload    JSONB NOT NULL,
//	                 created_at TIMESTAMPTZ NOT NULL DEFAULT NOW())
//	                 -- idx_events_idem ON (tenant_id, event_type, (payload->>'idempotency_key'))
//
// The invoices, clients, tenants, and share_tokens tables are owned by the
// invoicing application; this package only reads them.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"duepoint/internal/config"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool tuned per the database configuration.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// Probe adapts a pool to the health check interface.
type Probe struct {
	Pool *pgxpool.Pool
}

// Name identifies the probe in health check responses.
func (Probe) Name() string { return "database" }

// Check pings the database.
func (p Probe) Check(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
