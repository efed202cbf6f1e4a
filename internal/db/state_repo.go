package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"duepoint/internal/types"
)

// StateRepository persists one tenant's full scheduler state as a single
// JSONB blob keyed by tenant ID. The blob is always read and written whole:
// the single-writer-per-tenant guarantee of the actor runtime makes
// field-level concurrency control unnecessary, and a whole-blob write keeps
// each mutation atomic.
type StateRepository struct {
	db DBTX
}

// NewStateRepository creates a StateRepository backed by the given database
// connection (pool or transaction).
func NewStateRepository(db DBTX) *StateRepository {
	return &StateRepository{db: db}
}

// Load reads the full scheduler state for a tenant. A tenant with no stored
// state yields an empty, non-nil TenantState.
func (r *StateRepository) Load(ctx context.Context, tenantID string) (types.TenantState, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT state FROM scheduler_state WHERE tenant_id = $1`,
		tenantID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.TenantState{}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load tenant scheduler state", err)
	}

	var state types.TenantState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt tenant scheduler state", err)
	}
	if state == nil {
		state = types.TenantState{}
	}
	return state, nil
}

// Save rewrites the full scheduler state for a tenant in one upsert.
func (r *StateRepository) Save(ctx context.Context, tenantID string, state types.TenantState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode tenant scheduler state", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO scheduler_state (tenant_id, state, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (tenant_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		tenantID,
		raw,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save tenant scheduler state", err)
	}
	return nil
}
