package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"duepoint/internal/types"
)

// EventRepository provides access to the append-only domain event log. The
// log is the cross-cutting source of truth for reminder idempotence: a
// reminder_sent event carrying an idempotency key proves that key's reminder
// was already delivered, no matter which process delivered it. The event row
// doubles as the delivery claim: whichever process inserts it first owns the
// send, so the API's timer wakeups and the sweeper never double-deliver.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates an EventRepository backed by the given database
// connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// ReminderSentExists performs the idempotence point lookup: does a
// reminder_sent event with this exact idempotency key exist for the tenant.
func (r *EventRepository) ReminderSentExists(ctx context.Context, tenantID, idempotencyKey string) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx,
		`SELECT 1 FROM events
		 WHERE tenant_id = $1
		   AND event_type = $2
		   AND payload->>'idempotency_key' = $3
		 LIMIT 1`,
		tenantID,
		types.EventReminderSent,
		idempotencyKey,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to query event log", err)
	}
	return true, nil
}

// InsertReminderSentIfNotExists atomically claims the idempotency key by
// appending its reminder_sent event, using INSERT ... ON CONFLICT DO NOTHING.
// Returns created=false when an event with the same key already exists, which
// means some other pass (timer wakeup in one process, sweep in another)
// delivered or is delivering this reminder.
//
// The conflict arbiter is the unique expression index on
// (tenant_id, event_type, (payload->>'idempotency_key')); without it the
// insert is not atomic and concurrent passes can double-send.
func (r *EventRepository) InsertReminderSentIfNotExists(ctx context.Context, tenantID, invoiceID string, kind types.ReminderKind, idempotencyKey string) (bool, error) {
	payload, err := json.Marshal(map[string]any{
		"reminder_type":   kind,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode event payload", err)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO events (id, tenant_id, invoice_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (tenant_id, event_type, ((payload->>'idempotency_key'))) DO NOTHING`,
		"evt_"+uuid.NewString(),
		tenantID,
		invoiceID,
		types.EventReminderSent,
		payload,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to append event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteReminderSent releases a claim whose send attempt failed, so the
// reminder becomes eligible for the next wakeup or sweep. Only ever called for
// a claim this pass created itself.
func (r *EventRepository) DeleteReminderSent(ctx context.Context, tenantID, idempotencyKey string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM events
		 WHERE tenant_id = $1
		   AND event_type = $2
		   AND payload->>'idempotency_key' = $3`,
		tenantID,
		types.EventReminderSent,
		idempotencyKey,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release delivery claim", err)
	}
	return nil
}
