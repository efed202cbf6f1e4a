package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"duepoint/internal/types"
)

// mockDBTX implements DBTX for repository tests. Each call records its SQL
// and arguments and returns the configured results.
type mockDBTX struct {
	execSQL  string
	execArgs []any
	execTag  pgconn.CommandTag
	execErr  error

	rowSQL  string
	rowArgs []any
	row     pgx.Row

	queryErr  error
	queryRows pgx.Rows
}

func (m *mockDBTX) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = sql
	m.execArgs = args
	return m.execTag, m.execErr
}

func (m *mockDBTX) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.queryRows, nil
}

func (m *mockDBTX) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.rowSQL = sql
	m.rowArgs = args
	return m.row
}

// mockRow implements pgx.Row returning fixed scan values or an error.
type mockRow struct {
	vals []any
	err  error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.vals {
		switch d := dest[i].(type) {
		case *[]byte:
			*d = v.([]byte)
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		case *types.InvoiceStatus:
			*d = v.(types.InvoiceStatus)
		default:
			return errors.New("mockRow: unsupported scan destination")
		}
	}
	return nil
}

func TestStateRepository_Load_Empty(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{err: pgx.ErrNoRows}}
	repo := NewStateRepository(mock)

	state, err := repo.Load(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state == nil {
		t.Fatal("expected non-nil empty state for unknown tenant")
	}
	if len(state) != 0 {
		t.Errorf("expected empty state, got %d entries", len(state))
	}
}

func TestStateRepository_Load_RoundTrip(t *testing.T) {
	stored := types.TenantState{
		"inv-1": {
			InvoiceID: "inv-1",
			DueDate:   "2024-03-10",
			Reminders: []types.ReminderInstance{
				{Kind: types.ReminderOnDue, ScheduledAt: 1710028800000, IdempotencyKey: "reminder:inv-1:on_due:2024-03-10"},
			},
		},
	}
	raw, _ := json.Marshal(stored)

	mock := &mockDBTX{row: &mockRow{vals: []any{raw}}}
	repo := NewStateRepository(mock)

	state, err := repo.Load(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, ok := state["inv-1"]
	if !ok {
		t.Fatal("expected inv-1 schedule")
	}
	if sched.Reminders[0].IdempotencyKey != "reminder:inv-1:on_due:2024-03-10" {
		t.Errorf("idempotency key lost in round trip: %+v", sched.Reminders[0])
	}
}

func TestStateRepository_Load_DBError(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{err: errors.New("connection reset")}}
	repo := NewStateRepository(mock)

	_, err := repo.Load(context.Background(), "tenant-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalDB {
		t.Errorf("expected internal_database_error, got %v", err)
	}
}

func TestStateRepository_Save_Upserts(t *testing.T) {
	mock := &mockDBTX{}
	repo := NewStateRepository(mock)

	state := types.TenantState{
		"inv-1": {InvoiceID: "inv-1", DueDate: "2024-03-10", Cancelled: true},
	}
	if err := repo.Save(context.Background(), "tenant-1", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.execArgs[0] != "tenant-1" {
		t.Errorf("expected tenant-1 as first arg, got %v", mock.execArgs[0])
	}
	var roundTrip types.TenantState
	if err := json.Unmarshal(mock.execArgs[1].([]byte), &roundTrip); err != nil {
		t.Fatalf("state blob is not valid JSON: %v", err)
	}
	if !roundTrip["inv-1"].Cancelled {
		t.Error("cancelled flag lost in persisted blob")
	}
}

func TestStateRepository_Save_DBError(t *testing.T) {
	mock := &mockDBTX{execErr: errors.New("disk full")}
	repo := NewStateRepository(mock)

	err := repo.Save(context.Background(), "tenant-1", types.TenantState{})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalDB {
		t.Errorf("expected internal_database_error, got %v", err)
	}
}
