package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duepoint/internal/types"
)

// mockRows implements pgx.Rows over a fixed set of single-column string rows.
type mockRows struct {
	rows    []string
	pos     int
	scanErr error
	rowsErr error
}

func (m *mockRows) Close()                                       {}
func (m *mockRows) Err() error                                   { return m.rowsErr }
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) Next() bool {
	if m.pos >= len(m.rows) {
		return false
	}
	m.pos++
	return true
}
func (m *mockRows) Scan(dest ...any) error {
	if m.scanErr != nil {
		return m.scanErr
	}
	*(dest[0].(*string)) = m.rows[m.pos-1]
	return nil
}
func (m *mockRows) Values() ([]any, error) { return nil, nil }
func (m *mockRows) RawValues() [][]byte    { return nil }
func (m *mockRows) Conn() *pgx.Conn        { return nil }

func TestInvoiceRepository_GetForReminder(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	mock := &mockDBTX{row: &mockRow{vals: []any{
		"inv-1", "tenant-1", "INV-0042", types.InvoiceStatusSent, due,
		"USD", int64(125000),
		"Acme Corp", "ap@acme.example",
		"Nguyen Design Studio",
	}}}
	repo := NewInvoiceRepository(mock)

	inv, err := repo.GetForReminder(context.Background(), "tenant-1", "inv-1")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "INV-0042", inv.Number)
	assert.Equal(t, types.InvoiceStatusSent, inv.Status)
	assert.True(t, inv.DueDate.Equal(due))
	assert.Equal(t, int64(125000), inv.AmountCents)
	assert.Equal(t, "ap@acme.example", inv.ClientEmail)
	assert.Equal(t, "Nguyen Design Studio", inv.BusinessName)
	assert.Equal(t, []any{"inv-1", "tenant-1"}, mock.rowArgs)
}

func TestInvoiceRepository_GetForReminder_NotFound(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{err: pgx.ErrNoRows}}
	repo := NewInvoiceRepository(mock)

	inv, err := repo.GetForReminder(context.Background(), "tenant-1", "inv-missing")
	require.NoError(t, err, "a missing invoice is a silent skip, not an error")
	assert.Nil(t, inv)
}

func TestInvoiceRepository_GetForReminder_DBError(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{err: errors.New("connection reset")}}
	repo := NewInvoiceRepository(mock)

	_, err := repo.GetForReminder(context.Background(), "tenant-1", "inv-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestInvoiceRepository_ListTenantsWithOutstandingInvoices(t *testing.T) {
	mock := &mockDBTX{queryRows: &mockRows{rows: []string{"tenant-1", "tenant-2"}}}
	repo := NewInvoiceRepository(mock)

	tenants, err := repo.ListTenantsWithOutstandingInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-1", "tenant-2"}, tenants)
}

func TestInvoiceRepository_ListTenants_Empty(t *testing.T) {
	mock := &mockDBTX{queryRows: &mockRows{}}
	repo := NewInvoiceRepository(mock)

	tenants, err := repo.ListTenantsWithOutstandingInvoices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestInvoiceRepository_ListTenants_QueryError(t *testing.T) {
	mock := &mockDBTX{queryErr: errors.New("timeout")}
	repo := NewInvoiceRepository(mock)

	_, err := repo.ListTenantsWithOutstandingInvoices(context.Background())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
