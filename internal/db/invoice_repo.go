package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"duepoint/internal/types"
)

// InvoiceRepository reads invoice, client, and tenant business-profile data
// owned by the invoicing application. The scheduler never writes these tables.
type InvoiceRepository struct {
	db DBTX
}

// NewInvoiceRepository creates an InvoiceRepository backed by the given
// database connection (pool or transaction).
func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// GetForReminder returns the invoice joined with its client contact and the
// tenant's business display name -- everything a reminder send needs in one
// lookup. Returns (nil, nil) when the invoice does not exist or belongs to a
// different tenant; the caller treats that as a silent skip.
func (r *InvoiceRepository) GetForReminder(ctx context.Context, tenantID, invoiceID string) (*types.Invoice, error) {
	var inv types.Invoice
	err := r.db.QueryRow(ctx,
		`SELECT i.id, i.tenant_id, i.number, i.status, i.due_date,
		        i.currency, i.amount_cents,
		        c.name, c.email,
		        t.display_name
		 FROM invoices i
		 JOIN clients c ON c.id = i.client_id
		 JOIN tenants t ON t.id = i.tenant_id
		 WHERE i.id = $1 AND i.tenant_id = $2`,
		invoiceID,
		tenantID,
	).Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.Number,
		&inv.Status,
		&inv.DueDate,
		&inv.Currency,
		&inv.AmountCents,
		&inv.ClientName,
		&inv.ClientEmail,
		&inv.BusinessName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load invoice for reminder", err)
	}
	return &inv, nil
}

// ListTenantsWithOutstandingInvoices returns the tenant IDs that have at
// least one unpaid, reminder-enabled invoice. This drives the catch-up sweep:
// each returned tenant gets a direct process invocation regardless of whether
// its own wakeup timer survived.
func (r *InvoiceRepository) ListTenantsWithOutstandingInvoices(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT tenant_id
		 FROM invoices
		 WHERE status NOT IN ('draft', 'paid', 'void')
		   AND reminders_enabled
		 ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tenants with outstanding invoices", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tenant id", err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate tenant ids", err)
	}
	return tenants, nil
}
