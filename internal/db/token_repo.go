package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"duepoint/internal/types"
)

// ShareTokenRepository reads the opaque public-access tokens issued when an
// invoice is shared with its client. The scheduler only looks tokens up: if
// no token was ever issued there is no shareable link, and a reminder without
// a link is meaningless.
type ShareTokenRepository struct {
	db DBTX
}

// NewShareTokenRepository creates a ShareTokenRepository backed by the given
// database connection (pool or transaction).
func NewShareTokenRepository(db DBTX) *ShareTokenRepository {
	return &ShareTokenRepository{db: db}
}

// GetByInvoice returns the share token previously issued for an invoice, or
// "" when none exists.
func (r *ShareTokenRepository) GetByInvoice(ctx context.Context, tenantID, invoiceID string) (string, error) {
	var token string
	err := r.db.QueryRow(ctx,
		`SELECT token FROM share_tokens
		 WHERE tenant_id = $1 AND invoice_id = $2`,
		tenantID,
		invoiceID,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load share token", err)
	}
	return token, nil
}
