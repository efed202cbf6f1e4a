package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duepoint/internal/types"
)

func TestShareTokenRepository_GetByInvoice(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{vals: []any{"tok_abc123"}}}
	repo := NewShareTokenRepository(mock)

	token, err := repo.GetByInvoice(context.Background(), "tenant-1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "tok_abc123", token)
	assert.Equal(t, []any{"tenant-1", "inv-1"}, mock.rowArgs)
}

func TestShareTokenRepository_GetByInvoice_NotIssued(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{err: pgx.ErrNoRows}}
	repo := NewShareTokenRepository(mock)

	token, err := repo.GetByInvoice(context.Background(), "tenant-1", "inv-1")
	require.NoError(t, err, "missing token is not an error")
	assert.Empty(t, token)
}

func TestShareTokenRepository_GetByInvoice_DBError(t *testing.T) {
	mock := &mockDBTX{row: &mockRow{err: errors.New("connection refused")}}
	repo := NewShareTokenRepository(mock)

	_, err := repo.GetByInvoice(context.Background(), "tenant-1", "inv-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
