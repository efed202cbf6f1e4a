// Package handlers contains the HTTP handler implementations for the DuePoint
// API. Handlers depend on locally defined service interfaces and register
// their own routes on the v1 router.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"duepoint/internal/core"
	"duepoint/internal/scheduler"
	"duepoint/internal/types"
)

// ReminderService defines the per-tenant scheduler operations the handler
// exposes. Mirrors the concrete scheduler.Scheduler methods used here.
type ReminderService interface {
	Schedule(ctx context.Context, tenantID, invoiceID, dueDate string) (int, error)
	Cancel(ctx context.Context, tenantID, invoiceID string) error
	Status(ctx context.Context, tenantID, invoiceID string) (*types.ReminderSchedule, error)
	StatusAll(ctx context.Context, tenantID string) (types.TenantState, error)
}

// ReminderInvoker serializes operations against a tenant's actor. All
// mutating calls go through Invoke so no two invocations for the same tenant
// run concurrently; Process additionally runs the full processing pass.
type ReminderInvoker interface {
	Invoke(ctx context.Context, tenantID string, op func(ctx context.Context) error) error
	Process(ctx context.Context, tenantID string) (scheduler.ProcessResult, error)
}

// ScheduleReminderRequest is the request body for
// POST /v1/tenants/{tenantID}/reminders/schedule.
type ScheduleReminderRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required,max=100"`
	DueDate   string `json:"due_date" validate:"required,datetime=2006-01-02"`
}

// CancelReminderRequest is the request body for
// POST /v1/tenants/{tenantID}/reminders/cancel.
type CancelReminderRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required,max=100"`
}

// ScheduleReminderResponse reports how many reminder instances were created.
type ScheduleReminderResponse struct {
	Scheduled int `json:"scheduled"`
}

// CancelReminderResponse acknowledges a cancellation.
type CancelReminderResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ReminderHandler manages the reminder scheduling endpoints.
type ReminderHandler struct {
	service   ReminderService
	invoker   ReminderInvoker
	validator *core.Validator
	logger    *slog.Logger
}

// NewReminderHandler creates a ReminderHandler with the provided dependencies.
func NewReminderHandler(service ReminderService, invoker ReminderInvoker, validator *core.Validator, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{
		service:   service,
		invoker:   invoker,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts reminder routes on the provided chi.Router.
func (h *ReminderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tenants/{tenantID}/reminders", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/schedule", h.Schedule)
		r.Post("/cancel", h.Cancel)
		r.Post("/process", h.Process)
	})
}

// Schedule handles POST /v1/tenants/{tenantID}/reminders/schedule.
func (h *ReminderHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req ScheduleReminderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ctx := types.WithTenantID(r.Context(), tenantID)

	var scheduled int
	err = h.invoker.Invoke(ctx, tenantID, func(ctx context.Context) error {
		var opErr error
		scheduled, opErr = h.service.Schedule(ctx, tenantID, req.InvoiceID, req.DueDate)
		return opErr
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ScheduleReminderResponse{Scheduled: scheduled}})
}

// Cancel handles POST /v1/tenants/{tenantID}/reminders/cancel. Cancelling an
// invoice with no schedule is a success; it is treated as already cancelled.
func (h *ReminderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CancelReminderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ctx := types.WithTenantID(r.Context(), tenantID)

	err = h.invoker.Invoke(ctx, tenantID, func(ctx context.Context) error {
		return h.service.Cancel(ctx, tenantID, req.InvoiceID)
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CancelReminderResponse{Cancelled: true}})
}

// Process handles POST /v1/tenants/{tenantID}/reminders/process. It runs the
// same processing pass a wakeup or sweep would and reports its counts.
func (h *ReminderHandler) Process(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ctx := types.WithTenantID(r.Context(), tenantID)

	result, err := h.invoker.Process(ctx, tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// Status handles GET /v1/tenants/{tenantID}/reminders. With an invoice_id
// query parameter it returns that invoice's schedule (null when none exists);
// without one it returns the tenant's entire scheduler state. Read-only.
func (h *ReminderHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ctx := types.WithTenantID(r.Context(), tenantID)

	if invoiceID := r.URL.Query().Get("invoice_id"); invoiceID != "" {
		schedule, err := h.service.Status(ctx, tenantID, invoiceID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: schedule})
		return
	}

	state, err := h.service.StatusAll(ctx, tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: state})
}

// tenantFromRequest extracts and validates the tenant path parameter.
func tenantFromRequest(r *http.Request) (string, error) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidTenant,
			"tenant identifier is required",
			nil,
		)
	}
	return tenantID, nil
}
