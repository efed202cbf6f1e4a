// Package scheduler implements the durable per-tenant reminder scheduler.
// Each tenant's schedules live in a single durable state blob that is read
// fully, mutated in memory, and written back as a whole. Delivery is made
// idempotent through the append-only event log: each reminder's deterministic
// idempotency key is claimed with an atomic insert immediately before the
// send, so at most one pass ever delivers it, even when passes from separate
// processes overlap.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"duepoint/internal/email"
	"duepoint/internal/types"
)

// StateStore persists a tenant's full scheduler state.
type StateStore interface {
	Load(ctx context.Context, tenantID string) (types.TenantState, error)
	Save(ctx context.Context, tenantID string, state types.TenantState) error
}

// InvoiceReader fetches the invoice read model needed to send a reminder.
// Returns (nil, nil) when the invoice does not exist.
type InvoiceReader interface {
	GetForReminder(ctx context.Context, tenantID, invoiceID string) (*types.Invoice, error)
}

// EventLog is the append-only delivery ledger. ReminderSentExists is the
// cheap point lookup that makes redundant wakeups harmless;
// InsertReminderSentIfNotExists is the atomic claim that makes concurrent
// passes from separate processes safe. The insert must be atomic (created is
// true for exactly one caller per key), because the API's actor runtime and
// the sweeper each serialize only their own process. DeleteReminderSent
// releases a claim whose send attempt failed.
type EventLog interface {
	ReminderSentExists(ctx context.Context, tenantID, idempotencyKey string) (bool, error)
	InsertReminderSentIfNotExists(ctx context.Context, tenantID, invoiceID string, kind types.ReminderKind, idempotencyKey string) (bool, error)
	DeleteReminderSent(ctx context.Context, tenantID, idempotencyKey string) error
}

// ShareTokenReader looks up the public sharing token for an invoice.
// Returns "" when no token has been issued.
type ShareTokenReader interface {
	GetByInvoice(ctx context.Context, tenantID, invoiceID string) (string, error)
}

// EmailRenderer renders a reminder into subject and body content.
type EmailRenderer interface {
	Render(kind types.ReminderKind, inv *types.Invoice, shareURL string) (*email.RenderedEmail, error)
	Sender() types.EmailAddress
}

// WakeupProgrammer owns the single wakeup slot per tenant. Program always
// overwrites any previously programmed instant; Clear drops the slot so the
// tenant goes dormant.
type WakeupProgrammer interface {
	Program(tenantID string, at time.Time)
	Clear(tenantID string)
}

// Config carries the scheduler's fixed offsets and link settings.
type Config struct {
	BeforeDueDays int
	AfterDueDays  int
	// ShareBaseURL is the public base URL for invoice share links, without
	// a trailing slash.
	ShareBaseURL string
}

// Scheduler implements the schedule, cancel, process, and status operations
// for all tenants. It holds no per-tenant state of its own; callers must
// serialize invocations per tenant (see the actor runtime).
type Scheduler struct {
	cfg      Config
	states   StateStore
	invoices InvoiceReader
	events   EventLog
	tokens   ShareTokenReader
	renderer EmailRenderer
	emails   types.EmailProvider
	wakeups  WakeupProgrammer
	metrics  Metrics
	clock    types.Clock
	logger   *slog.Logger
}

// Deps bundles the collaborators a Scheduler needs.
type Deps struct {
	States   StateStore
	Invoices InvoiceReader
	Events   EventLog
	Tokens   ShareTokenReader
	Renderer EmailRenderer
	Emails   types.EmailProvider
	Wakeups  WakeupProgrammer
	Metrics  Metrics
	Clock    types.Clock
	Logger   *slog.Logger
}

// New constructs a Scheduler. Nil Metrics, Clock, and Logger fall back to
// no-op metrics, the real UTC clock, and the default slog logger.
func New(cfg Config, deps Deps) *Scheduler {
	if deps.Metrics == nil {
		deps.Metrics = NoopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		states:   deps.States,
		invoices: deps.Invoices,
		events:   deps.Events,
		tokens:   deps.Tokens,
		renderer: deps.Renderer,
		emails:   deps.Emails,
		wakeups:  deps.Wakeups,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Schedule creates or replaces the reminder schedule for an invoice and
// returns the number of reminder instances actually scheduled (0 to 3).
//
// Candidate instants are derived from the due date at fixed offsets. The
// before_due and on_due candidates are dropped unless strictly in the future;
// after_due is always kept so the catch-up sweep can deliver it even when
// scheduling happens late. An existing schedule for the invoice is replaced
// wholesale, never merged.
func (s *Scheduler) Schedule(ctx context.Context, tenantID, invoiceID, dueDate string) (int, error) {
	due, err := time.ParseInLocation(types.DueDateLayout, dueDate, time.UTC)
	if err != nil {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidDueDate,
			"due_date must be a valid ISO date (YYYY-MM-DD)",
			err,
		)
	}

	now := s.clock.Now()

	candidates := []struct {
		kind   types.ReminderKind
		at     time.Time
		always bool
	}{
		{types.ReminderBeforeDue, due.AddDate(0, 0, -s.cfg.BeforeDueDays), false},
		{types.ReminderOnDue, due, false},
		{types.ReminderAfterDue, due.AddDate(0, 0, s.cfg.AfterDueDays), true},
	}

	schedule := &types.ReminderSchedule{
		InvoiceID: invoiceID,
		DueDate:   dueDate,
	}
	for _, c := range candidates {
		if !c.always && !c.at.After(now) {
			continue
		}
		schedule.Reminders = append(schedule.Reminders, types.ReminderInstance{
			Kind:           c.kind,
			ScheduledAt:    c.at.UnixMilli(),
			IdempotencyKey: types.ReminderIdempotencyKey(invoiceID, c.kind, dueDate),
		})
	}

	state, err := s.states.Load(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	state[invoiceID] = schedule

	if err := s.states.Save(ctx, tenantID, state); err != nil {
		return 0, err
	}

	s.programWakeup(tenantID, state, time.Time{})

	s.logger.Info("reminder schedule created",
		"tenant_id", tenantID,
		"invoice_id", invoiceID,
		"due_date", dueDate,
		"scheduled", len(schedule.Reminders),
	)
	return len(schedule.Reminders), nil
}

// Cancel marks the invoice's schedule as cancelled. Calling it again, or
// calling it for an invoice with no schedule, is a no-op.
//
// The wakeup timer is deliberately not recomputed here. A stale wakeup may
// still fire for the cancelled invoice; Process skips cancelled schedules and
// re-derives the next wakeup from live state, so the wasted wakeup self-heals
// within one cycle.
func (s *Scheduler) Cancel(ctx context.Context, tenantID, invoiceID string) error {
	state, err := s.states.Load(ctx, tenantID)
	if err != nil {
		return err
	}

	schedule, ok := state[invoiceID]
	if !ok || schedule.Cancelled {
		return nil
	}

	schedule.Cancelled = true
	if err := s.states.Save(ctx, tenantID, state); err != nil {
		return err
	}

	s.logger.Info("reminder schedule cancelled",
		"tenant_id", tenantID,
		"invoice_id", invoiceID,
	)
	return nil
}

// ProcessResult reports what a Process invocation did.
type ProcessResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
}

// Process delivers every reminder instance that is due and unsent, then
// persists the mutated state once and reprograms the wakeup to the minimum
// pending instant still in the future.
//
// Process must be safe to invoke redundantly and concurrently with a pass in
// another process. The host cannot guarantee wakeups fire at most once, and
// the sweeper may overlap a timer firing in the API, so each instance is
// guarded by an event-log lookup on its idempotency key and the send itself
// is gated on atomically claiming that key in the log.
//
// Per-instance failures (send rejected, invoice missing or no longer
// remindable, no share token) leave the instance unsent and eligible for the
// next wakeup or sweep. Only storage failures abort the whole operation.
func (s *Scheduler) Process(ctx context.Context, tenantID string) (ProcessResult, error) {
	start := s.clock.Now()

	state, err := s.states.Load(ctx, tenantID)
	if err != nil {
		return ProcessResult{}, err
	}

	now := s.clock.Now()
	var result ProcessResult
	mutated := false

	for invoiceID, schedule := range state {
		if schedule == nil || schedule.Cancelled {
			continue
		}
		for i := range schedule.Reminders {
			inst := &schedule.Reminders[i]
			if inst.Sent || inst.ScheduledAt > now.UnixMilli() {
				continue
			}
			result.Processed++

			sent, delivered := s.processInstance(ctx, tenantID, invoiceID, inst)
			if delivered {
				result.Sent++
			}
			if sent {
				inst.Sent = true
				mutated = true
			}
		}
	}

	if mutated {
		if err := s.states.Save(ctx, tenantID, state); err != nil {
			return ProcessResult{}, err
		}
	}

	s.programWakeup(tenantID, state, now)

	s.metrics.RecordProcess(ctx, result.Processed, result.Sent, s.clock.Now().Sub(start))
	s.logger.Info("reminder processing complete",
		"tenant_id", tenantID,
		"processed", result.Processed,
		"sent", result.Sent,
	)
	return result, nil
}

// processInstance handles one due instance. It returns (markSent, delivered):
// markSent is true when the instance should flip to sent (either a fresh
// delivery or a prior one discovered in the event log); delivered is true only
// for a fresh send.
func (s *Scheduler) processInstance(ctx context.Context, tenantID, invoiceID string, inst *types.ReminderInstance) (bool, bool) {
	log := s.logger.With(
		"tenant_id", tenantID,
		"invoice_id", invoiceID,
		"reminder_type", string(inst.Kind),
		"idempotency_key", inst.IdempotencyKey,
	)

	exists, err := s.events.ReminderSentExists(ctx, tenantID, inst.IdempotencyKey)
	if err != nil {
		// Cannot prove the reminder was not already delivered, so do not
		// send. The instance stays pending for the next cycle.
		log.Warn("event log lookup failed, skipping instance", "error", err)
		return false, false
	}
	if exists {
		log.Info("reminder already delivered, marking sent without re-sending")
		return true, false
	}

	inv, err := s.invoices.GetForReminder(ctx, tenantID, invoiceID)
	if err != nil {
		log.Warn("invoice lookup failed, skipping instance", "error", err)
		return false, false
	}
	if inv == nil {
		log.Warn("invoice not found, skipping instance")
		return false, false
	}
	if !inv.Status.Remindable() {
		log.Info("invoice no longer remindable, skipping instance", "status", string(inv.Status))
		return false, false
	}

	token, err := s.tokens.GetByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		log.Warn("share token lookup failed, skipping instance", "error", err)
		return false, false
	}
	if token == "" {
		log.Info("no share token issued, skipping instance")
		return false, false
	}

	rendered, err := s.renderer.Render(inst.Kind, inv, s.cfg.ShareBaseURL+"/s/"+token)
	if err != nil {
		log.Error("failed to render reminder email", "error", err)
		return false, false
	}

	// Claim the key before sending. The exists lookup above is only a fast
	// path; a timer wakeup in the API and a sweep pass in the sweeper can
	// both reach this point for the same instance, and only the pass whose
	// insert lands owns the send.
	created, err := s.events.InsertReminderSentIfNotExists(ctx, tenantID, invoiceID, inst.Kind, inst.IdempotencyKey)
	if err != nil {
		log.Warn("failed to claim delivery, skipping instance", "error", err)
		return false, false
	}
	if !created {
		log.Info("reminder claimed by a concurrent pass, marking sent without re-sending")
		return true, false
	}

	msgID, err := s.emails.Send(ctx, types.SendInput{
		To:          types.EmailAddress{Address: inv.ClientEmail, Name: inv.ClientName},
		From:        s.renderer.Sender(),
		Subject:     rendered.Subject,
		HTML:        rendered.BodyHTML,
		Text:        rendered.BodyText,
		ReferenceID: inst.IdempotencyKey,
	})
	if err != nil {
		s.metrics.RecordSend(ctx, inst.Kind, SendFailure)
		if relErr := s.events.DeleteReminderSent(ctx, tenantID, inst.IdempotencyKey); relErr != nil {
			// The claim stands with no email behind it. The next pass sees
			// it in the ledger and marks the instance sent without sending,
			// so the reminder is lost rather than duplicated.
			log.Error("failed to release delivery claim after send failure", "error", relErr)
			return false, false
		}
		log.Warn("reminder send failed, will retry on next wakeup", "error", err)
		return false, false
	}

	s.metrics.RecordSend(ctx, inst.Kind, SendSuccess)
	log.Info("reminder sent", "provider_message_id", msgID)
	return true, true
}

// Status returns the schedule for one invoice, or nil if none exists.
// Read-only; no persistence write, no wakeup change.
func (s *Scheduler) Status(ctx context.Context, tenantID, invoiceID string) (*types.ReminderSchedule, error) {
	state, err := s.states.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return state[invoiceID], nil
}

// StatusAll returns the tenant's entire scheduler state.
func (s *Scheduler) StatusAll(ctx context.Context, tenantID string) (types.TenantState, error) {
	return s.states.Load(ctx, tenantID)
}

// programWakeup reprograms the tenant's single wakeup slot to the minimum
// pending instant across the whole state, or clears it when nothing is
// pending. When notBefore is non-zero, instants at or before it are excluded;
// Process passes the current time so a due-but-undeliverable instance waits
// for the next sweep instead of re-firing immediately.
func (s *Scheduler) programWakeup(tenantID string, state types.TenantState, notBefore time.Time) {
	var (
		min   int64
		found bool
	)
	floor := int64(0)
	if !notBefore.IsZero() {
		floor = notBefore.UnixMilli()
	}
	for _, schedule := range state {
		if schedule == nil || schedule.Cancelled {
			continue
		}
		for _, inst := range schedule.Reminders {
			if inst.Sent || inst.ScheduledAt <= floor {
				continue
			}
			if !found || inst.ScheduledAt < min {
				min = inst.ScheduledAt
				found = true
			}
		}
	}

	if !found {
		s.wakeups.Clear(tenantID)
		return
	}
	s.wakeups.Program(tenantID, time.UnixMilli(min).UTC())
}
