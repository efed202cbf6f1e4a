package types

import (
	"time"
)

// ReminderKind identifies one of the fixed-offset reminder categories relative
// to an invoice's due date.
type ReminderKind string

const (
	ReminderBeforeDue ReminderKind = "before_due"
	ReminderOnDue     ReminderKind = "on_due"
	ReminderAfterDue  ReminderKind = "after_due"
)

// DueDateLayout is the wire format for invoice due dates (date only, no time
// component). Due dates are interpreted at midnight UTC.
const DueDateLayout = "2006-01-02"

// ReminderIdempotencyKey builds the deterministic idempotency key for one
// reminder instance. Identical inputs always yield the identical key, across
// process restarts and duplicate schedule calls, so the event log can be used
// to detect prior sends.
func ReminderIdempotencyKey(invoiceID string, kind ReminderKind, dueDate string) string {
	return "reminder:" + invoiceID + ":" + string(kind) + ":" + dueDate
}

// ReminderInstance is a single pending or delivered reminder for an invoice.
// ScheduledAt is an absolute instant in epoch milliseconds. An instance is
// never deleted once created; Sent is the only field that changes, and the
// only transition is false -> true.
type ReminderInstance struct {
	Kind           ReminderKind `json:"reminder_type"`
	ScheduledAt    int64        `json:"scheduled_at"`
	IdempotencyKey string       `json:"idempotency_key"`
	Sent           bool         `json:"sent"`
}

// ScheduledTime returns the instant this instance should fire.
func (i ReminderInstance) ScheduledTime() time.Time {
	return time.UnixMilli(i.ScheduledAt).UTC()
}

// ReminderSchedule holds the reminder plan for one invoice. DueDate is the
// due date snapshot taken at schedule-creation time; it is only used to derive
// idempotency keys and is never re-read from the invoice afterwards.
//
// Cancelled is a cross-cutting terminal override: once set, no pending
// instance in this schedule ever transitions to sent, but the record itself is
// retained for audit and idempotency purposes. Instances already sent stay
// sent; cancellation does not erase history.
type ReminderSchedule struct {
	InvoiceID string             `json:"invoice_id"`
	DueDate   string             `json:"due_date"`
	Reminders []ReminderInstance `json:"reminders"`
	Cancelled bool               `json:"cancelled"`
}

// NextPending returns the minimum ScheduledAt among unsent instances, or
// (0, false) if the schedule is cancelled or fully delivered.
func (s *ReminderSchedule) NextPending() (int64, bool) {
	if s == nil || s.Cancelled {
		return 0, false
	}
	var (
		min   int64
		found bool
	)
	for _, inst := range s.Reminders {
		if inst.Sent {
			continue
		}
		if !found || inst.ScheduledAt < min {
			min = inst.ScheduledAt
			found = true
		}
	}
	return min, found
}

// TenantState is the entire durable state of one tenant's scheduler actor:
// a mapping from invoice ID to its reminder schedule. It is read fully into
// memory on each invocation and rewritten to durable storage as a whole after
// each mutation.
type TenantState map[string]*ReminderSchedule

// InvoiceStatus is the lifecycle status of an invoice as owned by the
// relational store. The scheduler only cares about whether a status still
// warrants reminders.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Remindable reports whether an invoice in this status should still receive
// payment reminders. Paid and void invoices never do, independent of the
// schedule's cancelled flag (defense in depth).
func (s InvoiceStatus) Remindable() bool {
	return s != InvoiceStatusPaid && s != InvoiceStatusVoid
}

// Invoice is the read model the scheduler needs to send a reminder: invoice
// status and amount plus the client contact and the tenant's business profile
// display name. Owned by the external relational store; the scheduler never
// writes it.
type Invoice struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	Number       string        `json:"number"`
	Status       InvoiceStatus `json:"status"`
	DueDate      time.Time     `json:"due_date"`
	Currency     string        `json:"currency"`
	AmountCents  int64         `json:"amount_cents"`
	ClientName   string        `json:"client_name"`
	ClientEmail  string        `json:"client_email"`
	BusinessName string        `json:"business_name"`
}

// EventReminderSent is the event log entry type appended after a successful
// reminder delivery. Its payload carries the idempotency key that future
// idempotence checks look up.
const EventReminderSent = "reminder_sent"

// Event is one entry in the append-only domain event log.
type Event struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	InvoiceID string         `json:"invoice_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// EmailAddress is a sender or recipient identity.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// SendInput is the provider-agnostic outbound email request.
type SendInput struct {
	To      EmailAddress
	From    EmailAddress
	Subject string
	HTML    string
	Text    string
	// ReferenceID correlates the provider message with the reminder's
	// idempotency key for later audit.
	ReferenceID string
}
