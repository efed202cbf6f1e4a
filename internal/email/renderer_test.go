package email

import (
	"strings"
	"testing"
	"time"

	"duepoint/internal/types"
)

func testInvoice() *types.Invoice {
	return &types.Invoice{
		ID:           "inv-1",
		TenantID:     "tenant-1",
		Number:       "INV-0042",
		Status:       types.InvoiceStatusSent,
		DueDate:      time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Currency:     "USD",
		AmountCents:  125000,
		ClientName:   "Acme Corp",
		ClientEmail:  "ap@acme.example",
		BusinessName: "Nguyen Design Studio",
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(RendererConfig{
		FromAddr: "billing@duepoint.io",
		FromName: "DuePoint Billing",
	})
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	return r
}

func TestRendererRenderAllKinds(t *testing.T) {
	r := newTestRenderer(t)

	kinds := []types.ReminderKind{
		types.ReminderBeforeDue,
		types.ReminderOnDue,
		types.ReminderAfterDue,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			rendered, err := r.Render(kind, testInvoice(), "https://pay.duepoint.io/s/tok123")
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}
			if rendered.Subject == "" {
				t.Error("Subject should not be empty")
			}
			if !strings.Contains(rendered.Subject, "INV-0042") {
				t.Errorf("Subject should reference invoice number, got %q", rendered.Subject)
			}
			if !strings.Contains(rendered.BodyHTML, "USD 1250.00") {
				t.Error("BodyHTML should contain the formatted amount")
			}
			if !strings.Contains(rendered.BodyText, "https://pay.duepoint.io/s/tok123") {
				t.Error("BodyText should contain the share link")
			}
			if !strings.Contains(rendered.BodyHTML, "March 10, 2024") {
				t.Error("BodyHTML should contain the long-form due date")
			}
		})
	}
}

func TestRendererOmitsLinkWhenNoShareURL(t *testing.T) {
	r := newTestRenderer(t)

	rendered, err := r.Render(types.ReminderOnDue, testInvoice(), "")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(rendered.BodyHTML, "View and pay invoice") {
		t.Error("BodyHTML should omit the pay button without a share URL")
	}
	if strings.Contains(rendered.BodyText, "View and pay the invoice here") {
		t.Error("BodyText should omit the pay link without a share URL")
	}
}

func TestRendererSubjectsPerKind(t *testing.T) {
	r := newTestRenderer(t)
	inv := testInvoice()

	cases := map[types.ReminderKind]string{
		types.ReminderBeforeDue: "Upcoming payment",
		types.ReminderOnDue:     "due today",
		types.ReminderAfterDue:  "Overdue",
	}
	for kind, want := range cases {
		rendered, err := r.Render(kind, inv, "")
		if err != nil {
			t.Fatalf("Render(%s) error: %v", kind, err)
		}
		if !strings.Contains(rendered.Subject, want) {
			t.Errorf("Render(%s) subject = %q, want substring %q", kind, rendered.Subject, want)
		}
	}
}

func TestRendererNilInvoice(t *testing.T) {
	r := newTestRenderer(t)
	if _, err := r.Render(types.ReminderOnDue, nil, ""); err == nil {
		t.Error("expected error for nil invoice")
	}
}

func TestRendererSender(t *testing.T) {
	r := newTestRenderer(t)
	sender := r.Sender()
	if sender.Address != "billing@duepoint.io" || sender.Name != "DuePoint Billing" {
		t.Errorf("unexpected sender identity: %+v", sender)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		currency string
		cents    int64
		want     string
	}{
		{"USD", 125000, "USD 1250.00"},
		{"EUR", 5, "EUR 0.05"},
		{"GBP", -990, "GBP -9.90"},
		{"USD", 0, "USD 0.00"},
	}
	for _, c := range cases {
		if got := FormatAmount(c.currency, c.cents); got != c.want {
			t.Errorf("FormatAmount(%s, %d) = %q, want %q", c.currency, c.cents, got, c.want)
		}
	}
}
