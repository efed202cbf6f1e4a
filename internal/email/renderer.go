// Package email renders reminder emails from invoice data using embedded
// Go templates, one HTML/text pair per reminder kind.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"duepoint/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into Go templates for rendering.
type templateData struct {
	Subject         string
	BusinessName    string
	ClientName      string
	InvoiceNumber   string
	AmountFormatted string
	DueDateLong     string
	ShareURL        string
}

// Renderer performs email template rendering using Go's html/template with
// embedded template files. All three reminder kinds are parsed at startup so
// a broken template fails fast rather than at send time.
type Renderer struct {
	htmlTemplates map[types.ReminderKind]*template.Template
	textTemplates map[types.ReminderKind]*texttemplate.Template
	fromAddr      string
	fromName      string
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	FromAddr string
	FromName string
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template fails to parse.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates: make(map[types.ReminderKind]*template.Template),
		textTemplates: make(map[types.ReminderKind]*texttemplate.Template),
		fromAddr:      cfg.FromAddr,
		fromName:      cfg.FromName,
	}

	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read base.html: %w", err)
	}

	kinds := []types.ReminderKind{
		types.ReminderBeforeDue,
		types.ReminderOnDue,
		types.ReminderAfterDue,
	}

	for _, kind := range kinds {
		name := string(kind)

		htmlContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.html", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.html: %w", name, err)
		}
		htmlTmpl, err := template.New("base").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse base.html: %w", err)
		}
		if _, err := htmlTmpl.Parse(string(htmlContent)); err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", name, err)
		}
		r.htmlTemplates[kind] = htmlTmpl

		txtContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		txtTmpl, err := texttemplate.New(name).Parse(string(txtContent))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.textTemplates[kind] = txtTmpl
	}

	return r, nil
}

// Sender returns the configured sender identity for outbound reminders.
func (r *Renderer) Sender() types.EmailAddress {
	return types.EmailAddress{Address: r.fromAddr, Name: r.fromName}
}

// Render renders the reminder for the given invoice and kind. shareURL is the
// public payment link embedded in the message body; it may be empty, in which
// case the template omits the link section.
func (r *Renderer) Render(kind types.ReminderKind, inv *types.Invoice, shareURL string) (*RenderedEmail, error) {
	if inv == nil {
		return nil, fmt.Errorf("renderer: invoice is nil")
	}

	htmlTmpl, ok := r.htmlTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("renderer: no HTML template for reminder kind %q", kind)
	}
	txtTmpl, ok := r.textTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("renderer: no text template for reminder kind %q", kind)
	}

	data := buildTemplateData(kind, inv, shareURL)

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render HTML for %q: %w", kind, err)
	}

	var txtBuf bytes.Buffer
	if err := txtTmpl.Execute(&txtBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render text for %q: %w", kind, err)
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, nil
}

// buildTemplateData flattens invoice fields into the typed struct the
// templates consume.
func buildTemplateData(kind types.ReminderKind, inv *types.Invoice, shareURL string) templateData {
	business := inv.BusinessName
	if business == "" {
		business = "your service provider"
	}

	var subject string
	switch kind {
	case types.ReminderBeforeDue:
		subject = fmt.Sprintf("Upcoming payment: invoice %s from %s", inv.Number, business)
	case types.ReminderOnDue:
		subject = fmt.Sprintf("Invoice %s from %s is due today", inv.Number, business)
	case types.ReminderAfterDue:
		subject = fmt.Sprintf("Overdue: invoice %s from %s", inv.Number, business)
	default:
		subject = fmt.Sprintf("Payment reminder: invoice %s", inv.Number)
	}

	return templateData{
		Subject:         subject,
		BusinessName:    business,
		ClientName:      inv.ClientName,
		InvoiceNumber:   inv.Number,
		AmountFormatted: FormatAmount(inv.Currency, inv.AmountCents),
		DueDateLong:     inv.DueDate.UTC().Format("January 2, 2006"),
		ShareURL:        shareURL,
	}
}

// FormatAmount renders a minor-unit amount as "CUR 12.34". Negative amounts
// keep the sign in front of the number.
func FormatAmount(currency string, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, cents/100, cents%100)
}
