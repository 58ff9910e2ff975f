// Package notification delivers transactional email for the booking flows
// with template rendering and a pluggable sender.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Template identifiers for the built-in booking emails.
const (
	TemplateAppointmentConfirmed = "appointment-confirmed"
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateMeetingReady         = "meeting-ready"
	TemplateMeetingUpdated       = "meeting-updated"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAppointmentConfirmed,
			Name:    "Appointment Confirmed",
			Subject: "Cita confirmada para el {{date}}",
			Body: "Hola {{name}},\n\n" +
				"Tu cita de asesoría quedó agendada para el {{date}} de {{start}} a {{end}}.\n" +
				"Recibirás el enlace de la reunión virtual en un correo aparte.\n\n" +
				"Si no puedes asistir, cancela con al menos {{cancel_hours}} de antelación.",
		},
		{
			ID:      TemplateAppointmentCancelled,
			Name:    "Appointment Cancelled",
			Subject: "Cita del {{date}} cancelada",
			Body: "Hola {{name}},\n\n" +
				"Tu cita del {{date}} a las {{start}} fue cancelada.\n" +
				"Puedes agendar una nueva cita cuando lo necesites.",
		},
		{
			ID:      TemplateMeetingReady,
			Name:    "Meeting Ready",
			Subject: "Enlace de tu cita del {{date}}",
			Body: "Hola {{name}},\n\n" +
				"Este es el enlace para unirte a tu asesoría virtual del {{date}} a las {{start}}:\n\n" +
				"{{join_url}}\n\n" +
				"Conéctate unos minutos antes de la hora.",
		},
		{
			ID:      TemplateMeetingUpdated,
			Name:    "Meeting Updated",
			Subject: "Tu cita cambió de horario",
			Body: "Hola {{name}},\n\n" +
				"Tu cita de asesoría fue reprogramada para el {{date}} de {{start}} a {{end}}.\n" +
				"El enlace de la reunión sigue siendo el mismo:\n\n{{join_url}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
}

// NewSendGridSender creates a sender using the given API key and from address.
func NewSendGridSender(apiKey, fromName, fromAddr string) *SendGridSender {
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		fromAddr: fromAddr,
	}
}

// SendEmail sends a plain-text message to a single recipient.
func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromAddr)
	msg := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, body)

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Notifier renders booking templates and dispatches them by email. Delivery
// failures are logged and swallowed; email is never allowed to fail a booking
// operation.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(sender EmailSender, tpl *TemplateEngine, logger zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, templates: tpl, logger: logger}
}

// Send renders the template and emails the result to the recipient. A missing
// sender (email disabled) is a no-op.
func (n *Notifier) Send(ctx context.Context, templateID, recipient string, data map[string]string) {
	if n == nil || n.sender == nil || recipient == "" {
		return
	}

	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		n.logger.Error().Err(err).Str("template", templateID).Msg("render notification")
		return
	}

	if err := n.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		n.logger.Error().Err(err).
			Str("template", templateID).
			Str("recipient", recipient).
			Msg("send notification")
		return
	}

	n.logger.Info().
		Str("template", templateID).
		Str("recipient", recipient).
		Msg("notification sent")
}
