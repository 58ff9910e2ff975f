package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestTemplateEngine_RenderConfirmed(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateAppointmentConfirmed, map[string]string{
		"name":         "Laura",
		"date":         "2026-09-15",
		"start":        "14:20",
		"end":          "14:40",
		"cancel_hours": "2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "2026-09-15") {
		t.Errorf("expected date in subject, got %q", subject)
	}
	if !strings.Contains(body, "Laura") || !strings.Contains(body, "14:20") {
		t.Errorf("expected rendered fields in body, got %q", body)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("expected all placeholders replaced, got %q", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	_, _, err := e.Render("nope", nil)
	if err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	_, body, err := e.Render(TemplateMeetingReady, map[string]string{"name": "Laura"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{join_url}}") {
		t.Error("expected absent keys to stay as placeholders")
	}
}

func TestTemplateEngine_RegisterOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: TemplateMeetingReady, Subject: "custom", Body: "custom"})
	subject, _, err := e.Render(TemplateMeetingReady, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "custom" {
		t.Errorf("expected overridden subject, got %q", subject)
	}
}

func TestNotifier_SendsRenderedEmail(t *testing.T) {
	mock := &MockEmailSender{}
	n := NewNotifier(mock, NewTemplateEngine(), zerolog.Nop())

	n.Send(context.Background(), TemplateAppointmentCancelled, "laura@example.com", map[string]string{
		"name":  "Laura",
		"date":  "2026-09-15",
		"start": "14:20",
	})

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "laura@example.com" {
		t.Errorf("unexpected recipient: %s", calls[0].To)
	}
	if !strings.Contains(calls[0].Body, "cancelada") {
		t.Errorf("unexpected body: %q", calls[0].Body)
	}
}

func TestNotifier_SwallowsSendFailure(t *testing.T) {
	mock := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	n := NewNotifier(mock, NewTemplateEngine(), zerolog.Nop())

	// Must not panic or propagate the failure.
	n.Send(context.Background(), TemplateAppointmentConfirmed, "laura@example.com", nil)

	if len(mock.Calls()) != 1 {
		t.Error("expected the send to have been attempted")
	}
}

func TestNotifier_NoRecipientIsNoop(t *testing.T) {
	mock := &MockEmailSender{}
	n := NewNotifier(mock, NewTemplateEngine(), zerolog.Nop())
	n.Send(context.Background(), TemplateAppointmentConfirmed, "", nil)
	if len(mock.Calls()) != 0 {
		t.Error("expected no email without a recipient")
	}
}
