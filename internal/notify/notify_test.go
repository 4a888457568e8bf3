package notify_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"relaydesk/internal/domain"
	"relaydesk/internal/notify"
)

type fakeMailer struct {
	failFor map[string]bool
	sent    []string
}

func (m *fakeMailer) Send(_ context.Context, toEmail, _, _ string) error {
	if m.failFor[toEmail] {
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, toEmail)
	return nil
}

type fakeSink struct {
	failFor  map[string]bool
	recorded []domain.Notification
}

func (s *fakeSink) Record(_ context.Context, n domain.Notification) error {
	if s.failFor[n.ToID] {
		return errors.New("insert failed")
	}
	s.recorded = append(s.recorded, n)
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func participants() []domain.ParticipantRecord {
	return []domain.ParticipantRecord{
		{IdentityKey: "mo@corp.test", UserID: "u-mo", Role: domain.RoleManager, Name: "Mo"},
		{IdentityKey: "tia@corp.test", UserID: "u-tia", Role: domain.RoleTeamLead, Name: "Tia"},
		{IdentityKey: "eli@corp.test", UserID: "u-eli", Role: domain.RoleEmployee, Name: "Eli"},
	}
}

func TestDispatchExcludesActor(t *testing.T) {
	mail := &fakeMailer{}
	sink := &fakeSink{}
	d := &notify.Dispatcher{Mail: mail, Sink: sink, Logger: quietLogger()}
	d.Dispatch(context.Background(), notify.Event{
		Kind:         "status.updated",
		Actor:        domain.Actor{ID: "u-mo", Email: "MO@Corp.Test"},
		Participants: participants(),
		Subject:      "Status updated",
		Message:      "signed",
	})
	// Actor exclusion works on the normalized email.
	if len(mail.sent) != 2 {
		t.Fatalf("sent %d mails, want 2: %v", len(mail.sent), mail.sent)
	}
	for _, to := range mail.sent {
		if to == "mo@corp.test" {
			t.Fatal("actor received their own notification")
		}
	}
	if len(sink.recorded) != 2 {
		t.Fatalf("recorded %d notifications, want 2", len(sink.recorded))
	}
	for _, n := range sink.recorded {
		if n.FromID != "u-mo" {
			t.Fatalf("from = %s", n.FromID)
		}
	}
}

func TestDispatchContainsPerRecipientFailure(t *testing.T) {
	mail := &fakeMailer{failFor: map[string]bool{"tia@corp.test": true}}
	sink := &fakeSink{}
	d := &notify.Dispatcher{Mail: mail, Sink: sink, Logger: quietLogger()}
	d.Dispatch(context.Background(), notify.Event{
		Kind:         "feedback.added",
		Actor:        domain.Actor{ID: "u-mo", Email: "mo@corp.test"},
		Participants: participants(),
	})
	// Tia's failed mail must not block Eli's mail or Tia's in-app record.
	if len(mail.sent) != 1 || mail.sent[0] != "eli@corp.test" {
		t.Fatalf("sent = %v", mail.sent)
	}
	if len(sink.recorded) != 2 {
		t.Fatalf("recorded %d notifications, want 2", len(sink.recorded))
	}
}

func TestDispatchSinkFailureDoesNotBlockMail(t *testing.T) {
	mail := &fakeMailer{}
	sink := &fakeSink{failFor: map[string]bool{"u-tia": true}}
	d := &notify.Dispatcher{Mail: mail, Sink: sink, Logger: quietLogger()}
	d.Dispatch(context.Background(), notify.Event{
		Kind:         "task.delegated",
		Actor:        domain.Actor{ID: "u-mo", Email: "mo@corp.test"},
		Participants: participants(),
	})
	if len(mail.sent) != 2 {
		t.Fatalf("sent = %v", mail.sent)
	}
	if len(sink.recorded) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(sink.recorded))
	}
}

func TestDispatchNilSinks(t *testing.T) {
	d := &notify.Dispatcher{Logger: quietLogger()}
	// Must not panic with neither delivery form wired.
	d.Dispatch(context.Background(), notify.Event{
		Actor:        domain.Actor{ID: "u-mo", Email: "mo@corp.test"},
		Participants: participants(),
	})
}
