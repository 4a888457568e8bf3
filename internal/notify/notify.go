// Package notify fans events out to a shared task's participants: one in-app
// notification record and one email per recipient, acting user excluded. Each
// recipient's delivery is independent; a transport failure is logged and never
// reaches the mutation that triggered the fan-out.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"relaydesk/internal/domain"
	"relaydesk/internal/repo"
)

// MailSink delivers one email. Implementations fail per recipient.
type MailSink interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

// NotificationSink records one in-app notification.
type NotificationSink interface {
	Record(ctx context.Context, n domain.Notification) error
}

// StoreSink records notifications through the repo.
type StoreSink struct {
	Repo repo.Repo
}

func (s StoreSink) Record(ctx context.Context, n domain.Notification) error {
	return s.Repo.InsertNotification(ctx, n)
}

// Event is one fan-out request.
type Event struct {
	Kind         string
	Actor        domain.Actor
	Participants []domain.ParticipantRecord
	Subject      string
	Message      string
	Link         string
}

// Dispatcher delivers events to participants. Both sinks are optional; a nil
// sink skips that delivery form.
type Dispatcher struct {
	Mail   MailSink
	Sink   NotificationSink
	Logger *log.Logger
	Now    func() time.Time
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch delivers the event to every participant except the acting user.
// Failures are contained per recipient and per delivery form: one failing
// mail send does not block the recipient's in-app record, the remaining
// recipients, or the caller. Dispatch never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	self := domain.NormalizeEmail(ev.Actor.Email)
	ts := d.now().UTC().Format(time.RFC3339)
	for _, p := range ev.Participants {
		if p.IdentityKey == self {
			continue
		}
		if d.Sink != nil {
			n := domain.Notification{
				ID:        uuid.New().String(),
				FromID:    ev.Actor.ID,
				ToID:      p.UserID,
				Kind:      ev.Kind,
				Message:   ev.Message,
				Link:      ev.Link,
				CreatedAt: ts,
			}
			if err := d.Sink.Record(ctx, n); err != nil {
				d.logger().Printf("notify: record %s for %s: %v", ev.Kind, p.UserID, err)
			}
		}
		if d.Mail != nil {
			if err := d.Mail.Send(ctx, p.IdentityKey, ev.Subject, ev.Message); err != nil {
				d.logger().Printf("notify: mail %s to %s: %v", ev.Kind, p.IdentityKey, err)
			}
		}
	}
}
