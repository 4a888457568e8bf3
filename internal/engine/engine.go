package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"relaydesk/internal/config"
	"relaydesk/internal/directory"
	"relaydesk/internal/domain"
	"relaydesk/internal/engine/access"
	"relaydesk/internal/events"
	"relaydesk/internal/notify"
	"relaydesk/internal/repo"
)

// Notifier fans an event out to participants. Implementations never fail the
// caller; delivery problems are their own to log.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Directory directory.Directory
	Notifier  Notifier
	Config    *config.Config
	Now       func() time.Time
	// Go runs post-commit work. Defaults to a goroutine; tests may run inline.
	Go func(func())
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	var mail notify.MailSink = notify.LogMailer{}
	if m := notify.NewSMTPMailer(cfg.Mail); m != nil {
		mail = m
	}
	return Engine{
		DB:        db,
		Repo:      r,
		Events:    events.Writer{DB: db},
		Directory: directory.SQL{DB: db, OversightRole: cfg.OversightRole()},
		Notifier: &notify.Dispatcher{
			Mail: mail,
			Sink: notify.StoreSink{Repo: r},
		},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) spawn(f func()) {
	if e.Go != nil {
		e.Go(f)
		return
	}
	go f()
}

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// CreateUser registers a directory record. Admin-only at the API layer.
func (e Engine) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.Name == "" {
		return u, ValidationError{"name is required"}
	}
	if domain.NormalizeEmail(u.Email) == "" {
		return u, ValidationError{"email is required"}
	}
	if !domain.ValidRole(u.Role) {
		return u, ValidationError{"role must be one of admin, manager, teamlead, employee"}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Email = domain.NormalizeEmail(u.Email)
	u.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// loadShared fetches a shared task plus its originating task. A missing
// originating task is not an error; access checks fail closed on it.
func (e Engine) loadShared(ctx context.Context, sharedID string) (domain.SharedTask, domain.Task, bool, error) {
	shared, err := e.Repo.GetSharedTask(ctx, sharedID)
	if err != nil {
		return shared, domain.Task{}, false, err
	}
	task, err := e.Repo.GetTask(ctx, shared.TaskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return shared, domain.Task{}, false, nil
		}
		return shared, domain.Task{}, false, err
	}
	return shared, task, true, nil
}

// CanAccess reports whether actor may act on the shared task. Missing shared
// task surfaces as NotFound.
func (e Engine) CanAccess(ctx context.Context, sharedID string, actor domain.Actor) (bool, error) {
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return false, err
	}
	return access.Can(shared, task, taskFound, actor), nil
}

func requireAccess(shared domain.SharedTask, task domain.Task, taskFound bool, actor domain.Actor) error {
	if access.Can(shared, task, taskFound, actor) {
		return nil
	}
	return access.DeniedError{SharedID: shared.ID, Role: actor.Role}
}

// dispatch recomputes the participant set and fans the event out. It runs
// post-commit, off the request path; every failure in here is logged and
// swallowed so the triggering mutation is unaffected.
func (e Engine) dispatch(kind string, shared domain.SharedTask, task domain.Task, taskFound bool, actor domain.Actor, subject, message string) {
	if e.Notifier == nil {
		return
	}
	e.spawn(func() {
		ctx := context.Background()
		parts, err := e.buildParticipants(ctx, shared, task, taskFound, actor)
		if err != nil {
			log.Printf("notify: participants for %s: %v", shared.ID, err)
			return
		}
		e.Notifier.Dispatch(ctx, notify.Event{
			Kind:         kind,
			Actor:        actor,
			Participants: parts,
			Subject:      subject,
			Message:      message,
			Link:         "/shared/" + shared.ID,
		})
	})
}
