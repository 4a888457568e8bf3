package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"relaydesk/internal/domain"
	"relaydesk/internal/engine/access"
	"relaydesk/internal/events"
	"relaydesk/internal/repo"
)

// AddFeedback posts an entry on a shared task's thread. Any actor the access
// resolver admits may post; authorship is stamped from the actor.
func (e Engine) AddFeedback(ctx context.Context, sharedID, text string, actor domain.Actor) (domain.FeedbackEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.FeedbackEntry{}, ValidationError{"text is required"}
	}
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return domain.FeedbackEntry{}, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return domain.FeedbackEntry{}, err
	}
	f := domain.FeedbackEntry{
		ID:          uuid.New().String(),
		SharedID:    shared.ID,
		AuthorRef:   actor.ID,
		AuthorRole:  actor.Role,
		Text:        text,
		SubmittedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FeedbackEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertFeedback(ctx, tx, f); err != nil {
		return domain.FeedbackEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "feedback.added", "feedback", f.ID, actor.ID, events.EventPayload{"shared_id": shared.ID}); err != nil {
		return domain.FeedbackEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FeedbackEntry{}, err
	}
	e.dispatch("feedback.added", shared, task, taskFound, actor, "New feedback",
		fmt.Sprintf("%s commented on task %q", actor.Name, task.Title))
	return f, nil
}

// AddReply posts a reply under an existing entry. Replying requires access to
// the shared task, not authorship of the entry.
func (e Engine) AddReply(ctx context.Context, sharedID, entryID, text string, actor domain.Actor) (domain.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Reply{}, ValidationError{"text is required"}
	}
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return domain.Reply{}, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return domain.Reply{}, err
	}
	entry, err := e.Repo.GetFeedback(ctx, entryID)
	if err != nil {
		return domain.Reply{}, err
	}
	if entry.SharedID != shared.ID {
		return domain.Reply{}, repo.ErrNotFound
	}
	rp := domain.Reply{
		ID:         uuid.New().String(),
		EntryID:    entry.ID,
		AuthorRef:  actor.ID,
		AuthorRole: actor.Role,
		Text:       text,
		RepliedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reply{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReply(ctx, tx, rp); err != nil {
		return domain.Reply{}, err
	}
	if err := e.Events.Append(ctx, tx, "feedback.replied", "feedback", entry.ID, actor.ID, events.EventPayload{"shared_id": shared.ID}); err != nil {
		return domain.Reply{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Reply{}, err
	}
	e.dispatch("feedback.replied", shared, task, taskFound, actor, "New reply",
		fmt.Sprintf("%s replied on task %q", actor.Name, task.Title))
	return rp, nil
}

// EditFeedback rewrites an entry's text. Two gates run in order: shared-task
// access, then entry authorship.
func (e Engine) EditFeedback(ctx context.Context, sharedID, entryID, text string, actor domain.Actor) (domain.FeedbackEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.FeedbackEntry{}, ValidationError{"text is required"}
	}
	shared, task, taskFound, entry, err := e.loadEntry(ctx, sharedID, entryID, actor)
	if err != nil {
		return domain.FeedbackEntry{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FeedbackEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateFeedbackText(ctx, tx, entry.ID, text, now); err != nil {
		return domain.FeedbackEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "feedback.updated", "feedback", entry.ID, actor.ID, events.EventPayload{"shared_id": shared.ID}); err != nil {
		return domain.FeedbackEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FeedbackEntry{}, err
	}
	updated, err := e.Repo.GetFeedback(ctx, entry.ID)
	if err != nil {
		return domain.FeedbackEntry{}, err
	}
	e.dispatch("feedback.updated", shared, task, taskFound, actor, "Feedback edited",
		fmt.Sprintf("%s edited feedback on task %q", actor.Name, task.Title))
	return updated, nil
}

// DeleteFeedback removes an entry and its replies. Same two gates as edit.
func (e Engine) DeleteFeedback(ctx context.Context, sharedID, entryID string, actor domain.Actor) error {
	shared, task, taskFound, entry, err := e.loadEntry(ctx, sharedID, entryID, actor)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteFeedback(ctx, tx, entry.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "feedback.deleted", "feedback", entry.ID, actor.ID, events.EventPayload{"shared_id": shared.ID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.dispatch("feedback.deleted", shared, task, taskFound, actor, "Feedback removed",
		fmt.Sprintf("%s removed feedback on task %q", actor.Name, task.Title))
	return nil
}

// loadEntry resolves a shared task and one of its entries, enforcing access
// then authorship. Shared-task access alone never grants edit or delete.
func (e Engine) loadEntry(ctx context.Context, sharedID, entryID string, actor domain.Actor) (domain.SharedTask, domain.Task, bool, domain.FeedbackEntry, error) {
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return shared, task, taskFound, domain.FeedbackEntry{}, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return shared, task, taskFound, domain.FeedbackEntry{}, err
	}
	entry, err := e.Repo.GetFeedback(ctx, entryID)
	if err != nil {
		return shared, task, taskFound, entry, err
	}
	if entry.SharedID != shared.ID {
		return shared, task, taskFound, entry, repo.ErrNotFound
	}
	if entry.AuthorRef != actor.ID {
		return shared, task, taskFound, entry, access.OwnershipError{EntryID: entry.ID}
	}
	return shared, task, taskFound, entry, nil
}

// ListFeedback returns the thread in submission order, access-gated.
func (e Engine) ListFeedback(ctx context.Context, sharedID string, actor domain.Actor) ([]domain.FeedbackEntry, error) {
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return nil, err
	}
	return e.Repo.ListFeedback(ctx, shared.ID)
}

// GetSharedTask returns one delegation record, access-gated.
func (e Engine) GetSharedTask(ctx context.Context, sharedID string, actor domain.Actor) (domain.SharedTask, error) {
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return domain.SharedTask{}, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return domain.SharedTask{}, err
	}
	return shared, nil
}
