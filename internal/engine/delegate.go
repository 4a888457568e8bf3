package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relaydesk/internal/domain"
	"relaydesk/internal/engine/access"
	"relaydesk/internal/events"
	"relaydesk/internal/repo"
)

// TaskSubmitOptions are parameters for an originating submission.
type TaskSubmitOptions struct {
	ID                string
	Title             string
	Description       string
	Department        string
	AssignedTeamLeads []string
	AssignedEmployees []string
}

// SubmitTask records an originating submission. Managers submit for their
// department; admins may submit anywhere.
func (e Engine) SubmitTask(ctx context.Context, opts TaskSubmitOptions, actor domain.Actor) (domain.Task, error) {
	if actor.Role != domain.RoleManager && actor.Role != domain.RoleAdmin {
		return domain.Task{}, access.RoleError{Role: actor.Role, Op: "submit tasks"}
	}
	if opts.Title == "" {
		return domain.Task{}, ValidationError{"title is required"}
	}
	if opts.Department == "" {
		return domain.Task{}, ValidationError{"department is required"}
	}
	if err := e.resolveAll(ctx, domain.RoleTeamLead, opts.AssignedTeamLeads); err != nil {
		return domain.Task{}, err
	}
	if err := e.resolveAll(ctx, domain.RoleEmployee, opts.AssignedEmployees); err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	t := domain.Task{
		ID:                id,
		Title:             opts.Title,
		Description:       opts.Description,
		Department:        opts.Department,
		SubmittedBy:       actor.ID,
		AssignedTeamLeads: opts.AssignedTeamLeads,
		AssignedEmployees: opts.AssignedEmployees,
		CreatedAt:         e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.submitted", "task", t.ID, actor.ID, events.EventPayload{"title": t.Title, "department": t.Department}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// resolveAll checks every id resolves under the role, using one batched call.
func (e Engine) resolveAll(ctx context.Context, role string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	idents, err := e.Directory.ResolveMany(ctx, role, ids)
	if err != nil {
		return fmt.Errorf("resolve %s assignees: %w", role, err)
	}
	found := make(map[string]bool, len(idents))
	for _, ident := range idents {
		found[ident.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("%s %s: %w", role, id, repo.ErrNotFound)
		}
	}
	return nil
}

// ShareTask opens a delegation record over a task. The sharer becomes the
// chain's shared_by; all three status axes start at pending.
func (e Engine) ShareTask(ctx context.Context, taskID string, actor domain.Actor) (domain.SharedTask, error) {
	if actor.Role != domain.RoleManager && actor.Role != domain.RoleAdmin {
		return domain.SharedTask{}, access.RoleError{Role: actor.Role, Op: "share tasks"}
	}
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.SharedTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	sharerID := actor.ID
	s := domain.SharedTask{
		ID:               uuid.New().String(),
		TaskID:           task.ID,
		SharedBy:         &sharerID,
		DelegationStatus: domain.DelegationPending,
		VendorStatus:     domain.VendorPending,
		MachineStatus:    domain.MachinePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SharedTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSharedTask(ctx, tx, s); err != nil {
		return domain.SharedTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.shared", "shared_task", s.ID, actor.ID, events.EventPayload{"task_id": task.ID}); err != nil {
		return domain.SharedTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SharedTask{}, err
	}
	e.dispatch("task.shared", s, task, true, actor, "Task shared",
		fmt.Sprintf("%s shared task %q", actor.Name, task.Title))
	return s, nil
}

// Delegation stages settable after sharing, mapped to chain columns and the
// role the target must hold.
var delegationStages = map[string]struct {
	Column string
	Role   string
}{
	"manager":            {repo.FieldSharedManager, domain.RoleManager},
	"teamlead":           {repo.FieldSharedTeamlead, domain.RoleTeamLead},
	"employee":           {repo.FieldSharedEmployee, domain.RoleEmployee},
	"operation_teamlead": {repo.FieldSharedOperationTeamlead, domain.RoleTeamLead},
	"operation_employee": {repo.FieldSharedOperationEmployee, domain.RoleEmployee},
}

// Delegate sets one chain field to a directory user holding the stage's role.
// Existing values are overwritten as delegation proceeds down the hierarchy.
func (e Engine) Delegate(ctx context.Context, sharedID, stage, userID string, actor domain.Actor) (domain.SharedTask, error) {
	st, ok := delegationStages[stage]
	if !ok {
		return domain.SharedTask{}, ValidationError{fmt.Sprintf("unknown delegation stage %s", stage)}
	}
	if userID == "" {
		return domain.SharedTask{}, ValidationError{"user_id is required"}
	}
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return domain.SharedTask{}, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return domain.SharedTask{}, err
	}
	if err := e.resolveAll(ctx, st.Role, []string{userID}); err != nil {
		return domain.SharedTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SharedTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetChainField(ctx, tx, shared.ID, st.Column, userID, now); err != nil {
		return domain.SharedTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.delegated", "shared_task", shared.ID, actor.ID, events.EventPayload{
		"stage": stage,
		"to":    userID,
	}); err != nil {
		return domain.SharedTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SharedTask{}, err
	}
	updated, err := e.Repo.GetSharedTask(ctx, shared.ID)
	if err != nil {
		return domain.SharedTask{}, err
	}
	e.dispatch("task.delegated", updated, task, taskFound, actor, "Task delegated",
		fmt.Sprintf("%s delegated the %s stage of task %q", actor.Name, stage, task.Title))
	return updated, nil
}
