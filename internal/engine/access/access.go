// Package access decides whether an actor may act on a shared task. The
// decision is a pure function of current chain state; it is re-evaluated on
// every call because chain fields mutate over the task's life.
package access

import (
	"fmt"

	"relaydesk/internal/domain"
)

// DeniedError indicates the actor holds no claim on the shared task.
type DeniedError struct {
	SharedID string
	Role     string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("%s has no access to shared task %s", e.Role, e.SharedID)
}

// RoleError indicates an operation reserved for another role.
type RoleError struct {
	Role string
	Op   string
}

func (e RoleError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Op)
}

// OwnershipError indicates an edit or delete attempt on a feedback entry by
// someone other than its author. This is a second gate, independent of the
// general access check.
type OwnershipError struct {
	EntryID string
}

func (e OwnershipError) Error() string {
	return fmt.Sprintf("only the author may modify feedback entry %s", e.EntryID)
}

// Can reports whether actor may view or mutate the shared task. Rules run in
// role order, first match wins. taskFound reports whether the originating
// task resolved; when it did not, the manager department check fails closed.
func Can(shared domain.SharedTask, task domain.Task, taskFound bool, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleManager:
		if matches(shared.SharedBy, actor.ID) || matches(shared.SharedManager, actor.ID) {
			return true
		}
		return taskFound && actor.Department != "" && actor.Department == task.Department
	case domain.RoleTeamLead:
		return matches(shared.SharedTeamlead, actor.ID) || matches(shared.SharedOperationTeamlead, actor.ID)
	case domain.RoleEmployee:
		return matches(shared.SharedEmployee, actor.ID) || matches(shared.SharedOperationEmployee, actor.ID)
	}
	return false
}

// matches skips absent chain fields; they never grant access.
func matches(ref *string, actorID string) bool {
	return ref != nil && *ref != "" && *ref == actorID
}
