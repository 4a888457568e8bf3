package engine

import (
	"context"
	"fmt"
	"time"

	"relaydesk/internal/domain"
	"relaydesk/internal/events"
)

// InvalidStatusError reports a value outside the axis's set or a transition
// the delegation axis does not permit. No mutation occurs on rejection.
type InvalidStatusError struct {
	Axis string
	From string
	To   string
}

func (e InvalidStatusError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s does not allow value %s", e.Axis, e.To)
	}
	return fmt.Sprintf("%s transition %s -> %s not permitted", e.Axis, e.From, e.To)
}

var axisValues = map[string][]string{
	domain.AxisDelegation: {
		domain.DelegationPending, domain.DelegationSigned, domain.DelegationNotAvailable,
		domain.DelegationNotInterested, domain.DelegationReschedule, domain.DelegationCompleted,
		domain.DelegationInProgress, domain.DelegationCancelled,
	},
	domain.AxisVendor:  {domain.VendorPending, domain.VendorApproved, domain.VendorNotApproved},
	domain.AxisMachine: {domain.MachinePending, domain.MachineDeployed, domain.MachineCancelled},
}

// delegationNext is the per-state allowed-target table. completed and
// cancelled are terminal. The not_available / not_interested / re_schedule
// states loop back to pending for reassignment.
var delegationNext = map[string][]string{
	domain.DelegationPending: {domain.DelegationSigned, domain.DelegationCancelled},
	domain.DelegationSigned: {
		domain.DelegationNotAvailable, domain.DelegationNotInterested, domain.DelegationReschedule,
		domain.DelegationInProgress, domain.DelegationCompleted, domain.DelegationCancelled,
	},
	domain.DelegationNotAvailable:  {domain.DelegationPending, domain.DelegationCancelled},
	domain.DelegationNotInterested: {domain.DelegationPending, domain.DelegationCancelled},
	domain.DelegationReschedule:    {domain.DelegationPending, domain.DelegationCancelled},
	domain.DelegationInProgress:    {domain.DelegationCompleted, domain.DelegationCancelled},
	domain.DelegationCompleted:     {},
	domain.DelegationCancelled:     {},
}

func member(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ensureTransition validates newValue for the axis against the current stored
// value. Vendor and machine are freely reversible: membership is the only
// check. Delegation additionally consults the transition table.
func ensureTransition(axis, current, newValue string) error {
	values, ok := axisValues[axis]
	if !ok {
		return ValidationError{fmt.Sprintf("unknown status axis %s", axis)}
	}
	if !member(values, newValue) {
		return InvalidStatusError{Axis: axis, To: newValue}
	}
	if axis != domain.AxisDelegation {
		return nil
	}
	if !member(delegationNext[current], newValue) {
		return InvalidStatusError{Axis: axis, From: current, To: newValue}
	}
	return nil
}

// UpdateStatus advances one status axis. The write is field-scoped: only the
// target axis column is touched, so a concurrent update to a different axis
// of the same record is never lost. Same-axis races resolve last-write-wins.
func (e Engine) UpdateStatus(ctx context.Context, sharedID, axis, newValue string, actor domain.Actor) (domain.SharedTask, error) {
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return domain.SharedTask{}, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return domain.SharedTask{}, err
	}
	current := currentAxisValue(shared, axis)
	if err := ensureTransition(axis, current, newValue); err != nil {
		return domain.SharedTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SharedTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetStatus(ctx, tx, shared.ID, axis, newValue, now); err != nil {
		return domain.SharedTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "status.updated", "shared_task", shared.ID, actor.ID, events.EventPayload{
		"axis": axis,
		"from": current,
		"to":   newValue,
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
	e.dispatch("status.updated", updated, task, taskFound, actor, "Status updated",
		fmt.Sprintf("%s set %s to %s on task %q", actor.Name, axis, newValue, task.Title))
	return updated, nil
}

func currentAxisValue(s domain.SharedTask, axis string) string {
	switch axis {
	case domain.AxisDelegation:
		return s.DelegationStatus
	case domain.AxisVendor:
		return s.VendorStatus
	case domain.AxisMachine:
		return s.MachineStatus
	}
	return ""
}
