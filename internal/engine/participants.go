package engine

import (
	"context"
	"fmt"

	"relaydesk/internal/directory"
	"relaydesk/internal/domain"
)

// participantSet is an order-preserving map keyed by normalized email. First
// occurrence wins: later sources never overwrite an already-present identity,
// so the most specific role label encountered first is kept.
type participantSet struct {
	order []string
	byKey map[string]domain.ParticipantRecord
}

func newParticipantSet() *participantSet {
	return &participantSet{byKey: map[string]domain.ParticipantRecord{}}
}

func (s *participantSet) add(rec domain.ParticipantRecord) {
	if rec.IdentityKey == "" {
		return
	}
	if _, ok := s.byKey[rec.IdentityKey]; ok {
		return
	}
	s.byKey[rec.IdentityKey] = rec
	s.order = append(s.order, rec.IdentityKey)
}

func (s *participantSet) addIdentity(ident directory.Identity) {
	s.add(domain.ParticipantRecord{
		IdentityKey: domain.NormalizeEmail(ident.Email),
		UserID:      ident.ID,
		Role:        ident.Role,
		Name:        ident.Name,
		Department:  ident.Department,
	})
}

func (s *participantSet) records() []domain.ParticipantRecord {
	res := make([]domain.ParticipantRecord, 0, len(s.order))
	for _, key := range s.order {
		res = append(res, s.byKey[key])
	}
	return res
}

// Participants returns the deduplicated stakeholder list for a shared task's
// communication channel. The access gate runs first; participant resolution
// is never reached for an actor the resolver rejects. The set is recomputed
// from current chain state on every call, never cached across requests.
func (e Engine) Participants(ctx context.Context, sharedID string, actor domain.Actor) ([]domain.ParticipantRecord, error) {
	shared, task, taskFound, err := e.loadShared(ctx, sharedID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(shared, task, taskFound, actor); err != nil {
		return nil, err
	}
	return e.buildParticipants(ctx, shared, task, taskFound, actor)
}

// buildParticipants assembles the set in its documented, testable order:
// acting actor, chain fields, originating-task people, oversight group.
// All directory lookups are batched - one call per id collection.
func (e Engine) buildParticipants(ctx context.Context, shared domain.SharedTask, task domain.Task, taskFound bool, actor domain.Actor) ([]domain.ParticipantRecord, error) {
	set := newParticipantSet()
	set.add(domain.ParticipantRecord{
		IdentityKey: domain.NormalizeEmail(actor.Email),
		UserID:      actor.ID,
		Role:        actor.Role,
		Name:        actor.Name,
		Department:  actor.Department,
	})

	refs := shared.ChainRefs()
	byRole := map[string][]string{}
	for _, ref := range refs {
		if ref.ID == nil || *ref.ID == "" {
			continue
		}
		byRole[ref.Role] = append(byRole[ref.Role], *ref.ID)
	}
	resolved := map[string]directory.Identity{}
	for _, role := range []string{domain.RoleManager, domain.RoleTeamLead, domain.RoleEmployee} {
		ids := byRole[role]
		if len(ids) == 0 {
			continue
		}
		idents, err := e.Directory.ResolveMany(ctx, role, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve chain %s refs: %w", role, err)
		}
		for _, ident := range idents {
			resolved[ident.ID] = ident
		}
	}
	for _, ref := range refs {
		if ref.ID == nil {
			continue
		}
		if ident, ok := resolved[*ref.ID]; ok {
			set.addIdentity(ident)
		}
	}

	if taskFound {
		submitters, err := e.Directory.ResolveMany(ctx, "", []string{task.SubmittedBy})
		if err != nil {
			return nil, fmt.Errorf("resolve submitter: %w", err)
		}
		for _, ident := range submitters {
			set.addIdentity(ident)
		}
		teamleads, err := e.Directory.ResolveMany(ctx, domain.RoleTeamLead, task.AssignedTeamLeads)
		if err != nil {
			return nil, fmt.Errorf("resolve assigned teamleads: %w", err)
		}
		for _, ident := range teamleads {
			set.addIdentity(ident)
		}
		employees, err := e.Directory.ResolveMany(ctx, domain.RoleEmployee, task.AssignedEmployees)
		if err != nil {
			return nil, fmt.Errorf("resolve assigned employees: %w", err)
		}
		for _, ident := range employees {
			set.addIdentity(ident)
		}
	}

	oversight, err := e.Directory.Oversight(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve oversight group: %w", err)
	}
	for _, ident := range oversight {
		set.addIdentity(ident)
	}

	return set.records(), nil
}
