package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"relaydesk/internal/config"
	"relaydesk/internal/db"
	"relaydesk/internal/domain"
	"relaydesk/internal/engine"
	"relaydesk/internal/engine/access"
	"relaydesk/internal/migrate"
	"relaydesk/internal/notify"
	"relaydesk/internal/repo"
)

// captureNotifier records dispatched events instead of delivering them.
type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Dispatch(_ context.Context, ev notify.Event) {
	c.events = append(c.events, ev)
}

type testEnv struct {
	Engine   engine.Engine
	Notifier *captureNotifier
	Ctx      context.Context

	Admin    domain.Actor
	Manager  domain.Actor
	Manager2 domain.Actor
	TeamLead domain.Actor
	Employee domain.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	// Run post-commit fan-out inline so tests observe it deterministically.
	eng.Go = func(f func()) { f() }
	cap := &captureNotifier{}
	eng.Notifier = cap
	ctx := context.Background()

	env := &testEnv{Engine: eng, Notifier: cap, Ctx: ctx}
	env.Admin = env.addUser(t, "Ada Admin", "ada@corp.test", domain.RoleAdmin, "")
	env.Manager = env.addUser(t, "Mo Manager", "mo@corp.test", domain.RoleManager, "ops")
	env.Manager2 = env.addUser(t, "Sal Sales", "sal@corp.test", domain.RoleManager, "sales")
	env.TeamLead = env.addUser(t, "Tia Lead", "tia@corp.test", domain.RoleTeamLead, "ops")
	env.Employee = env.addUser(t, "Eli Employee", "eli@corp.test", domain.RoleEmployee, "ops")
	return env
}

func (env *testEnv) addUser(t *testing.T, name, email, role, department string) domain.Actor {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, domain.User{
		Name:       name,
		Email:      email,
		Role:       role,
		Department: department,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u.Actor()
}

func (env *testEnv) submitAndShare(t *testing.T) domain.SharedTask {
	t.Helper()
	task, err := env.Engine.SubmitTask(env.Ctx, engine.TaskSubmitOptions{
		Title:      "Install rack",
		Department: "ops",
	}, env.Manager)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	shared, err := env.Engine.ShareTask(env.Ctx, task.ID, env.Manager)
	if err != nil {
		t.Fatalf("share task: %v", err)
	}
	return shared
}

func TestShareStartsAllAxesPending(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	if shared.DelegationStatus != domain.DelegationPending ||
		shared.VendorStatus != domain.VendorPending ||
		shared.MachineStatus != domain.MachinePending {
		t.Fatalf("expected all axes pending, got %s/%s/%s",
			shared.DelegationStatus, shared.VendorStatus, shared.MachineStatus)
	}
	if shared.SharedBy == nil || *shared.SharedBy != env.Manager.ID {
		t.Fatalf("shared_by not stamped with sharer")
	}
}

func TestSubmitTaskRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SubmitTask(env.Ctx, engine.TaskSubmitOptions{
		Title:      "nope",
		Department: "ops",
	}, env.Employee)
	var re access.RoleError
	if !errors.As(err, &re) {
		t.Fatalf("expected RoleError, got %v", err)
	}
}

func TestDelegateSetsChainField(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	updated, err := env.Engine.Delegate(env.Ctx, shared.ID, "teamlead", env.TeamLead.ID, env.Manager)
	if err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if updated.SharedTeamlead == nil || *updated.SharedTeamlead != env.TeamLead.ID {
		t.Fatalf("shared_teamlead not set")
	}
	// Other chain fields untouched.
	if updated.SharedManager != nil || updated.SharedEmployee != nil {
		t.Fatalf("unrelated chain fields mutated")
	}
}

func TestDelegateRejectsWrongRole(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	// The employee stage requires an employee-role target.
	_, err := env.Engine.Delegate(env.Ctx, shared.ID, "employee", env.TeamLead.ID, env.Manager)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not-found for role mismatch, got %v", err)
	}
}

func TestDelegationTransitions(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	steps := []string{
		domain.DelegationSigned,
		domain.DelegationInProgress,
		domain.DelegationCompleted,
	}
	for _, next := range steps {
		var err error
		shared, err = env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisDelegation, next, env.Manager)
		if err != nil {
			t.Fatalf("to %s: %v", next, err)
		}
		if shared.DelegationStatus != next {
			t.Fatalf("delegation_status = %s, want %s", shared.DelegationStatus, next)
		}
	}
	// completed is terminal
	_, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisDelegation, domain.DelegationPending, env.Manager)
	var se engine.InvalidStatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if se.From != domain.DelegationCompleted || se.To != domain.DelegationPending {
		t.Fatalf("error carries %s -> %s", se.From, se.To)
	}
}

func TestDeclineLoopsBackToPending(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	path := []string{
		domain.DelegationSigned,
		domain.DelegationNotInterested,
		domain.DelegationPending,
		domain.DelegationSigned,
	}
	for _, next := range path {
		var err error
		shared, err = env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisDelegation, next, env.Manager)
		if err != nil {
			t.Fatalf("to %s: %v", next, err)
		}
	}
}

func TestAxisIndependence(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	shared, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisDelegation, domain.DelegationSigned, env.Manager)
	if err != nil {
		t.Fatal(err)
	}
	// A vendor write must leave the other two axes exactly as stored.
	updated, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisVendor, domain.VendorApproved, env.Manager)
	if err != nil {
		t.Fatalf("vendor update: %v", err)
	}
	if updated.VendorStatus != domain.VendorApproved {
		t.Fatalf("vendor_status = %s", updated.VendorStatus)
	}
	if updated.DelegationStatus != domain.DelegationSigned {
		t.Fatalf("delegation_status changed to %s", updated.DelegationStatus)
	}
	if updated.MachineStatus != domain.MachinePending {
		t.Fatalf("machine_status changed to %s", updated.MachineStatus)
	}
}

func TestMembershipAxesFreelyReversible(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	path := []struct{ axis, value string }{
		{domain.AxisVendor, domain.VendorApproved},
		{domain.AxisVendor, domain.VendorNotApproved},
		{domain.AxisVendor, domain.VendorPending},
		{domain.AxisMachine, domain.MachineDeployed},
		{domain.AxisMachine, domain.MachineCancelled},
		{domain.AxisMachine, domain.MachinePending},
	}
	for _, step := range path {
		if _, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, step.axis, step.value, env.Manager); err != nil {
			t.Fatalf("%s to %s: %v", step.axis, step.value, err)
		}
	}
}

func TestRejectedStatusLeavesNoMutation(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	_, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisVendor, "deployed", env.Manager)
	var se engine.InvalidStatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	after, err := env.Engine.Repo.GetSharedTask(env.Ctx, shared.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.VendorStatus != shared.VendorStatus || after.UpdatedAt != shared.UpdatedAt {
		t.Fatalf("record mutated after rejected update")
	}
}

func TestUnknownAxisRejected(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	_, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, "mystery_status", "pending", env.Manager)
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAccessGateOnStatus(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	// Employee has no chain reference yet.
	_, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisVendor, domain.VendorApproved, env.Employee)
	var de access.DeniedError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	// After delegation the same employee is admitted.
	if _, err := env.Engine.Delegate(env.Ctx, shared.ID, "employee", env.Employee.ID, env.Manager); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisVendor, domain.VendorApproved, env.Employee); err != nil {
		t.Fatalf("delegated employee denied: %v", err)
	}
}

func TestMissingSharedTaskIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetSharedTask(env.Ctx, "no-such-id", env.Admin)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParticipantsOrderAndDedupe(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	if _, err := env.Engine.Delegate(env.Ctx, shared.ID, "teamlead", env.TeamLead.ID, env.Manager); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Delegate(env.Ctx, shared.ID, "employee", env.Employee.ID, env.Manager); err != nil {
		t.Fatal(err)
	}
	parts, err := env.Engine.Participants(env.Ctx, shared.ID, env.Manager)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	// Acting user first, then chain in stage order, then oversight. The
	// manager appears once even though they are actor, sharer, and submitter.
	want := []string{"mo@corp.test", "tia@corp.test", "eli@corp.test", "ada@corp.test"}
	if len(parts) != len(want) {
		t.Fatalf("got %d participants, want %d", len(parts), len(want))
	}
	for i, key := range want {
		if parts[i].IdentityKey != key {
			t.Fatalf("participant[%d] = %s, want %s", i, parts[i].IdentityKey, key)
		}
	}
	seen := map[string]bool{}
	for _, p := range parts {
		if seen[p.IdentityKey] {
			t.Fatalf("duplicate identity %s", p.IdentityKey)
		}
		seen[p.IdentityKey] = true
	}
}

func TestParticipantsGrowMonotonically(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	before, err := env.Engine.Participants(env.Ctx, shared.ID, env.Manager)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Delegate(env.Ctx, shared.ID, "teamlead", env.TeamLead.ID, env.Manager); err != nil {
		t.Fatal(err)
	}
	after, err := env.Engine.Participants(env.Ctx, shared.ID, env.Manager)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("participants went %d -> %d, want +1", len(before), len(after))
	}
	have := map[string]bool{}
	for _, p := range after {
		have[p.IdentityKey] = true
	}
	for _, p := range before {
		if !have[p.IdentityKey] {
			t.Fatalf("participant %s lost after delegation", p.IdentityKey)
		}
	}
}

func TestParticipantsAccessGate(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	_, err := env.Engine.Participants(env.Ctx, shared.ID, env.Manager2)
	var de access.DeniedError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeniedError for off-chain manager, got %v", err)
	}
}

func TestStatusUpdateDispatchesNotification(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	env.Notifier.events = nil
	if _, err := env.Engine.UpdateStatus(env.Ctx, shared.ID, domain.AxisDelegation, domain.DelegationSigned, env.Manager); err != nil {
		t.Fatal(err)
	}
	if len(env.Notifier.events) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(env.Notifier.events))
	}
	ev := env.Notifier.events[0]
	if ev.Kind != "status.updated" {
		t.Fatalf("event kind = %s", ev.Kind)
	}
	if ev.Link != "/shared/"+shared.ID {
		t.Fatalf("event link = %s", ev.Link)
	}
	if len(ev.Participants) == 0 {
		t.Fatal("event carries no participants")
	}
}

func TestFeedbackThread(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	if _, err := env.Engine.Delegate(env.Ctx, shared.ID, "teamlead", env.TeamLead.ID, env.Manager); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.AddFeedback(env.Ctx, shared.ID, "rack is too small", env.TeamLead)
	if err != nil {
		t.Fatalf("add feedback: %v", err)
	}
	// Replying requires access, not authorship.
	if _, err := env.Engine.AddReply(env.Ctx, shared.ID, entry.ID, "ordering a bigger one", env.Manager); err != nil {
		t.Fatalf("reply by non-author: %v", err)
	}
	items, err := env.Engine.ListFeedback(env.Ctx, shared.ID, env.Manager)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || len(items[0].Replies) != 1 {
		t.Fatalf("thread shape wrong: %d entries", len(items))
	}
	if items[0].Replies[0].AuthorRef != env.Manager.ID {
		t.Fatalf("reply author = %s", items[0].Replies[0].AuthorRef)
	}
}

func TestFeedbackRejectsBlankText(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	entry, err := env.Engine.AddFeedback(env.Ctx, shared.ID, "rack is too small", env.Manager)
	if err != nil {
		t.Fatalf("add feedback: %v", err)
	}
	for _, text := range []string{"", "   ", "\t\n"} {
		var ve engine.ValidationError
		if _, err := env.Engine.AddFeedback(env.Ctx, shared.ID, text, env.Manager); !errors.As(err, &ve) {
			t.Fatalf("add feedback %q: err = %v", text, err)
		}
		if _, err := env.Engine.AddReply(env.Ctx, shared.ID, entry.ID, text, env.Manager); !errors.As(err, &ve) {
			t.Fatalf("reply %q: err = %v", text, err)
		}
		if _, err := env.Engine.EditFeedback(env.Ctx, shared.ID, entry.ID, text, env.Manager); !errors.As(err, &ve) {
			t.Fatalf("edit %q: err = %v", text, err)
		}
	}
	// Surrounding whitespace is stripped from accepted text.
	trimmed, err := env.Engine.AddFeedback(env.Ctx, shared.ID, "  cables missing  ", env.Manager)
	if err != nil {
		t.Fatal(err)
	}
	if trimmed.Text != "cables missing" {
		t.Fatalf("text = %q", trimmed.Text)
	}
}

func TestFeedbackOwnership(t *testing.T) {
	env := newTestEnv(t)
	shared := env.submitAndShare(t)
	if _, err := env.Engine.Delegate(env.Ctx, shared.ID, "teamlead", env.TeamLead.ID, env.Manager); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.AddFeedback(env.Ctx, shared.ID, "original", env.TeamLead)
	if err != nil {
		t.Fatal(err)
	}
	// The manager holds shared-task access but is not the entry author.
	_, err = env.Engine.EditFeedback(env.Ctx, shared.ID, entry.ID, "rewritten", env.Manager)
	var oe access.OwnershipError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OwnershipError, got %v", err)
	}
	if err := env.Engine.DeleteFeedback(env.Ctx, shared.ID, entry.ID, env.Manager); !errors.As(err, &oe) {
		t.Fatalf("expected OwnershipError on delete, got %v", err)
	}
	// The author may do both.
	edited, err := env.Engine.EditFeedback(env.Ctx, shared.ID, entry.ID, "rewritten", env.TeamLead)
	if err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if edited.Text != "rewritten" || edited.EditedAt == nil {
		t.Fatalf("edit not applied")
	}
	if err := env.Engine.DeleteFeedback(env.Ctx, shared.ID, entry.ID, env.TeamLead); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetFeedback(env.Ctx, entry.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("entry still present: %v", err)
	}
}

func TestFeedbackEntryScopedToShared(t *testing.T) {
	env := newTestEnv(t)
	first := env.submitAndShare(t)
	second := env.submitAndShare(t)
	entry, err := env.Engine.AddFeedback(env.Ctx, first.ID, "on the first", env.Manager)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddReply(env.Ctx, second.ID, entry.ID, "wrong thread", env.Manager); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-thread reply accepted: %v", err)
	}
}
