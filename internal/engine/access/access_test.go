package access_test

import (
	"testing"

	"relaydesk/internal/domain"
	"relaydesk/internal/engine/access"
)

func ref(s string) *string { return &s }

func TestCan(t *testing.T) {
	shared := domain.SharedTask{
		ID:              "s1",
		TaskID:          "t1",
		SharedBy:        ref("mgr-1"),
		SharedTeamlead:  ref("tl-1"),
		SharedEmployee:  ref("emp-1"),
	}
	task := domain.Task{ID: "t1", Department: "ops"}

	cases := []struct {
		name      string
		actor     domain.Actor
		taskFound bool
		want      bool
	}{
		{"admin always", domain.Actor{ID: "x", Role: domain.RoleAdmin}, true, true},
		{"admin without task", domain.Actor{ID: "x", Role: domain.RoleAdmin}, false, true},
		{"sharer manager", domain.Actor{ID: "mgr-1", Role: domain.RoleManager}, true, true},
		{"delegated teamlead", domain.Actor{ID: "tl-1", Role: domain.RoleTeamLead}, true, true},
		{"delegated employee", domain.Actor{ID: "emp-1", Role: domain.RoleEmployee}, true, true},
		{"other teamlead", domain.Actor{ID: "tl-2", Role: domain.RoleTeamLead}, true, false},
		{"other employee", domain.Actor{ID: "emp-2", Role: domain.RoleEmployee}, true, false},
		{"same department manager", domain.Actor{ID: "mgr-2", Role: domain.RoleManager, Department: "ops"}, true, true},
		{"other department manager", domain.Actor{ID: "mgr-2", Role: domain.RoleManager, Department: "sales"}, true, false},
		{"department check fails closed without task", domain.Actor{ID: "mgr-2", Role: domain.RoleManager, Department: "ops"}, false, false},
		{"blank department never matches", domain.Actor{ID: "mgr-2", Role: domain.RoleManager}, true, false},
		{"unknown role", domain.Actor{ID: "x", Role: "visitor"}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := access.Can(shared, task, tc.taskFound, tc.actor)
			if got != tc.want {
				t.Fatalf("Can() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanBlankDepartmentTask(t *testing.T) {
	// A task with no department must not grant department-based access to a
	// manager who also has no department.
	shared := domain.SharedTask{ID: "s1", TaskID: "t1"}
	task := domain.Task{ID: "t1"}
	actor := domain.Actor{ID: "mgr-1", Role: domain.RoleManager}
	if access.Can(shared, task, true, actor) {
		t.Fatal("blank departments must not match")
	}
}

func TestCanEmptyChainField(t *testing.T) {
	empty := ""
	shared := domain.SharedTask{ID: "s1", TaskID: "t1", SharedTeamlead: &empty}
	actor := domain.Actor{ID: "", Role: domain.RoleTeamLead}
	if access.Can(shared, domain.Task{}, false, actor) {
		t.Fatal("empty chain field must never grant access")
	}
}
