package orchestrator

import (
	"testing"
)

func TestNewRoster(t *testing.T) {
	inv := newScriptedInvoker(nil)

	t.Run("keeps registration order", func(t *testing.T) {
		r, err := NewRoster(pipelineRoles(inv)...)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		names := r.Names()
		want := []RoleName{"coder", "reviewer", "integrator"}
		if len(names) != len(want) {
			t.Fatalf("expected %d roles, got %d", len(want), len(names))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], names[i])
			}
		}

		if r.First().Name != "coder" || r.Last().Name != "integrator" {
			t.Error("unexpected first or last role")
		}
		if r.Index("reviewer") != 1 {
			t.Errorf("expected reviewer at index 1, got %d", r.Index("reviewer"))
		}
		if r.Index("observer") != -1 {
			t.Error("expected unknown role to have index -1")
		}
	})

	t.Run("rejects an empty roster", func(t *testing.T) {
		if _, err := NewRoster(); err == nil {
			t.Error("expected error for empty roster")
		}
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		roles := pipelineRoles(inv)
		roles[2].Name = "coder"
		if _, err := NewRoster(roles...); err == nil {
			t.Error("expected error for duplicate role")
		}
	})

	t.Run("rejects reserved names", func(t *testing.T) {
		for _, name := range []RoleName{SourceUser, SourceSystem} {
			roles := pipelineRoles(inv)
			roles[0].Name = name
			if _, err := NewRoster(roles...); err == nil {
				t.Errorf("expected error for reserved name %s", name)
			}
		}
	})

	t.Run("rejects a role without invoker", func(t *testing.T) {
		roles := pipelineRoles(inv)
		roles[1].Invoker = nil
		if _, err := NewRoster(roles...); err == nil {
			t.Error("expected error for missing invoker")
		}
	})

	t.Run("rejects an unknown output style", func(t *testing.T) {
		roles := pipelineRoles(inv)
		roles[1].Output = "poetry"
		if _, err := NewRoster(roles...); err == nil {
			t.Error("expected error for output style")
		}
	})
}

func TestRosterGet(t *testing.T) {
	r, err := NewRoster(pipelineRoles(newScriptedInvoker(nil))...)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	role, err := r.Get("integrator")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if role.Responsibility != "integrates feedback" {
		t.Errorf("unexpected role %+v", role)
	}

	if _, err := r.Get("merger"); err == nil {
		t.Error("expected error for unknown role")
	}

	list := r.List()
	list[0].Name = "mutated"
	if r.First().Name != "coder" {
		t.Error("List must return a copy")
	}
}
