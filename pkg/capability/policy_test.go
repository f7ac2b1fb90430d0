package capability

import (
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return r
}

func names(skills []*Skill) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		out = append(out, s.Name)
	}
	return out
}

func hasSkill(skills []*Skill, name string) bool {
	for _, s := range skills {
		if s.Name == name {
			return true
		}
	}
	return false
}

func TestFullAccessSeesEverything(t *testing.T) {
	r := testRegistry(t)
	p := DefaultDepartmentPolicy()

	for _, dept := range []string{"Executive", "Operations"} {
		t.Run(dept, func(t *testing.T) {
			visible := p.VisibleSkills(r, dept)
			if len(visible) != len(r.Names()) {
				t.Errorf("%s sees %d skills, want %d: %v", dept, len(visible), len(r.Names()), names(visible))
			}
		})
	}
}

func TestRestrictedLosesExcludedSubset(t *testing.T) {
	r := testRegistry(t)
	p := DefaultDepartmentPolicy()

	for _, dept := range []string{"Engineering", "Research", "Quality Assurance"} {
		t.Run(dept, func(t *testing.T) {
			visible := p.VisibleSkills(r, dept)
			for _, excluded := range []string{"execute_shell", "read_file", "write_file", "run_workflow"} {
				if hasSkill(visible, excluded) {
					t.Errorf("%s must not see %s", dept, excluded)
				}
			}
			if !hasSkill(visible, "fetch_url") {
				t.Errorf("%s should keep non-excluded skills", dept)
			}
		})
	}
}

func TestUnknownDepartmentGetsBaseSet(t *testing.T) {
	r := testRegistry(t)
	p := DefaultDepartmentPolicy()

	visible := p.VisibleSkills(r, "Facilities")
	want := map[string]bool{
		"plan_strategy": true, "search_knowledge": true,
		"share_finding": true, "complete_mission": true,
	}
	if len(visible) != len(want) {
		t.Fatalf("base set = %v", names(visible))
	}
	for _, s := range visible {
		if !want[s.Name] {
			t.Errorf("unexpected skill %s in base set", s.Name)
		}
	}
}

func TestCoreSkillAlwaysFirst(t *testing.T) {
	r := testRegistry(t)
	p := DefaultDepartmentPolicy()

	for _, dept := range []string{"Executive", "Engineering", "Facilities"} {
		visible := p.VisibleSkills(r, dept)
		if len(visible) == 0 || visible[0].Name != "plan_strategy" {
			t.Errorf("%s: core skill must lead the list, got %v", dept, names(visible))
		}
	}
}

func TestFilterIsPure(t *testing.T) {
	r := testRegistry(t)
	p := DefaultDepartmentPolicy()

	a := names(p.VisibleSkills(r, "Engineering"))
	b := names(p.VisibleSkills(r, "Engineering"))
	if len(a) != len(b) {
		t.Fatalf("filter not stable: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("order changed at %d: %s vs %s", i, a[i], b[i])
		}
	}
}
