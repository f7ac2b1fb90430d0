package capability

import "sort"

// DepartmentPolicy maps a department to the subset of registered skills it
// may be offered. The precedence is fixed: the core skill is visible to
// everyone; full-access departments see everything; restricted departments
// see everything minus the excluded subset; all other departments see only
// the base set.
type DepartmentPolicy struct {
	// CoreSkill is always visible, to every department.
	CoreSkill string
	// FullAccess departments see every registered skill.
	FullAccess []string
	// Restricted departments see everything except Excluded.
	Restricted []string
	// Excluded names the skills hidden from restricted departments.
	Excluded []string
	// Base is the minimal set offered to departments in neither list.
	Base []string
}

// DefaultDepartmentPolicy mirrors the shipped org layout: executive and
// operations staff run unrestricted, the specialist departments lose the
// shell, raw filesystem, and workflow-scripting skills, and everyone else
// gets the reasoning and bookkeeping set only.
func DefaultDepartmentPolicy() *DepartmentPolicy {
	return &DepartmentPolicy{
		CoreSkill:  "plan_strategy",
		FullAccess: []string{"Executive", "Operations"},
		Restricted: []string{"Engineering", "Research", "Quality Assurance"},
		Excluded:   []string{"execute_shell", "read_file", "write_file", "run_workflow"},
		Base:       []string{"plan_strategy", "search_knowledge", "share_finding", "complete_mission"},
	}
}

// VisibleSkills is the pure filter from a department to its offered
// skills. It never mutates the registry and depends only on its inputs.
func (p *DepartmentPolicy) VisibleSkills(r *Registry, department string) []*Skill {
	names := p.visibleNames(r, department)
	out := make([]*Skill, 0, len(names))
	for _, name := range names {
		if s, ok := r.Get(name); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *DepartmentPolicy) visibleNames(r *Registry, department string) []string {
	all := r.Names()

	if contains(p.FullAccess, department) {
		return withCore(all, p.CoreSkill)
	}

	if contains(p.Restricted, department) {
		excluded := make(map[string]struct{}, len(p.Excluded))
		for _, e := range p.Excluded {
			excluded[e] = struct{}{}
		}
		kept := all[:0:0]
		for _, name := range all {
			if _, drop := excluded[name]; !drop {
				kept = append(kept, name)
			}
		}
		return withCore(kept, p.CoreSkill)
	}

	base := make([]string, 0, len(p.Base))
	for _, name := range p.Base {
		if _, ok := r.Get(name); ok {
			base = append(base, name)
		}
	}
	sort.Strings(base)
	return withCore(base, p.CoreSkill)
}

// withCore guarantees the core skill leads the list exactly once.
func withCore(names []string, core string) []string {
	if core == "" {
		return names
	}
	out := []string{core}
	for _, n := range names {
		if n != core {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
