package oversight

// SafePolicy is the static table deciding which skills may bypass human
// approval: a small global set of always-safe skills plus per-department
// additions. Policy is data, not branching code.
type SafePolicy struct {
	global     map[string]struct{}
	department map[string]map[string]struct{}
}

// NewSafePolicy builds a policy from a global safe list and a
// department→skills table.
func NewSafePolicy(global []string, department map[string][]string) *SafePolicy {
	p := &SafePolicy{
		global:     make(map[string]struct{}, len(global)),
		department: make(map[string]map[string]struct{}, len(department)),
	}
	for _, s := range global {
		p.global[s] = struct{}{}
	}
	for dept, skills := range department {
		set := make(map[string]struct{}, len(skills))
		for _, s := range skills {
			set[s] = struct{}{}
		}
		p.department[dept] = set
	}
	return p
}

// DefaultSafePolicy covers the built-in read-only and bookkeeping skills.
func DefaultSafePolicy() *SafePolicy {
	return NewSafePolicy(
		[]string{"plan_strategy", "search_knowledge", "share_finding", "complete_mission"},
		map[string][]string{
			"Research":    {"fetch_url"},
			"Engineering": {"read_file"},
		},
	)
}

// IsSafe reports whether a skill is auto-approvable for a department.
func (p *SafePolicy) IsSafe(department, skill string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.global[skill]; ok {
		return true
	}
	if set, ok := p.department[department]; ok {
		_, ok := set[skill]
		return ok
	}
	return false
}
