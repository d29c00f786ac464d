package permissions

import (
	"sort"
	"strings"
)

// Expander resolves role permission patterns into concrete permission names.
type Expander struct {
	registry *Registry
	patterns map[string][]string
}

// NewExpander builds an Expander over the given registry and role pattern
// table.
func NewExpander(registry *Registry, patterns map[string][]string) *Expander {
	return &Expander{registry: registry, patterns: patterns}
}

// Expand returns the de-duplicated set of permission names a role resolves
// to, following inheritance chains. A visited set guards against cycles in
// the pattern table; an inheritance marker naming an unknown role is skipped.
func (e *Expander) Expand(role string) map[string]struct{} {
	expanded := make(map[string]struct{})
	e.expand(role, expanded, map[string]struct{}{})
	return expanded
}

// ExpandSorted is Expand with a stable ordering, for handlers and seeds.
func (e *Expander) ExpandSorted(role string) []string {
	set := e.Expand(role)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Expander) expand(role string, into map[string]struct{}, visited map[string]struct{}) {
	if _, seen := visited[role]; seen {
		return
	}
	visited[role] = struct{}{}

	for _, pattern := range e.patterns[role] {
		switch {
		case pattern == "*":
			for _, name := range e.registry.Names() {
				into[name] = struct{}{}
			}
		case strings.HasPrefix(pattern, "*"):
			// Inherit another role's patterns. Unknown roles are skipped.
			e.expand(pattern[1:], into, visited)
		case strings.Contains(pattern, ".") && strings.HasSuffix(pattern, "*"):
			prefix := pattern[:len(pattern)-1]
			for _, name := range e.registry.Names() {
				if strings.HasPrefix(name, prefix) {
					into[name] = struct{}{}
				}
			}
		default:
			into[pattern] = struct{}{}
		}
	}
}

// Roles returns the role names present in the pattern table.
func (e *Expander) Roles() []string {
	out := make([]string, 0, len(e.patterns))
	for name := range e.patterns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
