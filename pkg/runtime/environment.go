package runtime

import "sort"

// Environment maps identifier names to variables. Environments are
// persistent: Adjoint and Restrict return new environments and never change
// the receiver, so a captured environment stays valid forever. A nil
// *Environment behaves like an empty one.
type Environment struct {
	name     string
	variable Variable
	bound    bool
	parent   *Environment
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{}
}

// Lookup finds the innermost binding for name.
func (e *Environment) Lookup(name string) (Variable, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.bound && cur.name == name {
			return cur.variable, true
		}
	}
	return Variable{}, false
}

// Adjoint returns an environment where name maps to v, shadowing any earlier
// binding for the same name.
func (e *Environment) Adjoint(name string, v Variable) *Environment {
	return &Environment{name: name, variable: v, bound: true, parent: e}
}

// Restrict projects the environment onto names. Names without a binding are
// dropped.
func (e *Environment) Restrict(names []string) *Environment {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := NewEnvironment()
	seen := make(map[string]struct{}, len(sorted))
	for _, name := range sorted {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if v, ok := e.Lookup(name); ok {
			out = out.Adjoint(name, v)
		}
	}
	return out
}

// Snapshot returns the visible bindings.
func (e *Environment) Snapshot() map[string]Variable {
	out := make(map[string]Variable)
	for cur := e; cur != nil; cur = cur.parent {
		if !cur.bound {
			continue
		}
		if _, shadowed := out[cur.name]; !shadowed {
			out[cur.name] = cur.variable
		}
	}
	return out
}

// Names returns the visible identifiers in sorted order.
func (e *Environment) Names() []string {
	snap := e.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len counts visible bindings.
func (e *Environment) Len() int {
	return len(e.Snapshot())
}

// Equal reports whether both environments expose the same bindings.
func (e *Environment) Equal(other *Environment) bool {
	if e == other {
		return true
	}
	a, b := e.Snapshot(), other.Snapshot()
	if len(a) != len(b) {
		return false
	}
	for name, v := range a {
		if w, ok := b[name]; !ok || w != v {
			return false
		}
	}
	return true
}
