package ast

import "sort"

// FreeIdentifiers returns the names referenced by instructions that are not
// bound by an enclosing Local, ProcDef parameter list, or the bound set.
// The result is sorted.
func FreeIdentifiers(instructions []Instruction, bound []*Identifier) []string {
	scope := make(map[string]int, len(bound))
	for _, id := range bound {
		scope[id.Name]++
	}
	free := make(map[string]struct{})
	collectFree(instructions, scope, free)
	out := make([]string, 0, len(free))
	for name := range free {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectFree(instructions []Instruction, scope map[string]int, free map[string]struct{}) {
	use := func(ids ...*Identifier) {
		for _, id := range ids {
			if id == nil {
				continue
			}
			if scope[id.Name] == 0 {
				free[id.Name] = struct{}{}
			}
		}
	}
	for _, instr := range instructions {
		switch n := instr.(type) {
		case *Local:
			push(scope, n.Identifiers)
			collectFree(n.Body, scope, free)
			pop(scope, n.Identifiers)
		case *Assign:
			use(n.Target)
		case *AssignAdd:
			use(n.Target, n.Left, n.Right)
		case *Thread:
			collectFree(n.Body, scope, free)
		case *Print:
			use(n.Target)
		case *ProcDef:
			use(n.Target)
			push(scope, n.Params)
			collectFree(n.Body, scope, free)
			pop(scope, n.Params)
		case *ProcCall:
			use(n.Callee)
			use(n.Arguments...)
		}
	}
}

func push(scope map[string]int, ids []*Identifier) {
	for _, id := range ids {
		scope[id.Name]++
	}
}

func pop(scope map[string]int, ids []*Identifier) {
	for _, id := range ids {
		scope[id.Name]--
	}
}
