package runtime

import "fmt"

// Variable is a store location handle. Name is the identifier the variable
// was introduced for and only serves diagnostics; ID is unique per generator.
type Variable struct {
	ID   uint64
	Name string
}

func (v Variable) String() string {
	name := v.Name
	if name == "" {
		name = "_"
	}
	return fmt.Sprintf("%s#%d", name, v.ID)
}

// VariableGenerator hands out monotonically increasing variable ids. It is
// owned by a single engine and not safe for concurrent use.
type VariableGenerator struct {
	next uint64
}

func (g *VariableGenerator) Next(name string) Variable {
	g.next++
	return Variable{ID: g.next, Name: name}
}

func compareVariables(a, b interface{}) int {
	av := a.(Variable)
	bv := b.(Variable)
	switch {
	case av.ID < bv.ID:
		return -1
	case av.ID > bv.ID:
		return 1
	case av.Name < bv.Name:
		return -1
	case av.Name > bv.Name:
		return 1
	default:
		return 0
	}
}
