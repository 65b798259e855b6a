package runtime

import (
	"fmt"
	"sort"
	"strings"

	"dataflowvm/interpreter-go/pkg/ast"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindUnbound Kind = iota
	KindInt
	KindAtom
	KindRecord
	KindProc
)

func (k Kind) String() string {
	switch k {
	case KindUnbound:
		return "unbound"
	case KindInt:
		return "int"
	case KindAtom:
		return "atom"
	case KindRecord:
		return "record"
	case KindProc:
		return "proc"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// Value is the shared behaviour for all store values.
type Value interface {
	Kind() Kind
}

// UnboundValue marks an allocated variable that has not been bound yet. It is
// never the result of a computation.
type UnboundValue struct{}

func (UnboundValue) Kind() Kind { return KindUnbound }

// Unbound is the sentinel stored in freshly allocated variables.
var Unbound Value = UnboundValue{}

type IntValue struct {
	Val int64
}

func (v IntValue) Kind() Kind { return KindInt }

type AtomValue struct {
	Val string
}

func (v AtomValue) Kind() Kind { return KindAtom }

// RecordValue maps atom features to values. Records are snapshots and are
// never mutated once built.
type RecordValue struct {
	Fields map[string]Value
}

func (v RecordValue) Kind() Kind { return KindRecord }

// NewRecord copies fields so later changes to the caller's map are not
// observed through the record.
func NewRecord(fields map[string]Value) RecordValue {
	copied := make(map[string]Value, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return RecordValue{Fields: copied}
}

// Features returns the record's features in sorted order.
func (v RecordValue) Features() []string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProcValue is a closure: parameters, body and the environment restricted to
// the body's free identifiers at definition time.
type ProcValue struct {
	Params []*ast.Identifier
	Body   []ast.Instruction
	Env    *Environment
}

func (*ProcValue) Kind() Kind { return KindProc }

func (p *ProcValue) Arity() int { return len(p.Params) }

// IsBound reports whether v holds a real result.
func IsBound(v Value) bool {
	if v == nil {
		return false
	}
	return v.Kind() != KindUnbound
}

// Equal compares values structurally.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case UnboundValue:
		return true
	case IntValue:
		return av.Val == b.(IntValue).Val
	case AtomValue:
		return av.Val == b.(AtomValue).Val
	case RecordValue:
		bv := b.(RecordValue)
		if len(av.Fields) != len(bv.Fields) {
			return false
		}
		for k, v := range av.Fields {
			other, ok := bv.Fields[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	case *ProcValue:
		bv := b.(*ProcValue)
		if av == bv {
			return true
		}
		if av == nil || bv == nil || len(av.Params) != len(bv.Params) || len(av.Body) != len(bv.Body) {
			return false
		}
		for i := range av.Params {
			if av.Params[i].Name != bv.Params[i].Name {
				return false
			}
		}
		for i := range av.Body {
			if av.Body[i] != bv.Body[i] {
				return false
			}
		}
		return av.Env.Equal(bv.Env)
	default:
		return false
	}
}

// Format renders a value for diagnostics.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case UnboundValue:
		return "Unbound"
	case IntValue:
		return fmt.Sprintf("%d", val.Val)
	case AtomValue:
		return val.Val
	case RecordValue:
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range val.Features() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(Format(val.Fields[k]))
		}
		b.WriteByte('}')
		return b.String()
	case *ProcValue:
		return fmt.Sprintf("<proc/%d>", val.Arity())
	default:
		return fmt.Sprintf("[%s]", v.Kind())
	}
}
