package runtime

import (
	"testing"

	"dataflowvm/interpreter-go/pkg/ast"
)

func TestFormatValues(t *testing.T) {
	cases := []struct {
		val  Value
		want string
	}{
		{Unbound, "Unbound"},
		{IntValue{Val: -7}, "-7"},
		{AtomValue{Val: "nil"}, "nil"},
		{NewRecord(map[string]Value{"b": AtomValue{Val: "x"}, "a": IntValue{Val: 1}}), "{a: 1, b: x}"},
		{&ProcValue{Params: ast.IDs("A", "B")}, "<proc/2>"},
	}
	for _, tc := range cases {
		if got := Format(tc.val); got != tc.want {
			t.Fatalf("Format(%#v) = %q, want %q", tc.val, got, tc.want)
		}
	}
}

func TestNewRecordCopiesFields(t *testing.T) {
	fields := map[string]Value{"a": IntValue{Val: 1}}
	rec := NewRecord(fields)
	fields["a"] = IntValue{Val: 2}
	if !Equal(rec.Fields["a"], IntValue{Val: 1}) {
		t.Fatalf("record observed caller mutation: %s", Format(rec))
	}
}

func TestEqualDistinguishesKinds(t *testing.T) {
	if Equal(IntValue{Val: 1}, AtomValue{Val: "1"}) {
		t.Fatalf("expected int and atom to differ")
	}
	if Equal(NewRecord(map[string]Value{"a": IntValue{Val: 1}}), NewRecord(map[string]Value{"b": IntValue{Val: 1}})) {
		t.Fatalf("expected records with different features to differ")
	}
	body := []ast.Instruction{ast.Show("X")}
	var gen VariableGenerator
	env := NewEnvironment().Adjoint("X", gen.Next("X"))
	p1 := &ProcValue{Params: ast.IDs("A"), Body: body, Env: env}
	p2 := &ProcValue{Params: ast.IDs("A"), Body: body, Env: env.Restrict([]string{"X"})}
	if !Equal(p1, p2) {
		t.Fatalf("expected closures over the same body and bindings to be equal")
	}
}
