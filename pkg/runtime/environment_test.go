package runtime

import (
	"reflect"
	"testing"
)

func TestEnvironmentAdjointDoesNotMutateReceiver(t *testing.T) {
	var gen VariableGenerator
	x1 := gen.Next("X")
	x2 := gen.Next("X")

	env1 := NewEnvironment().Adjoint("X", x1)
	env2 := env1.Adjoint("X", x2).Adjoint("Y", gen.Next("Y"))

	if got, _ := env1.Lookup("X"); got != x1 {
		t.Fatalf("expected env1 X -> %s, got %s", x1, got)
	}
	if _, ok := env1.Lookup("Y"); ok {
		t.Fatalf("expected env1 to have no Y")
	}
	if got, _ := env2.Lookup("X"); got != x2 {
		t.Fatalf("expected shadowing binding %s, got %s", x2, got)
	}
	if env1.Len() != 1 || env2.Len() != 2 {
		t.Fatalf("unexpected sizes %d, %d", env1.Len(), env2.Len())
	}
}

func TestEnvironmentLookupMissing(t *testing.T) {
	if _, ok := NewEnvironment().Lookup("X"); ok {
		t.Fatalf("expected empty environment lookup to fail")
	}
	var nilEnv *Environment
	if _, ok := nilEnv.Lookup("X"); ok {
		t.Fatalf("expected nil environment lookup to fail")
	}
}

func TestEnvironmentRestrict(t *testing.T) {
	var gen VariableGenerator
	x := gen.Next("X")
	y := gen.Next("Y")
	env := NewEnvironment().Adjoint("X", x).Adjoint("Y", y).Adjoint("Z", gen.Next("Z"))

	restricted := env.Restrict([]string{"Y", "X", "Missing", "X"})
	if !reflect.DeepEqual(restricted.Names(), []string{"X", "Y"}) {
		t.Fatalf("unexpected names %v", restricted.Names())
	}
	if got, _ := restricted.Lookup("X"); got != x {
		t.Fatalf("expected X -> %s, got %s", x, got)
	}
	if env.Len() != 3 {
		t.Fatalf("restrict mutated receiver: %v", env.Names())
	}
}

func TestEnvironmentEqual(t *testing.T) {
	var gen VariableGenerator
	x := gen.Next("X")
	a := NewEnvironment().Adjoint("X", x)
	b := NewEnvironment().Adjoint("X", gen.Next("X")).Adjoint("X", x)
	if !a.Equal(b) {
		t.Fatalf("expected environments with same visible bindings to be equal")
	}
	if a.Equal(a.Adjoint("Y", gen.Next("Y"))) {
		t.Fatalf("expected extended environment to differ")
	}
}
