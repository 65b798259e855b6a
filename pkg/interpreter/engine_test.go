package interpreter

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/runtime"
)

var policies = []Policy{PolicyWakeList, PolicyBusyRetry}

func mustValue(t *testing.T, engine *Engine, name string) runtime.Value {
	t.Helper()
	entries := engine.Store().ByName(name)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one variable named %s, got %d", name, len(entries))
	}
	return entries[0].Value
}

func expectInt(t *testing.T, engine *Engine, name string, want int64) {
	t.Helper()
	val := mustValue(t, engine, name)
	got, ok := val.(runtime.IntValue)
	if !ok || got.Val != want {
		t.Fatalf("expected %s = %d, got %s", name, want, runtime.Format(val))
	}
}

func outputLines(buf *bytes.Buffer) []string {
	trimmed := strings.TrimSpace(buf.String())
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func sequentialAddition() []ast.Instruction {
	return ast.Seq(
		ast.LocalScope([]string{"Z"},
			ast.LocalScope([]string{"X", "Y"},
				ast.Bind("X", ast.Int(10)),
				ast.Bind("Y", ast.Int(20)),
				ast.Show("X"),
				ast.Show("Y"),
				ast.Add("Z", "X", "Y"),
				ast.Show("Z"),
			),
			ast.Show("Z"),
		),
	)
}

func concurrentAddition() []ast.Instruction {
	return ast.Seq(
		ast.LocalScope([]string{"X", "Y", "Z"},
			ast.Bind("X", ast.Int(10)),
			ast.Spawn(
				ast.Add("Z", "X", "Y"),
				ast.Show("Z"),
			),
			ast.Bind("Y", ast.Int(20)),
		),
	)
}

func TestSequentialAddition(t *testing.T) {
	for _, policy := range policies {
		var out bytes.Buffer
		engine, err := RunProgram(sequentialAddition(), Options{Policy: policy, Output: &out})
		if err != nil {
			t.Fatalf("%s: run failed: %v", policy, err)
		}
		expectInt(t, engine, "X", 10)
		expectInt(t, engine, "Y", 20)
		expectInt(t, engine, "Z", 30)

		want := []string{"X <- 10", "Y <- 20", "Z <- 30", "Z <- 30"}
		got := outputLines(&out)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("%s: expected output %v, got %v", policy, want, got)
		}
		if !engine.Done() {
			t.Fatalf("%s: expected engine to be done", policy)
		}
	}
}

func TestConcurrentAdditionBlocksUntilOperandBound(t *testing.T) {
	for _, policy := range policies {
		var out bytes.Buffer
		engine := New(Options{Policy: policy, Output: &out})
		engine.Load(0, concurrentAddition())

		sawBlocked := false
		for {
			progressed, err := engine.Step()
			if err != nil {
				t.Fatalf("%s: step failed: %v", policy, err)
			}
			if !progressed {
				break
			}
			for _, info := range engine.Threads() {
				if info.State != ThreadBlocked {
					continue
				}
				sawBlocked = true
				if len(info.WaitingOn) != 1 || info.WaitingOn[0].Name != "Y" {
					t.Fatalf("%s: thread %d should wait on Y only, got %v", policy, info.ID, info.WaitingOn)
				}
				if z := mustValue(t, engine, "Z"); runtime.IsBound(z) {
					t.Fatalf("%s: Z bound while the adder is blocked: %s", policy, runtime.Format(z))
				}
			}
		}
		if !sawBlocked {
			t.Fatalf("%s: expected the spawned thread to block on Y", policy)
		}
		expectInt(t, engine, "Z", 30)
		if got := outputLines(&out); len(got) != 1 || got[0] != "Z <- 30" {
			t.Fatalf("%s: expected a single Z <- 30 line, got %v", policy, got)
		}
	}
}

func TestConcurrentAdditionUnderDifferentPriorities(t *testing.T) {
	for _, policy := range policies {
		for _, priority := range []int{-100, 0, 3, 50} {
			var out bytes.Buffer
			engine := New(Options{Policy: policy, Output: &out})
			engine.Load(priority, concurrentAddition())
			if err := engine.Run(); err != nil {
				t.Fatalf("%s/%d: run failed: %v", policy, priority, err)
			}
			expectInt(t, engine, "X", 10)
			expectInt(t, engine, "Y", 20)
			expectInt(t, engine, "Z", 30)
			if got := outputLines(&out); len(got) != 1 || got[0] != "Z <- 30" {
				t.Fatalf("%s/%d: unexpected output %v", policy, priority, got)
			}
		}
	}
}

func TestBlockedInstructionIsNotConsumed(t *testing.T) {
	for _, policy := range policies {
		engine := New(Options{Policy: policy})
		engine.Load(0, ast.Seq(
			ast.LocalScope([]string{"X", "Y", "Z"},
				ast.Add("Z", "X", "Y"),
			),
		))

		if _, err := engine.Step(); err != nil {
			t.Fatalf("%s: local failed: %v", policy, err)
		}
		before := engine.Threads()
		if len(before) != 1 || before[0].Pending != 1 {
			t.Fatalf("%s: expected one pending instruction, got %#v", policy, before)
		}
		if _, err := engine.Step(); err != nil {
			t.Fatalf("%s: add step failed: %v", policy, err)
		}
		after := engine.Threads()
		if len(after) != 1 {
			t.Fatalf("%s: expected thread to stay alive, got %#v", policy, after)
		}
		if after[0].State != ThreadBlocked {
			t.Fatalf("%s: expected blocked thread, got %s", policy, after[0].State)
		}
		if after[0].Pending != before[0].Pending || after[0].Frames != before[0].Frames {
			t.Fatalf("%s: continuation changed while blocking: %#v -> %#v", policy, before[0], after[0])
		}
		if len(after[0].WaitingOn) != 2 {
			t.Fatalf("%s: expected to wait on X and Y, got %v", policy, after[0].WaitingOn)
		}
		for _, entry := range engine.Store().Entries() {
			if runtime.IsBound(entry.Value) {
				t.Fatalf("%s: blocking changed the store: %s = %s", policy, entry.Variable, runtime.Format(entry.Value))
			}
		}

		_, err := engine.Step()
		if !errors.Is(err, ErrDeadlock) {
			t.Fatalf("%s: expected deadlock, got %v", policy, err)
		}
		var rt *RuntimeError
		if !errors.As(err, &rt) || len(rt.Blocked) != 1 || rt.Blocked[0] != 1 {
			t.Fatalf("%s: expected deadlock naming thread 1, got %#v", policy, err)
		}
	}
}

func TestDoubleBindIsFatalAndKeepsFirstValue(t *testing.T) {
	var out bytes.Buffer
	engine, err := RunProgram(ast.Seq(
		ast.LocalScope([]string{"X"},
			ast.Bind("X", ast.Int(1)),
			ast.Bind("X", ast.Int(2)),
			ast.Show("X"),
		),
	), Options{Output: &out})
	if KindOf(err) != ErrorDoubleBind {
		t.Fatalf("expected double_bind, got %v", err)
	}
	if !errors.Is(err, runtime.ErrDoubleBind) {
		t.Fatalf("expected error to wrap runtime.ErrDoubleBind, got %v", err)
	}
	expectInt(t, engine, "X", 1)
	if out.Len() != 0 {
		t.Fatalf("expected no output after the fatal error, got %q", out.String())
	}
	if _, again := engine.Step(); again != err {
		t.Fatalf("expected later steps to repeat the fatal error, got %v", again)
	}
}

func TestFatalProgramErrors(t *testing.T) {
	cases := []struct {
		name    string
		program []ast.Instruction
		kind    ErrorKind
		target  error
	}{
		{
			name:    "unresolved identifier",
			program: ast.Seq(ast.Show("Missing")),
			kind:    ErrorUnresolvedIdentifier,
			target:  ErrUnresolvedIdentifier,
		},
		{
			name: "type mismatch",
			program: ast.Seq(ast.LocalScope([]string{"X", "Y", "Z"},
				ast.Bind("X", ast.Int(1)),
				ast.Bind("Y", ast.Atom("one")),
				ast.Add("Z", "X", "Y"),
			)),
			kind:   ErrorTypeMismatch,
			target: ErrTypeMismatch,
		},
		{
			name: "integer overflow",
			program: ast.Seq(ast.LocalScope([]string{"X", "Y", "Z"},
				ast.Bind("X", ast.Int(math.MaxInt64)),
				ast.Bind("Y", ast.Int(1)),
				ast.Add("Z", "X", "Y"),
			)),
			kind:   ErrorIntegerOverflow,
			target: ErrIntegerOverflow,
		},
		{
			name: "arity mismatch",
			program: ast.Seq(ast.LocalScope([]string{"P", "X"},
				ast.Proc("P", []string{"A", "B"}),
				ast.Call("P", "X"),
			)),
			kind:   ErrorArityMismatch,
			target: ErrArityMismatch,
		},
		{
			name: "call of non procedure",
			program: ast.Seq(ast.LocalScope([]string{"P"},
				ast.Bind("P", ast.Int(3)),
				ast.Call("P"),
			)),
			kind:   ErrorTypeMismatch,
			target: ErrTypeMismatch,
		},
	}
	for _, tc := range cases {
		_, err := RunProgram(tc.program, Options{})
		if KindOf(err) != tc.kind {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
		if !errors.Is(err, tc.target) {
			t.Fatalf("%s: expected errors.Is(%v), got %v", tc.name, tc.target, err)
		}
		var rt *RuntimeError
		if !errors.As(err, &rt) || rt.ThreadID != 1 || rt.Instruction == nil {
			t.Fatalf("%s: expected runtime error with thread and instruction, got %#v", tc.name, err)
		}
	}
}

func TestRecordWithAtomsRoundTrips(t *testing.T) {
	engine, err := RunProgram(ast.Seq(
		ast.LocalScope([]string{"R"},
			ast.Bind("R", ast.Record(
				ast.Field("label", ast.Atom("point")),
				ast.Field("pos", ast.Record(
					ast.Field("x", ast.Int(1)),
					ast.Field("y", ast.Int(2)),
				)),
				ast.Field("color", ast.Atom("red")),
			)),
		),
	), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := runtime.NewRecord(map[string]runtime.Value{
		"label": runtime.AtomValue{Val: "point"},
		"pos": runtime.NewRecord(map[string]runtime.Value{
			"x": runtime.IntValue{Val: 1},
			"y": runtime.IntValue{Val: 2},
		}),
		"color": runtime.AtomValue{Val: "red"},
	})
	got := mustValue(t, engine, "R")
	if !runtime.Equal(got, want) {
		t.Fatalf("expected %s, got %s", runtime.Format(want), runtime.Format(got))
	}
}

func TestSchedulerOrdersByPriorityThenArrival(t *testing.T) {
	var out bytes.Buffer
	engine := New(Options{Output: &out})
	for _, spec := range []struct {
		name     string
		priority int
	}{{"A", 2}, {"B", 1}, {"C", 1}} {
		engine.Load(spec.priority, ast.Seq(ast.LocalScope([]string{spec.name}, ast.Show(spec.name))))
	}
	if err := engine.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := []string{"B <- Unbound", "C <- Unbound", "A <- Unbound"}
	if got := outputLines(&out); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestThreadsSnapshotOrder(t *testing.T) {
	engine := New(Options{})
	engine.Load(5, ast.Seq(ast.Show("X")))
	engine.Load(1, ast.Seq(ast.Show("Y")))
	engine.Load(1, ast.Seq(ast.Show("Z")))
	infos := engine.Threads()
	if len(infos) != 3 {
		t.Fatalf("expected 3 threads, got %d", len(infos))
	}
	ids := []int{infos[0].ID, infos[1].ID, infos[2].ID}
	if ids[0] != 2 || ids[1] != 3 || ids[2] != 1 {
		t.Fatalf("expected order [2 3 1], got %v", ids)
	}
}

func TestProcedureCallAliasesArguments(t *testing.T) {
	var out bytes.Buffer
	engine, err := RunProgram(ast.Seq(
		ast.LocalScope([]string{"Inc", "One", "X", "R"},
			ast.Bind("One", ast.Int(1)),
			ast.Proc("Inc", []string{"A", "Out"},
				ast.Add("Out", "A", "One"),
			),
			ast.Bind("X", ast.Int(41)),
			ast.Call("Inc", "X", "R"),
			ast.Show("R"),
		),
	), Options{Output: &out})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	expectInt(t, engine, "R", 42)
	if got := outputLines(&out); len(got) != 1 || got[0] != "R <- 42" {
		t.Fatalf("unexpected output %v", got)
	}
	proc, ok := mustValue(t, engine, "Inc").(*runtime.ProcValue)
	if !ok {
		t.Fatalf("expected Inc to hold a procedure")
	}
	if names := proc.Env.Names(); len(names) != 1 || names[0] != "One" {
		t.Fatalf("expected closure to capture only One, got %v", names)
	}
}

func TestProcedureCallBlocksUntilDefined(t *testing.T) {
	for _, policy := range policies {
		engine, err := RunProgram(ast.Seq(
			ast.LocalScope([]string{"P", "X"},
				ast.Spawn(ast.Call("P", "X")),
				ast.Proc("P", []string{"A"},
					ast.Bind("A", ast.Int(7)),
				),
			),
		), Options{Policy: policy})
		if err != nil {
			t.Fatalf("%s: run failed: %v", policy, err)
		}
		expectInt(t, engine, "X", 7)
	}
}

func TestProcedureSharedAcrossThreads(t *testing.T) {
	engine, err := RunProgram(ast.Seq(
		ast.LocalScope([]string{"Twice", "A", "B", "C"},
			ast.Proc("Twice", []string{"In", "Out"},
				ast.Add("Out", "In", "In"),
			),
			ast.Spawn(ast.Call("Twice", "B", "C")),
			ast.Spawn(ast.Call("Twice", "A", "B")),
			ast.Bind("A", ast.Int(3)),
		),
	), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	expectInt(t, engine, "B", 6)
	expectInt(t, engine, "C", 12)
}

func TestPoliciesAgreeOnDataflowChain(t *testing.T) {
	program := func() []ast.Instruction {
		return ast.Seq(
			ast.LocalScope([]string{"One", "A", "B", "C", "D"},
				ast.Spawn(ast.Add("D", "C", "One")),
				ast.Spawn(ast.Add("C", "B", "One")),
				ast.Spawn(ast.Add("B", "A", "One")),
				ast.Bind("One", ast.Int(1)),
				ast.Bind("A", ast.Int(1)),
			),
		)
	}
	results := make(map[Policy]map[string]string)
	for _, policy := range policies {
		engine, err := RunProgram(program(), Options{Policy: policy})
		if err != nil {
			t.Fatalf("%s: run failed: %v", policy, err)
		}
		values := make(map[string]string)
		for _, entry := range engine.Store().Entries() {
			values[entry.Variable.Name] = runtime.Format(entry.Value)
		}
		results[policy] = values
		expectInt(t, engine, "D", 4)
	}
	wake, retry := results[PolicyWakeList], results[PolicyBusyRetry]
	for name, val := range wake {
		if retry[name] != val {
			t.Fatalf("policies disagree on %s: wake=%s retry=%s", name, val, retry[name])
		}
	}
}

func TestStepLimit(t *testing.T) {
	_, err := RunProgram(sequentialAddition(), Options{MaxSteps: 3})
	if !errors.Is(err, ErrStepLimit) || KindOf(err) != ErrorStepLimit {
		t.Fatalf("expected step limit, got %v", err)
	}
}

func TestEmptyThreadBodyFinishes(t *testing.T) {
	engine, err := RunProgram(ast.Seq(ast.Spawn(), ast.LocalScope(nil)), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !engine.Done() || len(engine.Threads()) != 0 {
		t.Fatalf("expected every thread to finish, got %#v", engine.Threads())
	}
}

func TestEngineTracesScheduling(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	if _, err := RunProgram(concurrentAddition(), Options{Logger: logger}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	seen := make(map[string]bool)
	for _, entry := range hook.AllEntries() {
		seen[entry.Message] = true
	}
	for _, msg := range []string{"spawn", "schedule", "split", "execute", "park", "wake", "finish"} {
		if !seen[msg] {
			t.Fatalf("expected a %q trace entry, got %v", msg, seen)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for _, policy := range policies {
		parsed, err := ParsePolicy(policy.String())
		if err != nil || parsed != policy {
			t.Fatalf("round trip of %s failed: %v %v", policy, parsed, err)
		}
	}
	if _, err := ParsePolicy("eager"); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
}
