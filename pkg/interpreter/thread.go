package interpreter

import (
	"fmt"

	"dataflowvm/interpreter-go/pkg/runtime"
)

type ThreadState int

const (
	ThreadReady ThreadState = iota
	ThreadBlocked
)

func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "ready"
	case ThreadBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("thread_state_%d", int(s))
	}
}

// Thread is a logical thread multiplexed over the engine. Lower Priority
// values are scheduled first.
type Thread struct {
	ID       int
	Priority int
	State    ThreadState

	stack     *SemanticStack
	waitingOn []runtime.Variable
}

// ThreadInfo is a read-only view of a thread for observers.
type ThreadInfo struct {
	ID        int
	Priority  int
	State     ThreadState
	Frames    int
	Pending   int
	WaitingOn []runtime.Variable
}

func (t *Thread) info() ThreadInfo {
	return ThreadInfo{
		ID:        t.ID,
		Priority:  t.Priority,
		State:     t.State,
		Frames:    t.stack.Depth(),
		Pending:   t.stack.Pending(),
		WaitingOn: append([]runtime.Variable(nil), t.waitingOn...),
	}
}

func (t *Thread) block(vars []runtime.Variable) {
	t.State = ThreadBlocked
	t.waitingOn = vars
}

func (t *Thread) ready() {
	t.State = ThreadReady
	t.waitingOn = nil
}
