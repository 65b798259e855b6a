package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/runtime"
)

var (
	ErrUnresolvedIdentifier   = errors.New("unresolved identifier")
	ErrUnallocatedRead        = errors.New("read of unallocated variable")
	ErrTypeMismatch           = errors.New("type mismatch")
	ErrIntegerOverflow        = errors.New("integer overflow")
	ErrArityMismatch          = errors.New("arity mismatch")
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
	ErrDeadlock               = errors.New("deadlock: every remaining thread is blocked")
	ErrStepLimit              = errors.New("step limit reached")
)

// ErrorKind classifies fatal program errors.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorDoubleAllocation
	ErrorUnallocatedWrite
	ErrorUnallocatedRead
	ErrorDoubleBind
	ErrorBindUnbound
	ErrorUnresolvedIdentifier
	ErrorTypeMismatch
	ErrorIntegerOverflow
	ErrorArityMismatch
	ErrorUnsupportedInstruction
	ErrorDeadlock
	ErrorStepLimit
)

var errorKindNames = map[ErrorKind]string{
	ErrorUnknown:                "unknown",
	ErrorDoubleAllocation:       "double_allocation",
	ErrorUnallocatedWrite:       "unallocated_write",
	ErrorUnallocatedRead:        "unallocated_read",
	ErrorDoubleBind:             "double_bind",
	ErrorBindUnbound:            "bind_unbound",
	ErrorUnresolvedIdentifier:   "unresolved_identifier",
	ErrorTypeMismatch:           "type_mismatch",
	ErrorIntegerOverflow:        "integer_overflow",
	ErrorArityMismatch:          "arity_mismatch",
	ErrorUnsupportedInstruction: "unsupported_instruction",
	ErrorDeadlock:               "deadlock",
	ErrorStepLimit:              "step_limit",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind_%d", int(k))
}

// ParseErrorKind maps a snake_case kind name back to its ErrorKind.
func ParseErrorKind(name string) (ErrorKind, bool) {
	for kind, candidate := range errorKindNames {
		if candidate == name {
			return kind, true
		}
	}
	return ErrorUnknown, false
}

// RuntimeError is returned when the program breaks a contract of the store
// or the instruction set. The engine stops at the first one.
type RuntimeError struct {
	Kind        ErrorKind
	ThreadID    int
	Instruction ast.Instruction
	Blocked     []int
	Err         error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.ThreadID > 0 {
		fmt.Fprintf(&b, " in thread %d", e.ThreadID)
	}
	if e.Instruction != nil {
		fmt.Fprintf(&b, " at %s", e.Instruction.NodeType())
	}
	if len(e.Blocked) > 0 {
		fmt.Fprintf(&b, " (blocked threads %v)", e.Blocked)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind carried by err, if any.
func KindOf(err error) ErrorKind {
	var rt *RuntimeError
	if errors.As(err, &rt) {
		return rt.Kind
	}
	return classify(err)
}

func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, runtime.ErrDoubleAllocation):
		return ErrorDoubleAllocation
	case errors.Is(err, runtime.ErrUnallocatedWrite):
		return ErrorUnallocatedWrite
	case errors.Is(err, runtime.ErrDoubleBind):
		return ErrorDoubleBind
	case errors.Is(err, runtime.ErrBindUnbound):
		return ErrorBindUnbound
	case errors.Is(err, ErrUnallocatedRead):
		return ErrorUnallocatedRead
	case errors.Is(err, ErrUnresolvedIdentifier):
		return ErrorUnresolvedIdentifier
	case errors.Is(err, ErrTypeMismatch):
		return ErrorTypeMismatch
	case errors.Is(err, ErrIntegerOverflow):
		return ErrorIntegerOverflow
	case errors.Is(err, ErrArityMismatch):
		return ErrorArityMismatch
	case errors.Is(err, ErrUnsupportedInstruction):
		return ErrorUnsupportedInstruction
	case errors.Is(err, ErrDeadlock):
		return ErrorDeadlock
	case errors.Is(err, ErrStepLimit):
		return ErrorStepLimit
	default:
		return ErrorUnknown
	}
}

func newRuntimeError(thread *Thread, instr ast.Instruction, err error) *RuntimeError {
	rt := &RuntimeError{Kind: classify(err), Instruction: instr, Err: err}
	if thread != nil {
		rt.ThreadID = thread.ID
	}
	return rt
}
