package interpreter

import (
	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/runtime"
)

// Frame pairs a run of pending instructions with the environment they were
// written under.
type Frame struct {
	Instructions []ast.Instruction
	Env          *runtime.Environment
}

// SemanticStack is the reified continuation of one thread. The top frame is
// the next to be reduced.
type SemanticStack struct {
	frames []Frame
}

func NewSemanticStack(frames ...Frame) *SemanticStack {
	return &SemanticStack{frames: append([]Frame(nil), frames...)}
}

func (s *SemanticStack) Push(f Frame) {
	s.frames = append(s.frames, f)
}

func (s *SemanticStack) Pop() (Frame, bool) {
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = Frame{}
	s.frames = s.frames[:len(s.frames)-1]
	return top, true
}

func (s *SemanticStack) Peek() (Frame, bool) {
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *SemanticStack) Empty() bool { return len(s.frames) == 0 }

func (s *SemanticStack) Depth() int { return len(s.frames) }

// Pending counts the instructions still waiting across every frame.
func (s *SemanticStack) Pending() int {
	n := 0
	for _, f := range s.frames {
		n += len(f.Instructions)
	}
	return n
}
