package interpreter

import (
	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/runtime"
)

// Load spawns body as a thread under an empty environment.
func (e *Engine) Load(priority int, body []ast.Instruction) int {
	return e.Spawn(priority, body, runtime.NewEnvironment())
}

// RunProgram runs body to completion on a fresh engine. The engine is
// returned even when the run fails so callers can inspect the store.
func RunProgram(body []ast.Instruction, opts Options) (*Engine, error) {
	engine := New(opts)
	engine.Load(0, body)
	return engine, engine.Run()
}
