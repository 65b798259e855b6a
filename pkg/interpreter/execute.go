package interpreter

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/runtime"
)

// reduce performs exactly one reduction on the top frame of t. A frame with
// several instructions is split into head and tail; a single instruction is
// executed. An instruction that needs an unbound variable leaves its frame
// in place and blocks the thread.
func (e *Engine) reduce(t *Thread) error {
	frame, _ := t.stack.Pop()
	switch len(frame.Instructions) {
	case 0:
		return nil
	case 1:
	default:
		t.stack.Push(Frame{Instructions: frame.Instructions[1:], Env: frame.Env})
		t.stack.Push(Frame{Instructions: frame.Instructions[:1:1], Env: frame.Env})
		e.log.WithFields(logrus.Fields{
			"thread":  t.ID,
			"pending": len(frame.Instructions),
		}).Debug("split")
		return nil
	}

	instr := frame.Instructions[0]
	e.log.WithFields(logrus.Fields{
		"thread":      t.ID,
		"instruction": instr.NodeType(),
	}).Debug("execute")

	waits, err := e.execute(t, instr, frame.Env)
	if err != nil {
		return newRuntimeError(t, instr, err)
	}
	if len(waits) > 0 {
		t.stack.Push(frame)
		t.block(waits)
		return nil
	}
	t.ready()
	return nil
}

// execute runs a single instruction. A non-empty result lists the unbound
// variables the instruction is waiting for; nothing has been changed in that
// case.
func (e *Engine) execute(t *Thread, instr ast.Instruction, env *runtime.Environment) ([]runtime.Variable, error) {
	switch n := instr.(type) {
	case *ast.Local:
		scoped := env
		for _, id := range n.Identifiers {
			v := e.vars.Next(id.Name)
			if err := e.store.Allocate(v); err != nil {
				return nil, err
			}
			scoped = scoped.Adjoint(id.Name, v)
		}
		t.stack.Push(Frame{Instructions: n.Body, Env: scoped})
		return nil, nil

	case *ast.Thread:
		e.Spawn(0, n.Body, env)
		return nil, nil

	case *ast.Assign:
		v, err := resolve(env, n.Target)
		if err != nil {
			return nil, err
		}
		val, err := LiteralValue(n.Value)
		if err != nil {
			return nil, err
		}
		return nil, e.bind(v, val)

	case *ast.AssignAdd:
		target, err := resolve(env, n.Target)
		if err != nil {
			return nil, err
		}
		left, err := resolve(env, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := resolve(env, n.Right)
		if err != nil {
			return nil, err
		}
		lval, err := e.read(left)
		if err != nil {
			return nil, err
		}
		rval, err := e.read(right)
		if err != nil {
			return nil, err
		}
		if waits := unboundOf([]runtime.Variable{left, right}, []runtime.Value{lval, rval}); len(waits) > 0 {
			return waits, nil
		}
		sum, err := addInts(lval, rval)
		if err != nil {
			return nil, err
		}
		return nil, e.bind(target, sum)

	case *ast.Print:
		v, err := resolve(env, n.Target)
		if err != nil {
			return nil, err
		}
		val, err := e.read(v)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(e.out, "%s <- %s\n", n.Target.Name, runtime.Format(val))
		return nil, nil

	case *ast.ProcDef:
		v, err := resolve(env, n.Target)
		if err != nil {
			return nil, err
		}
		free := ast.FreeIdentifiers(n.Body, n.Params)
		closure := &runtime.ProcValue{Params: n.Params, Body: n.Body, Env: env.Restrict(free)}
		return nil, e.bind(v, closure)

	case *ast.ProcCall:
		return e.call(t, n, env)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInstruction, instr)
	}
}

func (e *Engine) call(t *Thread, n *ast.ProcCall, env *runtime.Environment) ([]runtime.Variable, error) {
	callee, err := resolve(env, n.Callee)
	if err != nil {
		return nil, err
	}
	args := make([]runtime.Variable, 0, len(n.Arguments))
	for _, id := range n.Arguments {
		v, err := resolve(env, id)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	val, err := e.read(callee)
	if err != nil {
		return nil, err
	}
	if !runtime.IsBound(val) {
		return []runtime.Variable{callee}, nil
	}
	proc, ok := val.(*runtime.ProcValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s, not a procedure", ErrTypeMismatch, n.Callee.Name, val.Kind())
	}
	if proc.Arity() != len(args) {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrArityMismatch, n.Callee.Name, proc.Arity(), len(args))
	}
	callEnv := proc.Env
	for i, param := range proc.Params {
		callEnv = callEnv.Adjoint(param.Name, args[i])
	}
	t.stack.Push(Frame{Instructions: proc.Body, Env: callEnv})
	return nil, nil
}

func (e *Engine) bind(v runtime.Variable, val runtime.Value) error {
	if err := e.store.Bind(v, val); err != nil {
		return err
	}
	e.wake(v)
	return nil
}

func (e *Engine) read(v runtime.Variable) (runtime.Value, error) {
	val, ok := e.store.Read(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnallocatedRead, v)
	}
	return val, nil
}

func resolve(env *runtime.Environment, id *ast.Identifier) (runtime.Variable, error) {
	if id == nil {
		return runtime.Variable{}, fmt.Errorf("%w: missing identifier", ErrUnresolvedIdentifier)
	}
	v, ok := env.Lookup(id.Name)
	if !ok {
		return runtime.Variable{}, fmt.Errorf("%w: %s", ErrUnresolvedIdentifier, id.Name)
	}
	return v, nil
}

func unboundOf(vars []runtime.Variable, vals []runtime.Value) []runtime.Variable {
	var waits []runtime.Variable
	for i, val := range vals {
		if runtime.IsBound(val) {
			continue
		}
		dup := false
		for _, w := range waits {
			if w == vars[i] {
				dup = true
				break
			}
		}
		if !dup {
			waits = append(waits, vars[i])
		}
	}
	return waits
}

func addInts(a, b runtime.Value) (runtime.Value, error) {
	left, lok := a.(runtime.IntValue)
	right, rok := b.(runtime.IntValue)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: cannot add %s and %s", ErrTypeMismatch, a.Kind(), b.Kind())
	}
	if (right.Val > 0 && left.Val > math.MaxInt64-right.Val) ||
		(right.Val < 0 && left.Val < math.MinInt64-right.Val) {
		return nil, fmt.Errorf("%w: %d + %d", ErrIntegerOverflow, left.Val, right.Val)
	}
	return runtime.IntValue{Val: left.Val + right.Val}, nil
}

// LiteralValue evaluates a constant operand into a store value.
func LiteralValue(lit ast.Literal) (runtime.Value, error) {
	switch n := lit.(type) {
	case *ast.IntegerLiteral:
		return runtime.IntValue{Val: n.Value}, nil
	case *ast.AtomLiteral:
		return runtime.AtomValue{Val: n.Value}, nil
	case *ast.RecordLiteral:
		fields := make(map[string]runtime.Value, len(n.Fields))
		for _, f := range n.Fields {
			val, err := LiteralValue(f.Value)
			if err != nil {
				return nil, err
			}
			fields[f.Feature] = val
		}
		return runtime.NewRecord(fields), nil
	case nil:
		return nil, fmt.Errorf("%w: missing literal", ErrTypeMismatch)
	default:
		return nil, fmt.Errorf("%w: literal %T", ErrUnsupportedInstruction, lit)
	}
}
