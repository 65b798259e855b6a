package ast

// Short constructors for building instruction trees by hand in tests and tools.

func ID(name string) *Identifier { return NewIdentifier(name) }

func IDs(names ...string) []*Identifier {
	out := make([]*Identifier, 0, len(names))
	for _, name := range names {
		out = append(out, NewIdentifier(name))
	}
	return out
}

func Int(value int64) *IntegerLiteral { return NewIntegerLiteral(value) }

func Atom(value string) *AtomLiteral { return NewAtomLiteral(value) }

func Field(feature string, value Literal) *RecordField { return NewRecordField(feature, value) }

func Record(fields ...*RecordField) *RecordLiteral { return NewRecordLiteral(fields) }

func Seq(instructions ...Instruction) []Instruction { return instructions }

func LocalScope(names []string, body ...Instruction) *Local {
	return NewLocal(IDs(names...), body)
}

func Bind(name string, value Literal) *Assign { return NewAssign(ID(name), value) }

func Add(target, left, right string) *AssignAdd {
	return NewAssignAdd(ID(target), ID(left), ID(right))
}

func Spawn(body ...Instruction) *Thread { return NewThread(body) }

func Show(name string) *Print { return NewPrint(ID(name)) }

func Proc(name string, params []string, body ...Instruction) *ProcDef {
	return NewProcDef(ID(name), IDs(params...), body)
}

func Call(name string, args ...string) *ProcCall {
	return NewProcCall(ID(name), IDs(args...))
}
