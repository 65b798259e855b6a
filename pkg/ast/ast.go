package ast

type NodeType string

const (
	NodeIdentifier     NodeType = "Identifier"
	NodeIntegerLiteral NodeType = "IntegerLiteral"
	NodeAtomLiteral    NodeType = "AtomLiteral"
	NodeRecordLiteral  NodeType = "RecordLiteral"
	NodeRecordField    NodeType = "RecordField"
	NodeLocal          NodeType = "Local"
	NodeAssign         NodeType = "Assign"
	NodeAssignAdd      NodeType = "AssignAdd"
	NodeThread         NodeType = "Thread"
	NodePrint          NodeType = "Print"
	NodeProcDef        NodeType = "ProcDef"
	NodeProcCall       NodeType = "ProcCall"
)

type Node interface {
	NodeType() NodeType
	isNode()
}

type nodeImpl struct {
	Type NodeType `json:"type"`
}

func newNodeImpl(kind NodeType) nodeImpl {
	return nodeImpl{Type: kind}
}

func (n nodeImpl) NodeType() NodeType { return n.Type }
func (nodeImpl) isNode()              {}

// Marker interfaces.

// Instruction is one reducible step of a thread's continuation. Instructions
// are pure data; the environment they run under travels next to them.
type Instruction interface {
	Node
	instructionNode()
}

type instructionMarker struct{}

func (instructionMarker) instructionNode() {}

// Literal is a constant operand that evaluates to a store value.
type Literal interface {
	Node
	literalNode()
}

type literalMarker struct{}

func (literalMarker) literalNode() {}

// Identifier names a lexical binding.
type Identifier struct {
	nodeImpl

	Name string `json:"name"`
}

func NewIdentifier(name string) *Identifier {
	return &Identifier{nodeImpl: newNodeImpl(NodeIdentifier), Name: name}
}

func (i *Identifier) String() string {
	if i == nil {
		return "<nil>"
	}
	return i.Name
}

// Literals

type IntegerLiteral struct {
	nodeImpl
	literalMarker

	Value int64 `json:"value"`
}

func NewIntegerLiteral(value int64) *IntegerLiteral {
	return &IntegerLiteral{nodeImpl: newNodeImpl(NodeIntegerLiteral), Value: value}
}

type AtomLiteral struct {
	nodeImpl
	literalMarker

	Value string `json:"value"`
}

func NewAtomLiteral(value string) *AtomLiteral {
	return &AtomLiteral{nodeImpl: newNodeImpl(NodeAtomLiteral), Value: value}
}

type RecordField struct {
	nodeImpl

	Feature string  `json:"feature"`
	Value   Literal `json:"value"`
}

func NewRecordField(feature string, value Literal) *RecordField {
	return &RecordField{nodeImpl: newNodeImpl(NodeRecordField), Feature: feature, Value: value}
}

type RecordLiteral struct {
	nodeImpl
	literalMarker

	Fields []*RecordField `json:"fields"`
}

func NewRecordLiteral(fields []*RecordField) *RecordLiteral {
	return &RecordLiteral{nodeImpl: newNodeImpl(NodeRecordLiteral), Fields: fields}
}

// Instructions

// Local introduces fresh variables for Identifiers, visible only to Body.
type Local struct {
	nodeImpl
	instructionMarker

	Identifiers []*Identifier `json:"identifiers"`
	Body        []Instruction `json:"body"`
}

func NewLocal(identifiers []*Identifier, body []Instruction) *Local {
	return &Local{nodeImpl: newNodeImpl(NodeLocal), Identifiers: identifiers, Body: body}
}

type Assign struct {
	nodeImpl
	instructionMarker

	Target *Identifier `json:"target"`
	Value  Literal     `json:"value"`
}

func NewAssign(target *Identifier, value Literal) *Assign {
	return &Assign{nodeImpl: newNodeImpl(NodeAssign), Target: target, Value: value}
}

// AssignAdd binds Target to Left + Right once both operands are bound.
type AssignAdd struct {
	nodeImpl
	instructionMarker

	Target *Identifier `json:"target"`
	Left   *Identifier `json:"left"`
	Right  *Identifier `json:"right"`
}

func NewAssignAdd(target, left, right *Identifier) *AssignAdd {
	return &AssignAdd{nodeImpl: newNodeImpl(NodeAssignAdd), Target: target, Left: left, Right: right}
}

// Thread spawns Body as a new logical thread sharing the current environment.
type Thread struct {
	nodeImpl
	instructionMarker

	Body []Instruction `json:"body"`
}

func NewThread(body []Instruction) *Thread {
	return &Thread{nodeImpl: newNodeImpl(NodeThread), Body: body}
}

type Print struct {
	nodeImpl
	instructionMarker

	Target *Identifier `json:"target"`
}

func NewPrint(target *Identifier) *Print {
	return &Print{nodeImpl: newNodeImpl(NodePrint), Target: target}
}

// ProcDef binds Target to a closure over the free identifiers of Body.
type ProcDef struct {
	nodeImpl
	instructionMarker

	Target *Identifier   `json:"target"`
	Params []*Identifier `json:"params"`
	Body   []Instruction `json:"body"`
}

func NewProcDef(target *Identifier, params []*Identifier, body []Instruction) *ProcDef {
	return &ProcDef{nodeImpl: newNodeImpl(NodeProcDef), Target: target, Params: params, Body: body}
}

type ProcCall struct {
	nodeImpl
	instructionMarker

	Callee    *Identifier   `json:"callee"`
	Arguments []*Identifier `json:"arguments"`
}

func NewProcCall(callee *Identifier, args []*Identifier) *ProcCall {
	return &ProcCall{nodeImpl: newNodeImpl(NodeProcCall), Callee: callee, Arguments: args}
}
