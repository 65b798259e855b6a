package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/interpreter"
	"dataflowvm/interpreter-go/pkg/runtime"
)

// Program is a YAML program file: an instruction tree for the root thread
// plus optional expectations about the finished run.
type Program struct {
	Path         string
	Name         string
	Priority     int
	Instructions []ast.Instruction
	Expect       *Expectation
}

// Expectation describes the observable result of a run. A nil entry in Store
// expects the variable to still be Unbound.
type Expectation struct {
	Store  map[string]ast.Literal
	Output []string
	Error  string
}

type programFile struct {
	Name     string          `yaml:"name"`
	Priority int             `yaml:"priority"`
	Program  instructionList `yaml:"program"`
	Expect   *expectFile     `yaml:"expect"`
}

type expectFile struct {
	Store  literalMap `yaml:"store"`
	Output []string   `yaml:"output"`
	Error  string     `yaml:"error"`
}

// LoadProgram parses a program file from disk.
func LoadProgram(path string) (*Program, error) {
	if path == "" {
		return nil, fmt.Errorf("program: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("program: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("program: open %s: %w", absPath, err)
	}
	defer file.Close()

	prog, err := DecodeProgram(file)
	if err != nil {
		return nil, fmt.Errorf("program: %s: %w", absPath, err)
	}
	prog.Path = absPath
	if prog.Name == "" {
		prog.Name = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}
	return prog, nil
}

// DecodeProgram parses a program document from r.
func DecodeProgram(r io.Reader) (*Program, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var raw programFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty program")
		}
		return nil, err
	}
	prog := &Program{
		Name:         strings.TrimSpace(raw.Name),
		Priority:     raw.Priority,
		Instructions: []ast.Instruction(raw.Program),
	}
	if raw.Expect != nil {
		prog.Expect = &Expectation{
			Store:  map[string]ast.Literal(raw.Expect.Store),
			Output: raw.Expect.Output,
			Error:  strings.TrimSpace(raw.Expect.Error),
		}
		if prog.Expect.Error != "" {
			if _, ok := interpreter.ParseErrorKind(prog.Expect.Error); !ok {
				return nil, fmt.Errorf("expect: unknown error kind %q", prog.Expect.Error)
			}
		}
	}
	return prog, nil
}

// Run executes the program on a fresh engine.
func (p *Program) Run(opts interpreter.Options) (*interpreter.Engine, error) {
	engine := interpreter.New(opts)
	engine.Load(p.Priority, p.Instructions)
	return engine, engine.Run()
}

// Check compares a finished run against the program's expectations and
// returns one message per mismatch.
func (p *Program) Check(engine *interpreter.Engine, runErr error, output string) []string {
	if p.Expect == nil {
		return nil
	}
	var problems []string

	switch {
	case p.Expect.Error == "" && runErr != nil:
		problems = append(problems, fmt.Sprintf("unexpected error: %v", runErr))
	case p.Expect.Error != "" && runErr == nil:
		problems = append(problems, fmt.Sprintf("expected %s error, run succeeded", p.Expect.Error))
	case p.Expect.Error != "":
		if got := interpreter.KindOf(runErr).String(); got != p.Expect.Error {
			problems = append(problems, fmt.Sprintf("expected %s error, got %s (%v)", p.Expect.Error, got, runErr))
		}
	}

	names := make([]string, 0, len(p.Expect.Store))
	for name := range p.Expect.Store {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries := engine.Store().ByName(name)
		if len(entries) == 0 {
			problems = append(problems, fmt.Sprintf("store: %s was never allocated", name))
			continue
		}
		got := entries[len(entries)-1].Value
		want := runtime.Unbound
		if lit := p.Expect.Store[name]; lit != nil {
			val, err := interpreter.LiteralValue(lit)
			if err != nil {
				problems = append(problems, fmt.Sprintf("store: %s: %v", name, err))
				continue
			}
			want = val
		}
		if !runtime.Equal(got, want) {
			problems = append(problems, fmt.Sprintf("store: %s = %s, want %s", name, runtime.Format(got), runtime.Format(want)))
		}
	}

	if p.Expect.Output != nil {
		lines := splitLines(output)
		if strings.Join(lines, "\n") != strings.Join(p.Expect.Output, "\n") {
			problems = append(problems, fmt.Sprintf("output = %q, want %q", lines, p.Expect.Output))
		}
	}
	return problems
}

func splitLines(output string) []string {
	trimmed := strings.TrimRight(output, "\n")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "\n")
}

type instructionList []ast.Instruction

func (l *instructionList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.AliasNode {
		return l.UnmarshalYAML(value.Alias)
	}
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		*l = nil
		return nil
	}
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: instructions must be a sequence", value.Line)
	}
	out := make([]ast.Instruction, 0, len(value.Content))
	for _, node := range value.Content {
		instr, err := decodeInstruction(node)
		if err != nil {
			return err
		}
		out = append(out, instr)
	}
	*l = out
	return nil
}

func decodeInstruction(node *yaml.Node) (ast.Instruction, error) {
	if node.Kind == yaml.AliasNode {
		return decodeInstruction(node.Alias)
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: instruction must be a mapping", node.Line)
	}
	fields, err := mappingFields(node)
	if err != nil {
		return nil, err
	}

	switch {
	case fields["local"] != nil:
		if err := onlyKeys(node, fields, "local", "body"); err != nil {
			return nil, err
		}
		names, err := decodeNames(fields["local"])
		if err != nil {
			return nil, err
		}
		body, err := decodeBody(fields["body"])
		if err != nil {
			return nil, err
		}
		return ast.NewLocal(ast.IDs(names...), body), nil

	case fields["assign"] != nil:
		if err := onlyKeys(node, fields, "assign"); err != nil {
			return nil, err
		}
		var raw struct {
			Target string    `yaml:"target"`
			Value  yaml.Node `yaml:"value"`
		}
		if err := decodeStrict(fields["assign"], &raw, "target", "value"); err != nil {
			return nil, err
		}
		if raw.Target == "" {
			return nil, fmt.Errorf("line %d: assign requires a target", node.Line)
		}
		if raw.Value.Kind == 0 {
			return nil, fmt.Errorf("line %d: assign requires a value", node.Line)
		}
		lit, err := decodeLiteral(&raw.Value)
		if err != nil {
			return nil, err
		}
		if lit == nil {
			return nil, fmt.Errorf("line %d: assign value must not be null", raw.Value.Line)
		}
		return ast.NewAssign(ast.ID(raw.Target), lit), nil

	case fields["add"] != nil:
		if err := onlyKeys(node, fields, "add"); err != nil {
			return nil, err
		}
		var raw struct {
			Target string `yaml:"target"`
			Left   string `yaml:"left"`
			Right  string `yaml:"right"`
		}
		if err := decodeStrict(fields["add"], &raw, "target", "left", "right"); err != nil {
			return nil, err
		}
		if raw.Target == "" || raw.Left == "" || raw.Right == "" {
			return nil, fmt.Errorf("line %d: add requires target, left and right", node.Line)
		}
		return ast.Add(raw.Target, raw.Left, raw.Right), nil

	case fields["print"] != nil:
		if err := onlyKeys(node, fields, "print"); err != nil {
			return nil, err
		}
		var name string
		if err := fields["print"].Decode(&name); err != nil || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("line %d: print expects an identifier", node.Line)
		}
		return ast.Show(strings.TrimSpace(name)), nil

	case fields["thread"] != nil:
		if err := onlyKeys(node, fields, "thread"); err != nil {
			return nil, err
		}
		body, err := decodeBody(fields["thread"])
		if err != nil {
			return nil, err
		}
		return ast.NewThread(body), nil

	case fields["proc"] != nil:
		if err := onlyKeys(node, fields, "proc"); err != nil {
			return nil, err
		}
		var raw struct {
			Name   string          `yaml:"name"`
			Params []string        `yaml:"params"`
			Body   instructionList `yaml:"body"`
		}
		if err := decodeStrict(fields["proc"], &raw, "name", "params", "body"); err != nil {
			return nil, err
		}
		if raw.Name == "" {
			return nil, fmt.Errorf("line %d: proc requires a name", node.Line)
		}
		return ast.NewProcDef(ast.ID(raw.Name), ast.IDs(raw.Params...), []ast.Instruction(raw.Body)), nil

	case fields["call"] != nil:
		if err := onlyKeys(node, fields, "call"); err != nil {
			return nil, err
		}
		var raw struct {
			Proc string   `yaml:"proc"`
			Args []string `yaml:"args"`
		}
		if err := decodeStrict(fields["call"], &raw, "proc", "args"); err != nil {
			return nil, err
		}
		if raw.Proc == "" {
			return nil, fmt.Errorf("line %d: call requires a proc", node.Line)
		}
		return ast.Call(raw.Proc, raw.Args...), nil

	default:
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("line %d: unknown instruction %v", node.Line, keys)
	}
}

func mappingFields(node *yaml.Node) (map[string]*yaml.Node, error) {
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return nil, err
		}
		key = strings.TrimSpace(key)
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %q", node.Content[i].Line, key)
		}
		fields[key] = node.Content[i+1]
	}
	return fields, nil
}

func onlyKeys(node *yaml.Node, fields map[string]*yaml.Node, allowed ...string) error {
	for key := range fields {
		ok := false
		for _, candidate := range allowed {
			if key == candidate {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("line %d: unexpected key %q", node.Line, key)
		}
	}
	return nil
}

// decodeStrict decodes a mapping into out after rejecting unknown keys,
// since Node.Decode does not carry the decoder's KnownFields setting.
func decodeStrict(node *yaml.Node, out any, allowed ...string) error {
	if node.Kind == yaml.AliasNode {
		return decodeStrict(node.Alias, out, allowed...)
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	fields, err := mappingFields(node)
	if err != nil {
		return err
	}
	if err := onlyKeys(node, fields, allowed...); err != nil {
		return err
	}
	return node.Decode(out)
}

func decodeNames(node *yaml.Node) ([]string, error) {
	var names []string
	switch node.Kind {
	case yaml.ScalarNode:
		names = []string{node.Value}
	case yaml.SequenceNode:
		if err := node.Decode(&names); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("line %d: expected an identifier or a list of identifiers", node.Line)
	}
	for i, name := range names {
		names[i] = strings.TrimSpace(name)
		if names[i] == "" {
			return nil, fmt.Errorf("line %d: identifiers must be non-empty", node.Line)
		}
	}
	return names, nil
}

func decodeBody(node *yaml.Node) ([]ast.Instruction, error) {
	if node == nil {
		return nil, nil
	}
	var body instructionList
	if err := body.UnmarshalYAML(node); err != nil {
		return nil, err
	}
	return []ast.Instruction(body), nil
}

// decodeLiteral maps YAML integers to Int, strings to Atom and mappings to
// Record. Null decodes to a nil literal.
func decodeLiteral(node *yaml.Node) (ast.Literal, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return decodeLiteral(node.Alias)
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return nil, nil
		case "!!int":
			n, err := strconv.ParseInt(node.Value, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: integer %s: %w", node.Line, node.Value, err)
			}
			return ast.Int(n), nil
		case "!!str":
			return ast.Atom(node.Value), nil
		default:
			return nil, fmt.Errorf("line %d: unsupported literal %s", node.Line, node.ShortTag())
		}
	case yaml.MappingNode:
		fields, err := mappingFields(node)
		if err != nil {
			return nil, err
		}
		features := make([]string, 0, len(fields))
		for feature := range fields {
			features = append(features, feature)
		}
		sort.Strings(features)
		out := make([]*ast.RecordField, 0, len(features))
		for _, feature := range features {
			val, err := decodeLiteral(fields[feature])
			if err != nil {
				return nil, err
			}
			if val == nil {
				return nil, fmt.Errorf("line %d: record field %s must not be null", node.Line, feature)
			}
			out = append(out, ast.Field(feature, val))
		}
		return ast.Record(out...), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported literal %s", node.Line, node.ShortTag())
	}
}

type literalMap map[string]ast.Literal

func (m *literalMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		*m = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: store expectations must be a mapping", value.Line)
	}
	fields, err := mappingFields(value)
	if err != nil {
		return err
	}
	out := make(literalMap, len(fields))
	for name, node := range fields {
		lit, err := decodeLiteral(node)
		if err != nil {
			return err
		}
		out[name] = lit
	}
	*m = out
	return nil
}
