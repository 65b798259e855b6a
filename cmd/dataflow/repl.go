package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"dataflowvm/interpreter-go/pkg/driver"
	"dataflowvm/interpreter-go/pkg/interpreter"
)

const replHelp = `Commands:
  step [n]   run n scheduling turns (default 1)
  run        run until every thread finishes or the engine halts
  threads    list live threads in scheduling order
  store      dump the single-assignment store
  help       show this message
  quit       leave the repl`

// replSession drives one engine a command at a time.
type replSession struct {
	engine *interpreter.Engine
	out    io.Writer
}

// exec runs one command line and reports whether the session should end.
func (s *replSession) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "step", "s":
		n := 1
		if len(fields) > 1 {
			parsed, err := strconv.Atoi(fields[1])
			if err != nil || parsed < 1 {
				fmt.Fprintf(s.out, "step expects a positive count, got %q\n", fields[1])
				return false
			}
			n = parsed
		}
		s.step(n)
	case "run", "r":
		if err := s.engine.Run(); err != nil {
			fmt.Fprintf(s.out, "runtime error: %v\n", err)
			return false
		}
		fmt.Fprintf(s.out, "done after %d steps\n", s.engine.Steps())
	case "threads", "t":
		s.threads()
	case "store":
		s.engine.Store().Dump(s.out)
	case "help", "?":
		fmt.Fprintln(s.out, replHelp)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "unknown command %q (try help)\n", fields[0])
	}
	return false
}

func (s *replSession) step(n int) {
	for i := 0; i < n; i++ {
		progressed, err := s.engine.Step()
		if err != nil {
			fmt.Fprintf(s.out, "runtime error: %v\n", err)
			return
		}
		if !progressed {
			fmt.Fprintf(s.out, "done after %d steps\n", s.engine.Steps())
			return
		}
	}
}

func (s *replSession) threads() {
	infos := s.engine.Threads()
	if len(infos) == 0 {
		fmt.Fprintln(s.out, "no live threads")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(s.out, "thread %d priority=%d state=%s frames=%d pending=%d", info.ID, info.Priority, info.State, info.Frames, info.Pending)
		if len(info.WaitingOn) > 0 {
			names := make([]string, 0, len(info.WaitingOn))
			for _, v := range info.WaitingOn {
				names = append(names, v.String())
			}
			fmt.Fprintf(s.out, " waiting=%s", strings.Join(names, ","))
		}
		fmt.Fprintln(s.out)
	}
}

func newReplSession(prog *driver.Program, flags runFlags, out io.Writer) *replSession {
	engine := interpreter.New(interpreter.Options{
		Policy:   flags.policy,
		MaxSteps: flags.maxSteps,
		Output:   out,
		Logger:   flags.logger(),
	})
	engine.Load(prog.Priority, prog.Instructions)
	return &replSession{engine: engine, out: out}
}

func runRepl(args []string) int {
	flags, remaining, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(remaining) != 1 {
		fmt.Fprintln(os.Stderr, "dataflow repl expects exactly one program file")
		return 1
	}
	prog, err := driver.LoadProgram(remaining[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	rl, err := readline.New("dataflow> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start repl: %v\n", err)
		return 1
	}
	defer rl.Close()

	session := newReplSession(prog, flags, rl.Stdout())
	fmt.Fprintf(rl.Stdout(), "loaded %s (policy %s, type help for commands)\n", prog.Name, flags.policy)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return 0
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "repl: %v\n", err)
			return 1
		}
		if session.exec(line) {
			return 0
		}
	}
}
