package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"dataflowvm/interpreter-go/pkg/interpreter"
)

const cliToolVersion = "dataflow-cli 0.0.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "--help", "-h", "help":
		printUsage()
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return 0
	case "run":
		return runProgram(args[1:])
	case "test":
		return runTest(args[1:])
	case "deps":
		return runDeps(args[1:])
	case "repl":
		return runRepl(args[1:])
	default:
		return runProgram(args)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  dataflow run [--trace] [--policy=wake|retry] [--max-steps=N] <program.yml>")
	fmt.Fprintln(os.Stderr, "  dataflow test [--policy=wake|retry] [dir]")
	fmt.Fprintln(os.Stderr, "  dataflow deps [dir]")
	fmt.Fprintln(os.Stderr, "  dataflow repl [--policy=wake|retry] <program.yml>")
	fmt.Fprintln(os.Stderr, "  dataflow version")
}

// runFlags holds the engine switches shared by run, test and repl.
type runFlags struct {
	trace    bool
	policy   interpreter.Policy
	maxSteps int
}

func parseRunFlags(args []string) (runFlags, []string, error) {
	var flags runFlags
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i+1:]...)
			break
		}
		switch {
		case arg == "--trace":
			flags.trace = true
		case arg == "--policy" || arg == "--max-steps":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("%s expects a value", arg)
			}
			if err := flags.set(strings.TrimPrefix(arg, "--"), args[i+1]); err != nil {
				return flags, nil, err
			}
			i++
		case strings.HasPrefix(arg, "--policy="):
			if err := flags.set("policy", strings.TrimPrefix(arg, "--policy=")); err != nil {
				return flags, nil, err
			}
		case strings.HasPrefix(arg, "--max-steps="):
			if err := flags.set("max-steps", strings.TrimPrefix(arg, "--max-steps=")); err != nil {
				return flags, nil, err
			}
		case strings.HasPrefix(arg, "--"):
			return flags, nil, fmt.Errorf("unknown flag %s", arg)
		default:
			remaining = append(remaining, arg)
		}
	}
	return flags, remaining, nil
}

func (f *runFlags) set(name, value string) error {
	switch name {
	case "policy":
		policy, err := interpreter.ParsePolicy(strings.ToLower(strings.TrimSpace(value)))
		if err != nil {
			return fmt.Errorf("--policy: %w (expected wake or retry)", err)
		}
		f.policy = policy
	case "max-steps":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return fmt.Errorf("--max-steps expects a non-negative integer, got %q", value)
		}
		f.maxSteps = n
	}
	return nil
}

func (f runFlags) logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if f.trace {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func resolveDataflowHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv("DATAFLOW_HOME")); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return "", fmt.Errorf("resolve DATAFLOW_HOME %q: %w", home, err)
		}
		return abs, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(userHome, ".dataflow"), nil
}
