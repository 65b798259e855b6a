package main

import (
	"fmt"
	"os"
	"strings"

	"dataflowvm/interpreter-go/pkg/driver"
	"dataflowvm/interpreter-go/pkg/interpreter"
)

func runProgram(args []string) int {
	flags, remaining, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(remaining) != 1 {
		if len(remaining) > 1 {
			fmt.Fprintf(os.Stderr, "unexpected arguments: %s\n", strings.Join(remaining[1:], " "))
		} else {
			printUsage()
		}
		return 1
	}

	prog, err := driver.LoadProgram(remaining[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	engine, runErr := prog.Run(interpreter.Options{
		Policy:   flags.policy,
		MaxSteps: flags.maxSteps,
		Output:   os.Stdout,
		Logger:   flags.logger(),
	})
	fmt.Fprintln(os.Stdout)
	engine.Store().Dump(os.Stdout)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", runErr)
		return 1
	}
	return 0
}
