package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dataflowvm/interpreter-go/pkg/driver"
	"dataflowvm/interpreter-go/pkg/interpreter"
)

func loadSuites(dir string) ([]*driver.Suite, error) {
	manifestPath, err := driver.FindManifest(dir)
	if err != nil {
		return nil, err
	}
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	cacheDir, err := resolveDataflowHome()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DATAFLOW_HOME: %w", err)
	}
	return driver.NewFetcher(cacheDir).Resolve(manifest)
}

func suiteDir(args []string) (string, error) {
	switch len(args) {
	case 0:
		return ".", nil
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("unexpected arguments: %s", strings.Join(args[1:], " "))
	}
}

func runTest(args []string) int {
	flags, remaining, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	dir, err := suiteDir(remaining)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	suites, err := loadSuites(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	passed, failed := 0, 0
	for _, suite := range suites {
		paths, err := suite.Manifest.ProgramPaths()
		if err != nil {
			fmt.Fprintf(os.Stderr, "suite %s: %v\n", suite.Name, err)
			return 1
		}
		for _, path := range paths {
			label := suite.Name + "/" + filepath.Base(path)
			problems := runSuiteProgram(path, flags)
			if len(problems) == 0 {
				passed++
				fmt.Fprintf(os.Stdout, "PASS %s\n", label)
				continue
			}
			failed++
			fmt.Fprintf(os.Stdout, "FAIL %s\n", label)
			for _, problem := range problems {
				fmt.Fprintf(os.Stdout, "    %s\n", problem)
			}
		}
	}
	fmt.Fprintf(os.Stdout, "%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func runSuiteProgram(path string, flags runFlags) []string {
	prog, err := driver.LoadProgram(path)
	if err != nil {
		return []string{err.Error()}
	}
	var out bytes.Buffer
	engine, runErr := prog.Run(interpreter.Options{
		Policy:   flags.policy,
		MaxSteps: flags.maxSteps,
		Output:   &out,
		Logger:   flags.logger(),
	})
	if prog.Expect == nil {
		if runErr != nil {
			return []string{fmt.Sprintf("runtime error: %v", runErr)}
		}
		return nil
	}
	return prog.Check(engine, runErr, out.String())
}

func runDeps(args []string) int {
	dir, err := suiteDir(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	suites, err := loadSuites(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "Suite: %s\n", suites[0].Name)
	fmt.Fprintf(os.Stdout, "Dependencies: %d\n", len(suites)-1)
	for _, suite := range suites[1:] {
		fmt.Fprintf(os.Stdout, "  %s %s -> %s\n", suite.Name, suite.Source, suite.Dir)
	}
	return 0
}
