// Command lumen is the CLI dispatcher for the language: zero-arg starts a
// REPL, one-arg runs a file, and exit codes mirror the interpreter's own
// result codes.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/covec/lumen/compiler"
	"github.com/covec/lumen/native"
	"github.com/covec/lumen/vm"
)

func main() {
	color.NoColor = !isatty.IsTerminal(os.Stderr.Fd())
	useNative := false
	trace := false
	args := os.Args[1:]
	for len(args) > 0 {
		switch args[0] {
		case "-native":
			useNative = true
			args = args[1:]
		case "-trace":
			trace = true
			args = args[1:]
		default:
			goto parsed
		}
	}
parsed:

	switch len(args) {
	case 0:
		runREPL(useNative, trace)
	case 1:
		os.Exit(runFile(args[0], useNative, trace))
	default:
		fmt.Fprintln(os.Stderr, "Usage: lumen [-native] [-trace] [path]")
		os.Exit(64)
	}
}

// runFile reads path as a complete source program and interprets it,
// returning the process exit code: 0 OK, 65 compile error, 70 runtime
// error, 47 cannot open the file.
func runFile(path string, useNative, trace bool) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q.\n", path)
		return 47
	}
	return interpret(string(source), useNative, trace, os.Stdout, os.Stderr)
}

// runREPL reads one line at a time, feeding each to interpret, until
// standard input reaches EOF.
func runREPL(useNative, trace bool) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		interpret(scanner.Text(), useNative, trace, os.Stdout, os.Stderr)
		fmt.Print("> ")
	}
	fmt.Println()
}

// interpret compiles source and runs it under either backend, printing
// diagnostics to errOut in red when errOut is a terminal. When trace is
// set, it dumps the compiled script's disassembly to errOut before
// running it. It returns the result-code exit status for the caller to
// propagate.
func interpret(source string, useNative, trace bool, out, errOut io.Writer) int {
	machine := vm.NewVM()
	machine.Out = out
	machine.ErrOut = errOut
	defer machine.Free()

	script, err := compiler.Compile(machine, source, errOut)
	if err != nil {
		return 65
	}

	if trace {
		fmt.Fprint(errOut, vm.Disassemble(script.AsFunction().Chunk, script.AsFunction().DisplayName()))
	}

	if useNative {
		if err := native.Build(script); err != nil {
			reportError(errOut, err)
			return 70
		}
		if _, err := machine.RunCompiled(script); err != nil {
			reportError(errOut, err)
			return 70
		}
		return 0
	}

	if _, err := machine.Run(script); err != nil {
		reportError(errOut, err)
		return 70
	}
	return 0
}

func reportError(errOut io.Writer, err error) {
	red := color.New(color.FgRed)
	red.Fprintln(errOut, err.Error())
}
