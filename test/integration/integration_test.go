package integration_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/covec/lumen/compiler"
	"github.com/covec/lumen/vm"
)

// run compiles and interprets source under the bytecode VM, returning
// stdout, stderr and the run error (compile or runtime).
func run(t *testing.T, source string) (stdout, stderr string, err error) {
	t.Helper()
	m := vm.NewVM()
	defer m.Free()
	var out, errOut bytes.Buffer
	m.Out = &out
	m.ErrOut = &errOut

	fn, cerr := compiler.Compile(m, source, &errOut)
	if cerr != nil {
		return out.String(), errOut.String(), cerr
	}
	_, rerr := m.Run(fn)
	return out.String(), errOut.String(), rerr
}

func TestPrintArithmeticPrecedence(t *testing.T) {
	out, _, err := run(t, `print 1 + 2 * 3;`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "7" {
		t.Errorf("output = %q, want %q", out, "7")
	}
}

func TestStringAndNumberConcatenation(t *testing.T) {
	out, _, err := run(t, `print "count: " + 5;`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "count: 5" {
		t.Errorf("output = %q, want %q", out, "count: 5")
	}
}

func TestGlobalsAndWhileLoop(t *testing.T) {
	src := `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			sum = sum + i;
			i = i + 1;
		}
		print sum;
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "10" {
		t.Errorf("output = %q, want %q", out, "10")
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	src := `
		fun add(a, b) {
			return a + b;
		}
		print add(2, 3);
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Errorf("output = %q, want %q", out, "5")
	}
}

func TestRecursiveFunction(t *testing.T) {
	src := `
		fun fib(n) {
			if (n < 2) {
				return n;
			}
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "55" {
		t.Errorf("output = %q, want %q", out, "55")
	}
}

func TestForLoopDesugaring(t *testing.T) {
	src := `
		var total = 0;
		for (var i = 0; i < 4; i = i + 1) {
			total = total + i;
		}
		print total;
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "6" {
		t.Errorf("output = %q, want %q", out, "6")
	}
}

func TestBreakAndContinue(t *testing.T) {
	src := `
		var seen = "";
		var i = 0;
		while (i < 6) {
			i = i + 1;
			if (i == 3) continue;
			if (i == 5) break;
			seen = seen + str(i);
		}
		print seen;
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "124" {
		t.Errorf("output = %q, want %q", out, "124")
	}
}

func TestAndOrShortCircuit(t *testing.T) {
	src := `
		fun sideEffect() {
			print "called";
			return true;
		}
		print false and sideEffect();
		print true or sideEffect();
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "false\ntrue"
	if strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSwitchStatement(t *testing.T) {
	src := `
		fun label(n) {
			switch (n) {
				case 1:
					return "one";
				case 2:
					return "two";
				default:
					return "other";
			}
		}
		print label(1);
		print label(2);
		print label(9);
	`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "one\ntwo\nother"
	if strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	out, _, err := run(t, `print y;`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if out != "" {
		t.Errorf("stdout = %q, want empty", out)
	}
	if !strings.Contains(err.Error(), "Undefined variable y") {
		t.Errorf("error = %q, want it to mention y", err.Error())
	}
	if !strings.Contains(err.Error(), "[line 1]") {
		t.Errorf("error = %q, want a line number", err.Error())
	}
}

func TestOperandsMustBeNumbers(t *testing.T) {
	_, _, err := run(t, "\nprint true - 1;")
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Operands must be numbers") {
		t.Errorf("error = %q, want it to mention operand types", err.Error())
	}
}

func TestCallingANonCallableIsRuntimeError(t *testing.T) {
	_, _, err := run(t, `var x = 1; x();`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Can only call functions") {
		t.Errorf("error = %q, want it to mention callability", err.Error())
	}
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	src := `
		fun two(a, b) { return a + b; }
		two(1);
	`
	_, _, err := run(t, src)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Expected 2 arguments but got 1") {
		t.Errorf("error = %q, want an arity message", err.Error())
	}
}

func TestCompileErrorReportsLineAndLocation(t *testing.T) {
	_, errOut, err := run(t, "print 1 +;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if !strings.Contains(errOut, "[line 1]") {
		t.Errorf("diagnostics = %q, want a line number", errOut)
	}
	if !strings.Contains(errOut, "at ';'") {
		t.Errorf("diagnostics = %q, want it to name the offending token", errOut)
	}
}
