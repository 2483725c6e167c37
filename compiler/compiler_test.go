package compiler

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/covec/lumen/vm"
)

func compile(t *testing.T, source string) (*vm.Obj, string, error) {
	t.Helper()
	m := vm.NewVM()
	var errOut bytes.Buffer
	fn, err := Compile(m, source, &errOut)
	return fn, errOut.String(), err
}

func TestCompileValidProgramProducesNoDiagnostics(t *testing.T) {
	_, errOut, err := compile(t, `print 1 + 2;`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errOut != "" {
		t.Errorf("diagnostics = %q, want empty", errOut)
	}
}

func TestCompileMissingSemicolonReportsLineAndLocation(t *testing.T) {
	_, errOut, err := compile(t, "print 1")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if !strings.Contains(errOut, "[line 1] Error at end") {
		t.Errorf("diagnostics = %q, want an end-of-input location", errOut)
	}
}

func TestCompileUnexpectedTokenReportsLexeme(t *testing.T) {
	_, errOut, err := compile(t, "print 1 +;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if !strings.Contains(errOut, "at ';'") {
		t.Errorf("diagnostics = %q, want it to name the offending token", errOut)
	}
}

func TestCompileReturnOutsideFunctionIsAnError(t *testing.T) {
	_, _, err := compile(t, "return 1;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestCompileContinueOutsideLoopIsAnError(t *testing.T) {
	_, _, err := compile(t, "continue;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestCompileBreakOutsideLoopIsAnError(t *testing.T) {
	_, _, err := compile(t, "break;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestCompileErrorCountAccumulatesAcrossSynchronization(t *testing.T) {
	_, _, err := compile(t, "print 1 +; print 2 +;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	ce, ok := err.(*vm.CompileError)
	if !ok {
		t.Fatalf("err = %T, want *vm.CompileError", err)
	}
	if ce.Count != 2 {
		t.Errorf("Count = %d, want 2", ce.Count)
	}
}

func TestCompileFunctionEmitsConstant(t *testing.T) {
	fn, _, err := compile(t, `
		fun add(a, b) { return a + b; }
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	constants := fn.AsFunction().Chunk.Constants
	found := false
	for _, c := range constants {
		if c.IsFunction() && c.Obj.AsFunction().Name == "add" {
			found = true
		}
	}
	if !found {
		t.Error("expected the top-level chunk's constant pool to contain the add function")
	}
}

func TestCompileTooManyParametersIsAnError(t *testing.T) {
	var params []string
	for i := 0; i < 256; i++ {
		params = append(params, fmt.Sprintf("p%d", i))
	}
	source := fmt.Sprintf("fun f(%s) { return 0; }", strings.Join(params, ", "))
	_, _, err := compile(t, source)
	if err == nil {
		t.Fatal("expected a compile error for more than 255 parameters")
	}
}

func TestCompileTwoHundredFiftyFiveParametersIsFine(t *testing.T) {
	var params []string
	for i := 0; i < 255; i++ {
		params = append(params, fmt.Sprintf("p%d", i))
	}
	source := fmt.Sprintf("fun f(%s) { return 0; }", strings.Join(params, ", "))
	_, _, err := compile(t, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompileRedeclaringALocalInTheSameScopeShadowsIt(t *testing.T) {
	_, _, err := compile(t, `
		fun f() {
			var x = 1;
			var x = 2;
			return x;
		}
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompileShadowingInNestedScopeIsFine(t *testing.T) {
	_, _, err := compile(t, `
		fun f() {
			var x = 1;
			{
				var x = 2;
			}
			return x;
		}
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompileAssigningToUndeclaredLocalFallsBackToGlobal(t *testing.T) {
	_, _, err := compile(t, `
		fun f() {
			y = 1;
			return y;
		}
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
