package native

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestModuleRootFindsOwnGoMod(t *testing.T) {
	root, err := moduleRoot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Errorf("moduleRoot() = %q, has no go.mod: %v", root, err)
	}
}

func TestStageBuildDirWritesSourceAndReplaceDirective(t *testing.T) {
	dir, err := stageBuildDir("package main\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.RemoveAll(dir)

	goMod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		t.Fatalf("reading staged go.mod: %v", err)
	}
	if !strings.Contains(string(goMod), "replace github.com/covec/lumen =>") {
		t.Errorf("go.mod = %q, want a replace directive", goMod)
	}

	source, err := os.ReadFile(filepath.Join(dir, "compiled.go"))
	if err != nil {
		t.Fatalf("reading staged source: %v", err)
	}
	if string(source) != "package main\n" {
		t.Errorf("compiled.go = %q, want the source passed in", source)
	}
}

func TestEmptyPlanHasNoUnitNamedByGoName(t *testing.T) {
	units := []*Unit{}
	byName := make(map[string]*Unit)
	for _, u := range units {
		byName[u.GoName] = u
	}
	if _, ok := byName["Fn_script_0"]; ok {
		t.Fatal("expected no unit named Fn_script_0 in an empty plan")
	}
}
