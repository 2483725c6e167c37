package native

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/covec/lumen/vm"
)

// Build lowers every function reachable from root to Go source, compiles
// the result as a plugin, and installs each unit's CompiledEntry back
// onto its Function -- the whole of §4.3's "Installation" phase. Once
// Build returns without error, (*vm.VM).RunCompiled is safe to call on
// root instead of Run.
//
// Per-function translation is embarrassingly parallel (no unit's source
// depends on another's), so that step runs across an errgroup.Group;
// the generator still emits one module containing every function, and
// there is exactly one "go build" subprocess, matching §4.3's "the
// generator emits one module" rather than one plugin per function.
func Build(root *vm.Obj) error {
	units := Plan(root)

	bodies := make([]string, len(units))
	var g errgroup.Group
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			bodies[i] = generateUnitSource(u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "translating bytecode to Go source")
	}

	source := assembleSource("main", units, bodies)

	dir, err := stageBuildDir(source)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	pluginPath, err := compilePlugin(dir)
	if err != nil {
		return err
	}

	return linkPlugin(pluginPath, units)
}

// moduleRoot locates the directory containing this repository's own
// go.mod by walking up from this source file's own path. The staged
// build needs it to replace its module dependency with the checked-out
// tree rather than a published version, since the generated plugin has
// to import this same vm and native packages the host binary was built
// from -- a plugin built against a different copy of either package
// fails to load with a type-identity mismatch.
func moduleRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("resolving module root: runtime.Caller failed")
	}
	return filepath.Dir(filepath.Dir(file)), nil
}

// stageBuildDir writes source and a throwaway go.mod into a fresh
// directory, replacing this module's import path with the real module
// root so the build resolves vm and native against the exact code
// the caller is running, not a separately fetched copy.
func stageBuildDir(source string) (string, error) {
	root, err := moduleRoot()
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "lumen-native-*")
	if err != nil {
		return "", errors.Wrap(err, "creating build directory")
	}

	goMod := fmt.Sprintf("module lumen-native-plugin\n\ngo 1.21\n\nrequire github.com/covec/lumen v0.0.0\n\nreplace github.com/covec/lumen => %s\n", root)
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", errors.Wrap(err, "writing build go.mod")
	}
	if err := os.WriteFile(filepath.Join(dir, "compiled.go"), []byte(source), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", errors.Wrap(err, "writing generated source")
	}
	return dir, nil
}

// compilePlugin invokes the Go toolchain as a subprocess, following the
// same go build -buildmode=plugin invocation the teacher's own plugin
// persistence path uses.
func compilePlugin(dir string) (string, error) {
	outputPath := filepath.Join(dir, "compiled.so")
	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", outputPath, "compiled.go")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrapf(err, "go build -buildmode=plugin failed:\n%s", out)
	}
	return outputPath, nil
}

// linkPlugin opens the built plugin, looks up RegisterAll, and installs
// each returned entry onto the Unit it belongs to by matching the
// generated symbol name.
func linkPlugin(pluginPath string, units []*Unit) error {
	p, err := plugin.Open(pluginPath)
	if err != nil {
		return errors.Wrap(err, "opening native plugin")
	}
	sym, err := p.Lookup("RegisterAll")
	if err != nil {
		return errors.Wrap(err, "plugin missing RegisterAll")
	}
	registerAll, ok := sym.(func(func(string, vm.CompiledEntry)))
	if !ok {
		return errors.New("RegisterAll has an unexpected signature")
	}

	byName := make(map[string]*Unit, len(units))
	for _, u := range units {
		byName[u.GoName] = u
	}

	var installErr error
	registerAll(func(name string, entry vm.CompiledEntry) {
		u, ok := byName[name]
		if !ok {
			installErr = errors.Errorf("plugin registered unknown function %q", name)
			return
		}
		u.Obj.AsFunction().CompiledEntry = entry
	})
	return installErr
}
