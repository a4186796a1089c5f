package fgdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/fgdbbench/internal/frame"
	"github.com/woozymasta/fgdbbench/internal/geo"
)

var testLibs = Libraries{Main: "libFileGDBAPI.so", Dependencies: []string{"libfgdbunixrtl.so"}}

type fakeLoader struct {
	fail   map[string]error
	opened []string
	closed []Handle
	next   Handle
}

func (l *fakeLoader) Open(path string) (Handle, error) {
	if err := l.fail[filepath.Base(path)]; err != nil {
		return 0, err
	}
	l.opened = append(l.opened, filepath.Base(path))
	l.next++
	return l.next, nil
}

func (l *fakeLoader) Close(h Handle) error {
	l.closed = append(l.closed, h)
	return nil
}

func writeLib(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("elf"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSearchForLibNotFound(t *testing.T) {
	_, err := SearchForLib("libFileGDBAPI.so", []string{t.TempDir(), ""})
	if !errors.Is(err, ErrLibraryNotFound) {
		t.Fatalf("SearchForLib error = %v, want ErrLibraryNotFound", err)
	}
}

func TestSearchForLibFirstMatchWins(t *testing.T) {
	root := t.TempDir()
	first := writeLib(t, filepath.Join(root, "a"), "libFileGDBAPI.so")
	writeLib(t, filepath.Join(root, "b"), "libFileGDBAPI.so")

	got, err := SearchForLib("libFileGDBAPI.so", []string{
		filepath.Join(root, "empty"),
		filepath.Join(root, "a"),
		filepath.Join(root, "b"),
	})
	if err != nil {
		t.Fatalf("SearchForLib: %v", err)
	}
	if got != first {
		t.Fatalf("SearchForLib = %q, want %q", got, first)
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("returned path does not exist: %v", err)
	}
}

func TestPlanOrder(t *testing.T) {
	dir := t.TempDir()
	writeLib(t, dir, "libFileGDBAPI.so")
	writeLib(t, dir, "libfgdbunixrtl.so")

	steps, err := Plan(testLibs, []string{dir})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2", len(steps))
	}
	if steps[0].Kind != Dependency || steps[0].Library != "libfgdbunixrtl.so" {
		t.Fatalf("steps[0] = %+v, want dependency first", steps[0])
	}
	if steps[1].Kind != Main || steps[1].Path != filepath.Join(dir, "libFileGDBAPI.so") {
		t.Fatalf("steps[1] = %+v, want main library last", steps[1])
	}
}

func TestPlanMissingDependency(t *testing.T) {
	dir := t.TempDir()
	writeLib(t, dir, "libFileGDBAPI.so")

	_, err := Plan(testLibs, []string{dir})

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Plan error = %v, want *LoadError", err)
	}
	if loadErr.Kind != Dependency || loadErr.Library != "libfgdbunixrtl.so" {
		t.Fatalf("LoadError = %+v", loadErr)
	}
	if !errors.Is(err, ErrLibraryNotFound) {
		t.Fatalf("Plan error = %v, want ErrLibraryNotFound", err)
	}
}

func TestOpenLoadsDependenciesFirst(t *testing.T) {
	dir := t.TempDir()
	writeLib(t, dir, "libFileGDBAPI.so")
	writeLib(t, dir, "libfgdbunixrtl.so")

	loader := &fakeLoader{}
	api, err := Open("/tmp/data.gdb", WithSearchPath([]string{dir}), WithLibraries(testLibs), WithLoader(loader))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if len(loader.opened) != 2 || loader.opened[0] != "libfgdbunixrtl.so" || loader.opened[1] != "libFileGDBAPI.so" {
		t.Fatalf("load order = %v", loader.opened)
	}
	if steps := api.Steps(); len(steps) != 2 || steps[1].Kind != Main {
		t.Fatalf("Steps() = %+v", steps)
	}

	if err := api.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(loader.closed) != 2 || loader.closed[0] != 2 || loader.closed[1] != 1 {
		t.Fatalf("close order = %v, want [2 1]", loader.closed)
	}
}

func TestOpenMainLoadFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeLib(t, dir, "libFileGDBAPI.so")
	writeLib(t, dir, "libfgdbunixrtl.so")

	boom := errors.New("undefined symbol")
	loader := &fakeLoader{fail: map[string]error{"libFileGDBAPI.so": boom}}

	_, err := Open("/tmp/data.gdb", WithSearchPath([]string{dir}), WithLibraries(testLibs), WithLoader(loader))

	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.Kind != Main {
		t.Fatalf("Open error = %v, want main *LoadError", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Open error = %v, want wrapped cause", err)
	}
	if len(loader.closed) != 1 {
		t.Fatalf("dependency handles closed = %d, want 1", len(loader.closed))
	}
}

func TestReadNotImplemented(t *testing.T) {
	api := &API{gdbDir: "/tmp/data.gdb", loader: &fakeLoader{}}
	if _, err := api.Read(); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Read error = %v, want ErrNotImplemented", err)
	}
}

func TestWriteIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data.gdb")
	api := &API{gdbDir: dir, loader: &fakeLoader{}}

	api.Write(frame.FromCollection(geo.NewGenerator(1, 2).Collection(5, nil)))
	api.Write(nil)

	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Write created output: %v", err)
	}
}
