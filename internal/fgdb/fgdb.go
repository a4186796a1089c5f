// Package fgdb loads the ESRI FileGDB API native library directly.
//
// The wrapper only covers library discovery and loading. Reading is not
// implemented and Write logs its input without producing a geodatabase.
package fgdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/woozymasta/fgdbbench/internal/frame"

	"github.com/rs/zerolog/log"
)

var (
	// ErrLibraryNotFound is returned when no search path entry holds a library.
	ErrLibraryNotFound = errors.New("library not found")
	// ErrNotImplemented is returned by operations the wrapper does not provide.
	ErrNotImplemented = errors.New("not implemented")
)

// Libraries names the main API library and the libraries it depends on.
type Libraries struct {
	Main         string
	Dependencies []string
}

// PlatformLibraries returns the FileGDB API library names for the current OS.
func PlatformLibraries() Libraries {
	if runtime.GOOS == "windows" {
		return Libraries{Main: "FileGDBAPI.dll", Dependencies: []string{"FileGDBAPID.dll"}}
	}

	return Libraries{Main: "libFileGDBAPI.so", Dependencies: []string{"libfgdbunixrtl.so"}}
}

// StepKind tells dependency loads from the main library load.
type StepKind int

// Load step kinds.
const (
	Dependency StepKind = iota
	Main
)

func (k StepKind) String() string {
	if k == Main {
		return "main"
	}

	return "dependency"
}

// Step is one library to load, in order.
type Step struct {
	Library string
	Path    string
	Kind    StepKind
}

// LoadError reports the step that failed to resolve or load.
type LoadError struct {
	Err     error
	Library string
	Path    string
	Kind    StepKind
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load %s library %s: %v", e.Kind, e.Library, e.Err)
	}

	return fmt.Sprintf("load %s library %s from %s: %v", e.Kind, e.Library, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SearchForLib returns the path of name in the first directory of dirs containing it.
func SearchForLib(name string, dirs []string) (string, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
}

// Plan resolves the load order: every dependency first, then the main library.
func Plan(libs Libraries, dirs []string) ([]Step, error) {
	steps := make([]Step, 0, len(libs.Dependencies)+1)
	for _, dep := range libs.Dependencies {
		steps = append(steps, Step{Library: dep, Kind: Dependency})
	}
	steps = append(steps, Step{Library: libs.Main, Kind: Main})

	for i := range steps {
		p, err := SearchForLib(steps[i].Library, dirs)
		if err != nil {
			return nil, &LoadError{Err: err, Library: steps[i].Library, Kind: steps[i].Kind}
		}
		steps[i].Path = p
	}

	return steps, nil
}

// Handle is an opaque loaded library handle.
type Handle uintptr

// Loader opens a library with global symbol visibility.
type Loader interface {
	Open(path string) (Handle, error)
	Close(h Handle) error
}

type nativeLoader struct{}

func (nativeLoader) Open(path string) (Handle, error) { return openLibrary(path) }
func (nativeLoader) Close(h Handle) error             { return closeLibrary(h) }

// Option configures Open.
type Option func(*API)

// WithSearchPath sets the directories searched for libraries.
func WithSearchPath(dirs []string) Option {
	return func(a *API) { a.searchPath = dirs }
}

// WithLibraries overrides the platform library names.
func WithLibraries(libs Libraries) Option {
	return func(a *API) { a.libs = libs }
}

// WithLoader replaces the native loader.
func WithLoader(l Loader) Option {
	return func(a *API) { a.loader = l }
}

type loaded struct {
	step   Step
	handle Handle
}

// API is a loaded FileGDB API bound to a geodatabase directory.
type API struct {
	loader     Loader
	gdbDir     string
	searchPath []string
	libs       Libraries
	loaded     []loaded
}

// Open loads the FileGDB API libraries for gdbDir. Any failed step aborts
// the open, unloads what was loaded and returns a *LoadError.
func Open(gdbDir string, opts ...Option) (*API, error) {
	a := &API{
		gdbDir: gdbDir,
		libs:   PlatformLibraries(),
		loader: nativeLoader{},
	}
	for _, opt := range opts {
		opt(a)
	}

	steps, err := Plan(a.libs, a.searchPath)
	if err != nil {
		return nil, err
	}

	for _, step := range steps {
		h, err := a.loader.Open(step.Path)
		if err != nil {
			_ = a.Close()
			return nil, &LoadError{Err: err, Library: step.Library, Path: step.Path, Kind: step.Kind}
		}
		a.loaded = append(a.loaded, loaded{step: step, handle: h})

		log.Debug().
			Str("library", step.Library).
			Str("path", step.Path).
			Str("kind", step.Kind.String()).
			Msg("Native library loaded")
	}

	log.Info().
		Str("library", a.libs.Main).
		Str("gdb", gdbDir).
		Msg("FileGDB API loaded")

	return a, nil
}

// Steps returns the executed load steps in order.
func (a *API) Steps() []Step {
	steps := make([]Step, len(a.loaded))
	for i, l := range a.loaded {
		steps[i] = l.step
	}

	return steps
}

// Read is not implemented.
func (a *API) Read() (*frame.Frame, error) {
	return nil, fmt.Errorf("read %s: %w", a.gdbDir, ErrNotImplemented)
}

// Write logs the frame it was given. It does not write a geodatabase.
func (a *API) Write(f *frame.Frame) {
	rows := 0
	var columns []string
	if f != nil {
		rows = f.Len()
		columns = f.Names()
	}

	log.Info().
		Str("gdb", a.gdbDir).
		Int("rows", rows).
		Strs("columns", columns).
		Msg("FileGDB API write requested, native writing is not wired")
}

// Close unloads libraries in reverse load order.
func (a *API) Close() error {
	var errs []error
	for i := len(a.loaded) - 1; i >= 0; i-- {
		if err := a.loader.Close(a.loaded[i].handle); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", a.loaded[i].step.Library, err))
		}
	}
	a.loaded = nil

	return errors.Join(errs...)
}
