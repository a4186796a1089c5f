// Package envpath keeps driver directories on the process search path variables.
//
// The dynamic loader reads its search path once at process start, so a process
// that had to extend the variables restarts itself (see Restarter) before any
// native library is loaded.
package envpath

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/fgdbbench/internal/provision"
)

// Env reads and writes environment variables.
type Env interface {
	Getenv(key string) string
	Setenv(key, value string) error
}

// OSEnv is the process environment.
type OSEnv struct{}

func (OSEnv) Getenv(key string) string       { return os.Getenv(key) }
func (OSEnv) Setenv(key, value string) error { return os.Setenv(key, value) }

// MapEnv is an in-memory environment.
type MapEnv map[string]string

func (m MapEnv) Getenv(key string) string { return m[key] }

func (m MapEnv) Setenv(key, value string) error {
	m[key] = value
	return nil
}

// List is an ordered set of directories from a path list variable.
type List []string

// Split parses a path list value, dropping blank segments.
func Split(value string) List {
	var l List
	for _, dir := range filepath.SplitList(value) {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		l = append(l, dir)
	}

	return l
}

// Contains reports whether dir is in the list, comparing cleaned paths.
func (l List) Contains(dir string) bool {
	want := filepath.Clean(dir)
	for _, d := range l {
		if filepath.Clean(d) == want {
			return true
		}
	}

	return false
}

// Merge returns the list with dirs appended. Blank and duplicate entries are dropped.
func (l List) Merge(dirs ...string) List {
	out := make(List, 0, len(l)+len(dirs))
	for _, d := range append(append([]string{}, l...), dirs...) {
		if strings.TrimSpace(d) == "" || out.Contains(d) {
			continue
		}
		out = append(out, d)
	}

	return out
}

// String joins the list with the OS path list separator.
func (l List) String() string {
	return strings.Join(l, string(os.PathListSeparator))
}

// Join builds a path list value from dirs, skipping blanks and duplicates.
func Join(dirs ...string) string {
	return List(nil).Merge(dirs...).String()
}

// DriverDirs returns the distinct parent directories of library files under root.
func DriverDirs(root string, exts ...string) ([]string, error) {
	files, err := provision.FindLibraries(root, exts...)
	if err != nil {
		return nil, err
	}

	var dirs List
	for _, f := range files {
		dirs = dirs.Merge(filepath.Dir(f))
	}

	return dirs, nil
}

// Missing returns the dirs absent from at least one of vars.
func Missing(env Env, vars, dirs []string) []string {
	var missing []string
	for _, dir := range dirs {
		for _, v := range vars {
			if !Split(env.Getenv(v)).Contains(dir) {
				missing = append(missing, dir)
				break
			}
		}
	}

	return missing
}

// Reconcile appends dirs to every variable missing one of them.
// It reports whether any variable changed.
func Reconcile(env Env, vars, dirs []string) (bool, error) {
	changed := false
	for _, v := range vars {
		current := Split(env.Getenv(v))

		complete := true
		for _, dir := range dirs {
			if !current.Contains(dir) {
				complete = false
				break
			}
		}
		if complete {
			continue
		}

		if err := env.Setenv(v, current.Merge(dirs...).String()); err != nil {
			return changed, err
		}
		changed = true
	}

	return changed, nil
}
