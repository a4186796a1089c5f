// Package driver provides pluggable readers and writers for feature storage formats
// and a registry to discover them by name and capability.
package driver

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/woozymasta/fgdbbench/internal/frame"
)

// ErrNotSupported is returned by drivers asked to do something outside their capabilities.
var ErrNotSupported = errors.New("operation not supported by driver")

// Capability is a set of driver abilities.
type Capability uint8

// Driver capabilities.
const (
	Read Capability = 1 << iota
	Write
)

// Has reports whether all of c2 is in c.
func (c Capability) Has(c2 Capability) bool {
	return c&c2 == c2
}

func (c Capability) String() string {
	var sb strings.Builder
	if c.Has(Read) {
		sb.WriteByte('r')
	}
	if c.Has(Write) {
		sb.WriteByte('w')
	}

	return sb.String()
}

// Driver reads and writes one storage format.
type Driver interface {
	Name() string
	// Extensions lists file suffixes (with leading dot) handled by the driver.
	Extensions() []string
	Capabilities() Capability
	Read(ctx context.Context, path string) (*frame.Frame, error)
	Write(ctx context.Context, path string, f *frame.Frame) error
}

// Status is the outcome of a registry lookup.
type Status int

// Lookup outcomes.
const (
	NotFound Status = iota
	Found
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not found"
	}
}

// Query selects drivers by case-insensitive name substring and required capabilities.
type Query struct {
	NameContains string
	Capability   Capability
}

// Lookup is the result of a capability query.
type Lookup struct {
	Candidates []Driver
	Status     Status
}

// Driver returns the first candidate in registration order, or nil.
func (l Lookup) Driver() Driver {
	if len(l.Candidates) == 0 {
		return nil
	}

	return l.Candidates[0]
}

// Names returns the candidate driver names.
func (l Lookup) Names() []string {
	names := make([]string, len(l.Candidates))
	for i, d := range l.Candidates {
		names[i] = d.Name()
	}

	return names
}

// Registry is an ordered set of drivers.
type Registry struct {
	drivers []Driver
}

// NewRegistry returns a registry holding the given drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{}
	for _, d := range drivers {
		r.Register(d)
	}

	return r
}

// Default returns a registry with all built-in drivers.
func Default() *Registry {
	return NewRegistry(GeoJSON{}, GeoJSONZstd{}, SQLite{})
}

// Register adds d, replacing a driver with the same name.
func (r *Registry) Register(d Driver) {
	for i, existing := range r.drivers {
		if strings.EqualFold(existing.Name(), d.Name()) {
			r.drivers[i] = d
			return
		}
	}
	r.drivers = append(r.drivers, d)
}

// Drivers returns registered drivers in registration order.
func (r *Registry) Drivers() []Driver {
	return r.drivers
}

// Supported maps driver names to their capability strings.
func (r *Registry) Supported() map[string]string {
	out := make(map[string]string, len(r.drivers))
	for _, d := range r.drivers {
		out[d.Name()] = d.Capabilities().String()
	}

	return out
}

// Get returns the driver with the given name, ignoring case.
func (r *Registry) Get(name string) (Driver, bool) {
	for _, d := range r.drivers {
		if strings.EqualFold(d.Name(), name) {
			return d, true
		}
	}

	return nil, false
}

// ForPath returns the driver with the longest extension matching path.
func (r *Registry) ForPath(path string) (Driver, bool) {
	base := strings.ToLower(filepath.Base(path))

	var best Driver
	bestLen := 0
	for _, d := range r.drivers {
		for _, ext := range d.Extensions() {
			if strings.HasSuffix(base, strings.ToLower(ext)) && len(ext) > bestLen {
				best, bestLen = d, len(ext)
			}
		}
	}

	return best, best != nil
}

// Lookup runs a capability query over the registry.
func (r *Registry) Lookup(q Query) Lookup {
	needle := strings.ToLower(q.NameContains)

	var res Lookup
	for _, d := range r.drivers {
		if !strings.Contains(strings.ToLower(d.Name()), needle) {
			continue
		}
		if !d.Capabilities().Has(q.Capability) {
			continue
		}
		res.Candidates = append(res.Candidates, d)
	}

	switch len(res.Candidates) {
	case 0:
		res.Status = NotFound
	case 1:
		res.Status = Found
	default:
		res.Status = Ambiguous
	}

	return res
}
