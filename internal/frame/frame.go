// Package frame holds feature data in a column oriented in-memory table.
package frame

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Column is a named attribute column. A nil cell means the property was absent.
type Column struct {
	Name   string
	Values []any
}

// Frame is an ordered table of geometries and attribute columns of equal length.
type Frame struct {
	Geometry []orb.Geometry
	columns  []Column
	index    map[string]int
}

// New returns an empty frame with the given attribute columns.
func New(names ...string) *Frame {
	f := &Frame{index: make(map[string]int, len(names))}
	for _, name := range names {
		f.addColumn(name)
	}

	return f
}

// FromCollection converts a feature collection into a frame.
// Columns are the union of all property keys, sorted by name.
func FromCollection(fc *geojson.FeatureCollection) *Frame {
	seen := make(map[string]struct{})
	for _, feat := range fc.Features {
		for k := range feat.Properties {
			seen[k] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)

	f := New(names...)
	f.Geometry = make([]orb.Geometry, 0, len(fc.Features))
	for i := range f.columns {
		f.columns[i].Values = make([]any, 0, len(fc.Features))
	}

	for _, feat := range fc.Features {
		f.Append(feat.Geometry, feat.Properties)
	}

	return f
}

// Append adds one row. Properties without a matching column are ignored.
func (f *Frame) Append(g orb.Geometry, props map[string]any) {
	f.Geometry = append(f.Geometry, g)
	for i := range f.columns {
		v, ok := props[f.columns[i].Name]
		if !ok {
			v = nil
		}
		f.columns[i].Values = append(f.columns[i].Values, v)
	}
}

// ToCollection converts the frame back into features. Nil cells are omitted.
func (f *Frame) ToCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, f.Len())

	for row := range f.Geometry {
		fc.Append(f.Feature(row))
	}

	return fc
}

// Feature returns row as a GeoJSON feature.
func (f *Frame) Feature(row int) *geojson.Feature {
	feat := geojson.NewFeature(f.Geometry[row])
	for _, c := range f.columns {
		if v := c.Values[row]; v != nil {
			feat.Properties[c.Name] = v
		}
	}

	return feat
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Geometry)
}

// Columns returns the attribute columns in order.
func (f *Frame) Columns() []Column {
	return f.columns
}

// Column returns the named column.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}

	return f.columns[i], true
}

// Names returns the attribute column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}

	return names
}

func (f *Frame) addColumn(name string) {
	if _, ok := f.index[name]; ok {
		return
	}
	f.index[name] = len(f.columns)
	f.columns = append(f.columns, Column{Name: name})
}
