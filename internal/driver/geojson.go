package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/woozymasta/fgdbbench/internal/frame"

	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb/geojson"
)

func init() {
	// float formatting must stay lossless for round trips
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	geojson.CustomJSONMarshaler = json
	geojson.CustomJSONUnmarshaler = json
}

// GeoJSON reads and writes plain GeoJSON feature collections.
type GeoJSON struct{}

func (GeoJSON) Name() string             { return "GeoJSON" }
func (GeoJSON) Extensions() []string     { return []string{".geojson", ".json"} }
func (GeoJSON) Capabilities() Capability { return Read | Write }

// Read loads the whole collection at path into a frame.
func (GeoJSON) Read(_ context.Context, path string) (*frame.Frame, error) {
	fc, err := ReadCollection(path)
	if err != nil {
		return nil, err
	}

	return frame.FromCollection(fc), nil
}

// Write stores the frame at path as a single feature collection.
func (GeoJSON) Write(_ context.Context, path string, f *frame.Frame) error {
	return WriteCollection(path, f.ToCollection())
}

// ReadCollection decodes the GeoJSON feature collection at path.
func ReadCollection(path string) (*geojson.FeatureCollection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return decodeCollection(file)
}

// WriteCollection encodes fc to path in one write, creating parent directories.
func WriteCollection(path string, fc *geojson.FeatureCollection) error {
	return createFile(path, func(w io.Writer) error {
		return encodeCollection(w, fc)
	})
}

func decodeCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	return fc, nil
}

func encodeCollection(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode feature collection: %w", err)
	}

	_, err = w.Write(data)
	return err
}

// createFile truncates path and hands it to write. Close errors are reported.
func createFile(path string, write func(w io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	// We care about write errors on close
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return write(f)
}
