package driver

import (
	"context"
	"io"
	"os"

	"github.com/woozymasta/fgdbbench/internal/frame"

	"github.com/klauspost/compress/zstd"
)

// GeoJSONZstd stores GeoJSON feature collections compressed with zstd.
type GeoJSONZstd struct {
	Level zstd.EncoderLevel // zero means zstd.SpeedDefault
}

func (GeoJSONZstd) Name() string             { return "GeoJSON.zst" }
func (GeoJSONZstd) Extensions() []string     { return []string{".geojson.zst", ".geojson.zstd"} }
func (GeoJSONZstd) Capabilities() Capability { return Read | Write }

func (GeoJSONZstd) Read(_ context.Context, path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	fc, err := decodeCollection(dec)
	if err != nil {
		return nil, err
	}

	return frame.FromCollection(fc), nil
}

func (z GeoJSONZstd) Write(_ context.Context, path string, f *frame.Frame) error {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}

	return createFile(path, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
		if err != nil {
			return err
		}
		if err := encodeCollection(enc, f.ToCollection()); err != nil {
			_ = enc.Close()
			return err
		}

		return enc.Close()
	})
}
