// Package bench runs the GeoJSON to File Geodatabase conversion benchmark.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/woozymasta/fgdbbench/internal/config"
	"github.com/woozymasta/fgdbbench/internal/driver"
	"github.com/woozymasta/fgdbbench/internal/envpath"
	"github.com/woozymasta/fgdbbench/internal/fgdb"
	"github.com/woozymasta/fgdbbench/internal/frame"
	"github.com/woozymasta/fgdbbench/internal/geo"
	"github.com/woozymasta/fgdbbench/internal/observability"
	"github.com/woozymasta/fgdbbench/internal/timing"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// GDBQuery selects a registry driver able to write File Geodatabases.
var GDBQuery = driver.Query{NameContains: "gdb", Capability: driver.Write}

// NativeWriter is the direct FileGDB API fallback.
type NativeWriter interface {
	Write(f *frame.Frame)
	Close() error
}

// Runner holds benchmark dependencies.
type Runner struct {
	Config    *config.Config
	Registry  *driver.Registry
	Timer     *timing.Timer
	Metrics   *observability.Collector
	Generator *geo.Generator
	// Progress receives one dot per percent of generated features.
	Progress io.Writer
	// OpenNative opens the FileGDB API when no registry driver can write gdb.
	OpenNative func(gdbDir string) (NativeWriter, error)
}

// NewRunner returns a runner with default dependencies for unset fields.
func NewRunner(cfg *config.Config, metrics *observability.Collector) *Runner {
	seed := uint64(time.Now().UnixNano())

	r := &Runner{
		Config:    cfg,
		Registry:  driver.Default(),
		Timer:     timing.New(metrics),
		Metrics:   metrics,
		Generator: geo.NewGenerator(seed, seed>>1),
		Progress:  os.Stdout,
	}
	r.OpenNative = r.openFileGDB

	return r
}

// Run generates the input if missing, converts it to the geodatabase and runs
// the configured optional exports.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.Config

	if err := r.EnsureInput(ctx); err != nil {
		return err
	}

	log.Info().
		Str("file", cfg.Output.GeoJSON).
		Int("count", cfg.Count).
		Msgf("Testing against %s with %d features.", cfg.Output.GeoJSON, cfg.Count)
	r.reportSize(cfg.Output.GeoJSON)

	for _, name := range cfg.Exports {
		if err := r.Export(ctx, name); err != nil {
			return err
		}
	}

	if err := r.ConvertGDB(ctx); err != nil {
		return err
	}

	r.reportSize(cfg.Output.GeoJSON)
	r.reportSize(cfg.Output.GDB)

	return nil
}

// EnsureInput generates Count random features into the GeoJSON file unless it exists.
func (r *Runner) EnsureInput(ctx context.Context) error {
	path := r.Config.Output.GeoJSON
	n := r.Config.Count

	if err := r.Config.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		log.Debug().Str("file", path).Msg("Input exists, skipping generation")
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var fc *geojson.FeatureCollection
	err := r.Timer.Track(ctx, fmt.Sprintf("Generate %d random features", n), func(context.Context) error {
		fc = r.Generator.Collection(n, func(int) {
			_, _ = fmt.Fprint(r.progress(), ".")
		})
		_, _ = fmt.Fprintln(r.progress())
		return nil
	})
	if err != nil {
		return err
	}
	r.Metrics.AddGenerated(n)

	return r.Timer.Track(ctx, fmt.Sprintf("Dump %d random features to %s", n, path), func(context.Context) error {
		return driver.WriteCollection(path, fc)
	})
}

// ConvertGDB reads the GeoJSON input and writes it as a File Geodatabase with
// the registry driver selected by GDBQuery, falling back to the FileGDB API.
func (r *Runner) ConvertGDB(ctx context.Context) error {
	src, dst := r.Config.Output.GeoJSON, r.Config.Output.GDB

	return r.Timer.Track(ctx, fmt.Sprintf("Convert %s to %s", src, dst), func(ctx context.Context) error {
		data, err := r.read(ctx, src)
		if err != nil {
			return err
		}

		log.Info().Interface("drivers", r.Registry.Supported()).Msg("Supported drivers")

		res := r.Registry.Lookup(GDBQuery)
		switch res.Status {
		case driver.NotFound:
			log.Info().Msg("No registered driver writes File Geodatabases, using the FileGDB API")
			native, err := r.OpenNative(dst)
			if err != nil {
				return err
			}
			defer func() {
				if err := native.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to unload FileGDB API")
				}
			}()
			native.Write(data)
			return nil

		case driver.Ambiguous:
			log.Warn().
				Strs("candidates", res.Names()).
				Str("selected", res.Driver().Name()).
				Msg("Several drivers write File Geodatabases, using the first registered")
			fallthrough

		default:
			d := res.Driver()
			log.Info().Str("driver", d.Name()).Msg("File Geodatabase driver found")
			return r.write(ctx, d, dst, data)
		}
	})
}

// Export converts the GeoJSON input with the named registry driver.
func (r *Runner) Export(ctx context.Context, name string) error {
	d, ok := r.Registry.Get(name)
	if !ok {
		return fmt.Errorf("export %s: unknown driver", name)
	}
	if !d.Capabilities().Has(driver.Write) {
		return fmt.Errorf("export %s: %w", name, driver.ErrNotSupported)
	}

	src := r.Config.Output.GeoJSON
	dst := r.Config.ExportPath(d.Extensions()[0])

	err := r.Timer.Track(ctx, fmt.Sprintf("Convert %s to %s", src, dst), func(ctx context.Context) error {
		data, err := r.read(ctx, src)
		if err != nil {
			return err
		}
		return r.write(ctx, d, dst, data)
	})
	if err != nil {
		return err
	}

	r.reportSize(src)
	r.reportSize(dst)

	return nil
}

func (r *Runner) read(ctx context.Context, path string) (*frame.Frame, error) {
	d, ok := r.Registry.ForPath(path)
	if !ok || !d.Capabilities().Has(driver.Read) {
		d = driver.GeoJSON{}
	}

	var data *frame.Frame
	err := r.Timer.Track(ctx, "Read "+path, func(ctx context.Context) error {
		var err error
		data, err = d.Read(ctx, path)
		return err
	})

	return data, err
}

func (r *Runner) write(ctx context.Context, d driver.Driver, path string, data *frame.Frame) error {
	return r.Timer.Track(ctx, "Write "+path, func(ctx context.Context) error {
		return d.Write(ctx, path, data)
	})
}

func (r *Runner) progress() io.Writer {
	if r.Progress == nil {
		return io.Discard
	}

	return r.Progress
}

func (r *Runner) openFileGDB(gdbDir string) (NativeWriter, error) {
	cfg := r.Config
	dirs := envpath.Split(os.Getenv(cfg.Env.DriverPath)).Merge(cfg.LibraryDirs...)

	return fgdb.Open(gdbDir,
		fgdb.WithSearchPath(dirs),
		fgdb.WithLibraries(fgdb.Libraries{
			Main:         cfg.Native.Main,
			Dependencies: cfg.Native.Dependencies,
		}),
	)
}
