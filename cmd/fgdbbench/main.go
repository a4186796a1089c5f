package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/woozymasta/fgdbbench/internal/bench"
	"github.com/woozymasta/fgdbbench/internal/config"
	"github.com/woozymasta/fgdbbench/internal/envpath"
	"github.com/woozymasta/fgdbbench/internal/logger"
	"github.com/woozymasta/fgdbbench/internal/observability"
	"github.com/woozymasta/fgdbbench/internal/provision"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"  description:"Path to configuration file, built-in defaults when empty"`
	Count       int      `short:"n" long:"count"        env:"COUNT"        description:"Number of random features to generate"`
	GeoJSON     string   `long:"geojson"                env:"GEOJSON_FILE" description:"GeoJSON input, generated when missing"`
	GDB         string   `long:"gdb"                    env:"GDB_DIR"      description:"File Geodatabase output directory"`
	CacheDir    string   `long:"cache-dir"              env:"CACHE_DIR"    description:"Driver archive cache directory"`
	LibraryDirs []string `long:"library-dir"            env:"LIBRARY_DIRS" env-delim:"," description:"Extra native library directory"`
	Exports     []string `long:"export"                 description:"Also convert the input with this registered driver"`
	NoRestart   bool     `long:"no-restart"             description:"Do not restart when the driver search path was updated"`
	MetricsFile string   `long:"metrics-file"           env:"METRICS_FILE" description:"Write Prometheus metrics to this textfile"`
	TraceFile   string   `long:"trace-file"             env:"TRACE_FILE"   description:"Write stage spans to this file, - for stdout"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	runID := uuid.NewString()
	log.Logger = log.With().Str("run_id", runID).Logger()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyOptions(cfg, &opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto: make(map[string]func(string, *tls.Conn) http.RoundTripper),
		},
		Timeout: 10 * time.Minute,
	}

	prov := &provision.Provisioner{
		Fetcher:  &provision.Fetcher{Client: client},
		CacheDir: cfg.CacheDir,
		Archives: cfg.Archives,
	}
	if err := prov.Ensure(ctx); err != nil {
		log.Fatal().Err(err).Str("cache", cfg.CacheDir).Msg("Failed to provision driver archives")
	}

	if code, restarted := reconcileEnv(ctx, cfg, &opts); restarted {
		os.Exit(code)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		File:        opts.TraceFile,
		ServiceName: "fgdbbench",
		RunID:       runID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise tracing")
	}

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	log.Info().
		Int("count", cfg.Count).
		Str("geojson", cfg.Output.GeoJSON).
		Str("gdb", cfg.Output.GDB).
		Strs("exports", cfg.Exports).
		Msg("Starting benchmark")

	runErr := bench.NewRunner(cfg, metrics).Run(ctx)

	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
			log.Error().Err(err).Str("file", opts.MetricsFile).Msg("Failed to write metrics")
		}
	}
	observability.ShutdownWithTimeout(context.Background(), shutdown)

	if runErr != nil {
		log.Fatal().Err(runErr).Msg("Benchmark failed")
	}

	log.Info().Msg("Benchmark finished successfully")
}

func applyOptions(cfg *config.Config, opts *Options) {
	if opts.Count > 0 {
		cfg.Count = opts.Count
	}
	if opts.GeoJSON != "" {
		cfg.Output.GeoJSON = opts.GeoJSON
	}
	if opts.GDB != "" {
		cfg.Output.GDB = opts.GDB
	}
	if opts.CacheDir != "" {
		cfg.CacheDir = opts.CacheDir
	}
	cfg.LibraryDirs = envpath.List(cfg.LibraryDirs).Merge(opts.LibraryDirs...)
	cfg.Exports = append(cfg.Exports, opts.Exports...)
}

// reconcileEnv adds driver directories to the configured search path variables.
// When a variable changed it restarts the program so the loader sees the new
// environment, and reports the child's exit code.
func reconcileEnv(ctx context.Context, cfg *config.Config, opts *Options) (int, bool) {
	var exts []string
	for _, a := range cfg.Archives {
		exts = append(exts, a.MarkerExt)
	}

	found, err := envpath.DriverDirs(cfg.CacheDir, exts...)
	if err != nil {
		log.Fatal().Err(err).Str("cache", cfg.CacheDir).Msg("Failed to scan driver directories")
	}
	dirs := envpath.List(cfg.LibraryDirs).Merge(found...)

	env := envpath.OSEnv{}
	vars := cfg.Env.Vars()

	decision, err := envpath.Decide(env, vars, dirs, opts.NoRestart)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to update driver search path")
	}
	if len(decision.Missing) == 0 {
		log.Debug().Strs("dirs", dirs).Msg("Driver search path is complete")
		return 0, false
	}

	log.Info().
		Strs("missing", decision.Missing).
		Strs("vars", vars).
		Bool("changed", decision.Changed).
		Msg("Driver search path updated")

	if !decision.Restart {
		return 0, false
	}

	code, err := (&envpath.Restarter{Args: os.Args[1:]}).Restart(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restart")
	}

	return code, true
}
