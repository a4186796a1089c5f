package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Count != 100000 {
		t.Fatalf("Count = %d, want 100000", cfg.Count)
	}
	if len(cfg.Archives) != 2 {
		t.Fatalf("len(Archives) = %d, want 2", len(cfg.Archives))
	}
	if got := cfg.Env.Vars(); len(got) != 3 || got[0] != "GDAL_DRIVER_PATH" {
		t.Fatalf("Env.Vars() = %v", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
count: 250
cache_dir: /opt/esri
output:
  geojson: /data/in.geojson
  gdb: /data/out.gdb
library_dirs:
  - /opt/esri/lib
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Count != 250 {
		t.Fatalf("Count = %d, want 250", cfg.Count)
	}
	if cfg.CacheDir != "/opt/esri" {
		t.Fatalf("CacheDir = %q", cfg.CacheDir)
	}
	if len(cfg.LibraryDirs) != 1 || cfg.LibraryDirs[0] != "/opt/esri/lib" {
		t.Fatalf("LibraryDirs = %v", cfg.LibraryDirs)
	}
	// untouched sections keep their defaults
	if cfg.Env.ExecPath != "PATH" {
		t.Fatalf("Env.ExecPath = %q, want PATH", cfg.Env.ExecPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestExportPath(t *testing.T) {
	cfg := Default()
	cfg.Output.GeoJSON = filepath.Join("scratch", "data.geojson")

	if got, want := cfg.ExportPath(".sqlite.db"), filepath.Join("scratch", "data.sqlite.db"); got != want {
		t.Fatalf("ExportPath = %q, want %q", got, want)
	}

	cfg.Output.Dir = "out"
	if got, want := cfg.ExportPath(".geojson.zst"), filepath.Join("out", "data.geojson.zst"); got != want {
		t.Fatalf("ExportPath = %q, want %q", got, want)
	}
}

func TestLoadRejectsNegativeCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("count: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("Load error = %v, want ErrInvalidCount", err)
	}
}
