// Package config handles configuration loading and shared data structures.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Native      Native    `yaml:"native"`
	Output      Output    `yaml:"output"`
	Env         EnvVars   `yaml:"env"`
	CacheDir    string    `yaml:"cache_dir"`
	Archives    []Archive `yaml:"archives"`
	LibraryDirs []string  `yaml:"library_dirs,omitempty"`
	Exports     []string  `yaml:"exports,omitempty"`
	Count       int       `yaml:"count"`
}

// Archive is a downloadable native driver bundle.
type Archive struct {
	URL string `yaml:"url"`
	// Name selects the archive type by extension; defaults to the URL base name.
	Name string `yaml:"name,omitempty"`
	// MarkerExt is the library extension whose presence under the cache dir
	// means the archive was already unpacked.
	MarkerExt string `yaml:"marker_ext"`
	// OS restricts the archive to a single GOOS when set.
	OS string `yaml:"os,omitempty"`
}

// EnvVars names the search path variables extended with driver directories.
type EnvVars struct {
	DriverPath  string `yaml:"driver_path"`
	ExecPath    string `yaml:"exec_path"`
	LibraryPath string `yaml:"library_path"`
}

// Native describes the FileGDB API libraries for one platform.
type Native struct {
	Main         string   `yaml:"main"`
	Dependencies []string `yaml:"dependencies"`
}

// Output holds benchmark file locations.
type Output struct {
	GeoJSON string `yaml:"geojson"`
	GDB     string `yaml:"gdb"`
	Dir     string `yaml:"dir,omitempty"` // base for optional exports, defaults to GeoJSON dir
}

// Vars returns the configured variable names in update order.
func (e EnvVars) Vars() []string {
	return []string{e.DriverPath, e.ExecPath, e.LibraryPath}
}

// Default returns the built-in configuration.
func Default() *Config {
	native := Native{
		Main:         "libFileGDBAPI.so",
		Dependencies: []string{"libfgdbunixrtl.so"},
	}
	if runtime.GOOS == "windows" {
		native = Native{
			Main:         "FileGDBAPI.dll",
			Dependencies: []string{"FileGDBAPID.dll"},
		}
	}

	return &Config{
		CacheDir: filepath.Join(os.TempDir(), "esri"),
		Archives: []Archive{
			{
				URL:       "https://raw.githubusercontent.com/Esri/file-geodatabase-api/master/FileGDB_API_1.5.2/FileGDB_API_VS2019.zip",
				MarkerExt: ".dll",
			},
			{
				URL:       "https://raw.githubusercontent.com/Esri/file-geodatabase-api/master/FileGDB_API_1.5.2/FileGDB_API_RHEL7_64.tar.gz",
				MarkerExt: ".so",
			},
		},
		Env: EnvVars{
			DriverPath:  "GDAL_DRIVER_PATH",
			ExecPath:    "PATH",
			LibraryPath: "LD_LIBRARY_PATH",
		},
		Native: native,
		Output: Output{
			GeoJSON: "/mnt/scratch/data.geojson",
			GDB:     "/mnt/scratch/data.gdb",
		},
		Count: 100000,
	}
}

// Load reads the YAML configuration file over the built-in defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// ErrInvalidCount is returned for a negative feature count.
var ErrInvalidCount = errors.New("feature count must not be negative")

// Validate checks values the benchmark cannot run with.
func (c *Config) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, c.Count)
	}

	return nil
}

// ExportPath returns the output location for an optional export with the
// given file extension, next to the GeoJSON input unless Output.Dir is set.
func (c *Config) ExportPath(ext string) string {
	dir := c.Output.Dir
	if dir == "" {
		dir = filepath.Dir(c.Output.GeoJSON)
	}
	base := filepath.Base(c.Output.GeoJSON)
	base = base[:len(base)-len(filepath.Ext(base))]

	return filepath.Join(dir, base+ext)
}
