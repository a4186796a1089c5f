package provision

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/woozymasta/fgdbbench/internal/config"

	"github.com/rs/zerolog/log"
)

// Provisioner keeps native driver archives unpacked under a cache directory.
type Provisioner struct {
	Fetcher  *Fetcher
	CacheDir string
	Archives []config.Archive
	// GOOS filters archives restricted to an OS; defaults to runtime.GOOS.
	GOOS string
}

// Ensure downloads every archive whose marker extension has no match under the
// cache directory. Archives for another OS are skipped.
func (p *Provisioner) Ensure(ctx context.Context) error {
	if err := os.MkdirAll(p.CacheDir, 0755); err != nil {
		return err
	}

	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	for _, a := range p.Archives {
		if a.OS != "" && a.OS != goos {
			log.Debug().Str("url", a.URL).Str("os", a.OS).Msg("Archive is for another platform, skipping")
			continue
		}

		found, err := HasLibraries(p.CacheDir, a.MarkerExt)
		if err != nil {
			return err
		}
		if found {
			log.Debug().
				Str("ext", a.MarkerExt).
				Str("cache", p.CacheDir).
				Msg("Driver libraries already present, skipping download")
			continue
		}

		name := ArchiveName(a)
		log.Info().
			Str("url", a.URL).
			Str("archive", name).
			Str("dest", p.CacheDir).
			Msg("Downloading driver archive")

		files, err := p.Fetcher.DownloadAndUnpack(ctx, a.URL, name, p.CacheDir)
		if err != nil {
			return err
		}

		log.Info().Str("archive", name).Int("files", len(files)).Msg("Driver archive unpacked")
	}

	return nil
}

// ArchiveName returns the configured archive name or the base name of its URL path.
func ArchiveName(a config.Archive) string {
	if a.Name != "" {
		return a.Name
	}
	if u, err := url.Parse(a.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}

	return path.Base(a.URL)
}

// HasLibraries reports whether any file with extension ext exists below root.
func HasLibraries(root, ext string) (bool, error) {
	found := false
	err := walkLibraries(root, []string{ext}, func(string) error {
		found = true
		return fs.SkipAll
	})

	return found, err
}

// FindLibraries returns all files below root with one of the extensions, in lexical order.
func FindLibraries(root string, exts ...string) ([]string, error) {
	var files []string
	err := walkLibraries(root, exts, func(p string) error {
		files = append(files, p)
		return nil
	})

	return files, err
}

func walkLibraries(root string, exts []string, fn func(path string) error) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		for _, ext := range exts {
			if ext != "" && strings.HasSuffix(name, strings.ToLower(ext)) {
				return fn(p)
			}
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
