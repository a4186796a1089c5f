// Package provision downloads and unpacks native driver archives into a local cache.
package provision

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnsupportedArchive is returned for archive names without a known extension.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	// ErrUnsafePath is returned for archive entries that would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// Kind is an archive container format.
type Kind int

// Supported archive kinds.
const (
	Zip Kind = iota + 1
	TarGz
)

func (k Kind) String() string {
	switch k {
	case Zip:
		return "zip"
	case TarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

// KindFromName derives the archive kind from a file name extension.
func KindFromName(name string) (Kind, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedArchive, name)
	}
}

// Fetcher downloads archives over HTTP.
type Fetcher struct {
	Client *http.Client
}

// DownloadAndUnpack fetches url fully into memory and extracts it into dest.
// name selects the archive kind; dest is not created for unsupported kinds.
func (f *Fetcher) DownloadAndUnpack(ctx context.Context, url, name, dest string) ([]string, error) {
	kind, err := KindFromName(name)
	if err != nil {
		return nil, err
	}

	data, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("url", url).
		Str("kind", kind.String()).
		Int("bytes", len(data)).
		Msg("Archive downloaded")

	return Unpack(kind, data, dest)
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// Unpack extracts an in-memory archive into dest and returns the written file paths.
func Unpack(kind Kind, data []byte, dest string) ([]string, error) {
	switch kind {
	case Zip:
		return unpackZip(data, dest)
	case TarGz:
		return unpackTarGz(data, dest)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, kind)
	}
}

func unpackZip(data []byte, dest string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range zr.File {
		target, err := entryPath(dest, entry.Name)
		if err != nil {
			return files, err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return files, fmt.Errorf("open %s: %w", entry.Name, err)
		}
		err = writeEntry(target, rc, entry.Mode())
		_ = rc.Close()
		if err != nil {
			return files, err
		}
		files = append(files, target)
	}

	return files, nil
}

func unpackTarGz(data []byte, dest string) ([]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}

	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, fmt.Errorf("read tar: %w", err)
		}

		target, err := entryPath(dest, hdr.Name)
		if err != nil {
			return files, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode()); err != nil {
				return files, err
			}
			files = append(files, target)
		case tar.TypeSymlink:
			linked := path.Join(path.Dir(strings.ReplaceAll(hdr.Name, `\`, "/")), hdr.Linkname)
			if _, err := entryPath(dest, linked); path.IsAbs(hdr.Linkname) || err != nil {
				return files, fmt.Errorf("%w: %s -> %s", ErrUnsafePath, hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return files, err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return files, err
			}
			files = append(files, target)
		case tar.TypeLink:
			// hard link names are relative to the archive root
			source, err := entryPath(dest, hdr.Linkname)
			if err != nil {
				return files, fmt.Errorf("%w: %s -> %s", ErrUnsafePath, hdr.Name, hdr.Linkname)
			}
			if err := linkEntry(source, target); err != nil {
				return files, err
			}
			files = append(files, target)
		default:
			log.Trace().Str("entry", hdr.Name).Msg("Skipping unsupported tar entry")
		}
	}

	return files, nil
}

// entryPath resolves an archive entry name below dest.
func entryPath(dest, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return filepath.Join(dest, filepath.FromSlash(clean)), nil
}

// linkEntry hard links target to an already extracted source, copying the
// file when the filesystem refuses links.
func linkEntry(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	_ = os.Remove(target)
	if err := os.Link(source, target); err == nil {
		return nil
	}

	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("link %s: %w", target, err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	return writeEntry(target, src, info.Mode())
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}

	return f.Close()
}
