package provision

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/fgdbbench/internal/config"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var archiveFiles = map[string]string{
	"FileGDB_API/lib/libFileGDBAPI.so":    "main",
	"FileGDB_API/lib/libfgdbunixrtl.so":   "dep",
	"FileGDB_API/include/FileGDBAPI.h":    "header",
	"FileGDB_API/bin64/FileGDBAPI.dll":    "win",
	"FileGDB_API/bin64/deep/nested/a.txt": "nested",
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func serve(t *testing.T, routes map[string][]byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func assertExtracted(t *testing.T, dest string, files map[string]string) {
	t.Helper()

	for name, body := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != body {
			t.Fatalf("%s = %q, want %q", name, got, body)
		}
	}
}

func TestKindFromName(t *testing.T) {
	cases := map[string]Kind{
		"FileGDB_API_VS2019.zip":      Zip,
		"FileGDB_API_RHEL7_64.tar.gz": TarGz,
		"bundle.TGZ":                  TarGz,
	}
	for name, want := range cases {
		got, err := KindFromName(name)
		if err != nil || got != want {
			t.Fatalf("KindFromName(%q) = %v, %v; want %v", name, got, err, want)
		}
	}

	if _, err := KindFromName("driver.7z"); !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("KindFromName(.7z) error = %v, want ErrUnsupportedArchive", err)
	}
}

func TestDownloadAndUnpack(t *testing.T) {
	srv := serve(t, map[string][]byte{
		"/a.zip":    buildZip(t, archiveFiles),
		"/b.tar.gz": buildTarGz(t, archiveFiles),
	}, nil)

	f := &Fetcher{Client: srv.Client()}
	for _, name := range []string{"a.zip", "b.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "new", "dest")
			files, err := f.DownloadAndUnpack(context.Background(), srv.URL+"/"+name, name, dest)
			if err != nil {
				t.Fatalf("DownloadAndUnpack: %v", err)
			}
			if len(files) != len(archiveFiles) {
				t.Fatalf("extracted %d files, want %d", len(files), len(archiveFiles))
			}
			assertExtracted(t, dest, archiveFiles)
		})
	}
}

func buildTarGzHeaders(t *testing.T, hdrs []*tar.Header, bodies map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, hdr := range hdrs {
		body := bodies[hdr.Name]
		hdr.Size = int64(len(body))
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func TestUnpackTarGzHardLink(t *testing.T) {
	data := buildTarGzHeaders(t, []*tar.Header{
		{Name: "lib/libFileGDBAPI.so", Mode: 0644, Typeflag: tar.TypeReg},
		{Name: "lib/libFileGDBAPI.so.1", Linkname: "lib/libFileGDBAPI.so", Mode: 0644, Typeflag: tar.TypeLink},
	}, map[string]string{"lib/libFileGDBAPI.so": "main"})

	dest := t.TempDir()
	files, err := Unpack(TarGz, data, dest)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("extracted %v, want 2 files", files)
	}
	assertExtracted(t, dest, map[string]string{
		"lib/libFileGDBAPI.so":   "main",
		"lib/libFileGDBAPI.so.1": "main",
	})
}

func TestUnpackTarGzHardLinkOutsideDest(t *testing.T) {
	data := buildTarGzHeaders(t, []*tar.Header{
		{Name: "lib/passwd", Linkname: "../../etc/passwd", Mode: 0644, Typeflag: tar.TypeLink},
	}, nil)

	dest := t.TempDir()
	if _, err := Unpack(TarGz, data, dest); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Unpack error = %v, want ErrUnsafePath", err)
	}
	if _, err := os.Lstat(filepath.Join(dest, "lib", "passwd")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("escaping link was created: %v", err)
	}
}

func TestDownloadAndUnpackUnsupportedDoesNotCreateDest(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, map[string][]byte{"/a.rar": []byte("x")}, &hits)

	dest := filepath.Join(t.TempDir(), "dest")
	_, err := (&Fetcher{Client: srv.Client()}).DownloadAndUnpack(context.Background(), srv.URL+"/a.rar", "a.rar", dest)
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("error = %v, want ErrUnsupportedArchive", err)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination exists after unsupported archive: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("server hits = %d, want 0", hits.Load())
	}
}

func TestDownloadStatusError(t *testing.T) {
	srv := serve(t, nil, nil)

	_, err := (&Fetcher{Client: srv.Client()}).DownloadAndUnpack(context.Background(), srv.URL+"/missing.zip", "missing.zip", t.TempDir())
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestEntryPath(t *testing.T) {
	dest := t.TempDir()

	for _, name := range []string{"lib/a.so", "./lib/a.so", "lib/../lib/a.so"} {
		got, err := entryPath(dest, name)
		if err != nil {
			t.Fatalf("entryPath(%q): %v", name, err)
		}
		if want := filepath.Join(dest, "lib", "a.so"); got != want {
			t.Fatalf("entryPath(%q) = %q, want %q", name, got, want)
		}
	}

	for _, name := range []string{"../evil.so", "lib/../../evil.so", "/etc/evil.so", `..\evil.so`} {
		if _, err := entryPath(dest, name); !errors.Is(err, ErrUnsafePath) {
			t.Fatalf("entryPath(%q) error = %v, want ErrUnsafePath", name, err)
		}
	}
}

func TestEnsureDownloadsOnlyMissing(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, map[string][]byte{
		"/win.zip":    buildZip(t, map[string]string{"bin/FileGDBAPI.dll": "dll"}),
		"/lin.tar.gz": buildTarGz(t, map[string]string{"lib/libFileGDBAPI.so": "so"}),
	}, &hits)

	cache := filepath.Join(t.TempDir(), "esri")
	p := &Provisioner{
		Fetcher:  &Fetcher{Client: srv.Client()},
		CacheDir: cache,
		Archives: []config.Archive{
			{URL: srv.URL + "/win.zip", MarkerExt: ".dll"},
			{URL: srv.URL + "/lin.tar.gz", MarkerExt: ".so"},
		},
	}

	if err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits after first Ensure = %d, want 2", hits.Load())
	}

	if err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits after second Ensure = %d, want 2", hits.Load())
	}

	libs, err := FindLibraries(cache, ".so", ".dll")
	if err != nil {
		t.Fatalf("FindLibraries: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("FindLibraries = %v, want 2 files", libs)
	}
}

func TestEnsureSkipsOtherOS(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, nil, &hits)

	p := &Provisioner{
		Fetcher:  &Fetcher{Client: srv.Client()},
		CacheDir: t.TempDir(),
		Archives: []config.Archive{{URL: srv.URL + "/win.zip", MarkerExt: ".dll", OS: "windows"}},
		GOOS:     "linux",
	}
	if err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("hits = %d, want 0", hits.Load())
	}
}

func TestArchiveName(t *testing.T) {
	a := config.Archive{URL: "https://example.com/x/FileGDB_API_RHEL7_64.tar.gz?raw=1"}
	if got := ArchiveName(a); got != "FileGDB_API_RHEL7_64.tar.gz" {
		t.Fatalf("ArchiveName = %q", got)
	}
	a.Name = "override.zip"
	if got := ArchiveName(a); got != "override.zip" {
		t.Fatalf("ArchiveName = %q", got)
	}
}

func TestHasLibrariesMissingRoot(t *testing.T) {
	found, err := HasLibraries(filepath.Join(t.TempDir(), "absent"), ".so")
	if err != nil || found {
		t.Fatalf("HasLibraries = %v, %v; want false, nil", found, err)
	}
}
