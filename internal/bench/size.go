package bench

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// DiskUsage returns the size of a file, or the summed size of regular files
// below a directory.
func DiskUsage(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()

		return nil
	})

	return total, err
}

// HumanSize formats a byte count the way du -h does.
func HumanSize(size int64) string {
	if size < 0 {
		size = 0
	}

	return humanize.IBytes(uint64(size))
}

func (r *Runner) reportSize(path string) {
	size, err := DiskUsage(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to measure output size")
		return
	}

	r.Metrics.SetOutputSize(path, size)
	log.Info().
		Str("path", path).
		Int64("bytes", size).
		Msgf("%s\t%s", HumanSize(size), path)
}
