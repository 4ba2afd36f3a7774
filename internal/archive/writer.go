package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/core/errors"
)

// Create packs the regular files directly inside srcDir into a bundle at
// dstPath, under a base directory named after the bundle. Entries are sorted
// by name and carry fixed timestamps and ownership so the same artifacts
// always produce the same bundle. It returns the number of files packed.
func Create(srcDir, dstPath string) (int, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return 0, errors.NewIO("read directory", srcDir, err)
	}

	var buf bytes.Buffer
	var compressor io.WriteCloser
	switch {
	case strings.HasSuffix(dstPath, ExtTarXZ):
		xzw, err := xz.NewWriter(&buf)
		if err != nil {
			return 0, fmt.Errorf("xz writer: %w", err)
		}
		compressor = xzw
	case strings.HasSuffix(dstPath, ExtTarGz):
		compressor = gzip.NewWriter(&buf)
	default:
		return 0, errors.NewUnsupported("bundle format", filepath.Base(dstPath))
	}

	tw := tar.NewWriter(compressor)
	base := BaseName(dstPath)
	epoch := time.Unix(0, 0).UTC()

	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     base + "/",
		Mode:     0755,
		ModTime:  epoch,
	}); err != nil {
		return 0, err
	}

	count := 0
	// os.ReadDir returns entries sorted by name.
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(srcDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, errors.NewIO("read", path, err)
		}
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     base + "/" + e.Name(),
			Mode:     0644,
			Size:     int64(len(data)),
			ModTime:  epoch,
		}); err != nil {
			return 0, err
		}
		if _, err := tw.Write(data); err != nil {
			return 0, err
		}
		count++
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := compressor.Close(); err != nil {
		return 0, err
	}
	if err := artifact.WriteFileAtomic(dstPath, buf.Bytes()); err != nil {
		return 0, err
	}
	return count, nil
}

// BaseName is the bundle's directory name: its file name without the
// archive suffix.
func BaseName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ExtTarXZ)
	return strings.TrimSuffix(name, ExtTarGz)
}
