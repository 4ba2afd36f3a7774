// Package archive packs an artifact directory into a single compressed tar
// bundle and unpacks it again. It supports tar.xz and tar.gz.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/internal/validation"
)

// Bundle suffixes.
const (
	ExtTarXZ = ".tar.xz"
	ExtTarGz = ".tar.gz"
)

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens the bundle at path, choosing the decompressor by suffix.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("bundle", path)
		}
		return nil, errors.NewIO("open", path, err)
	}

	var reader io.Reader
	var decompressor io.Closer

	switch {
	case strings.HasSuffix(path, ExtTarXZ):
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &errors.ParseError{Format: "xz", Path: path, Message: err.Error(), Err: err}
		}
		reader = xzr
	case strings.HasSuffix(path, ExtTarGz):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &errors.ParseError{Format: "gzip", Path: path, Message: err.Error(), Err: err}
		}
		reader = gzr
		decompressor = gzr
	default:
		f.Close()
		return nil, errors.NewUnsupported("bundle format", filepath.Base(path))
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the reader and any underlying decompressor.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Visitor is called for each archive entry. Return true to stop iteration.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries, calling visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateBundle opens a bundle and iterates through its entries.
func IterateBundle(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// List returns the file names in a bundle without their base directory.
func List(path string) ([]string, error) {
	var names []string
	err := IterateBundle(path, func(h *tar.Header, _ io.Reader) (bool, error) {
		if h.Typeflag == tar.TypeReg {
			names = append(names, stripBase(h.Name))
		}
		return false, nil
	})
	return names, err
}

// Extract writes every file of the bundle into dstDir and returns how many
// were written. Entries must be plain files directly under the bundle's base
// directory; anything else is rejected before it is written.
func Extract(path, dstDir string) (int, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return 0, errors.NewIO("create directory", dstDir, err)
	}

	count := 0
	err := IterateBundle(path, func(h *tar.Header, content io.Reader) (bool, error) {
		switch h.Typeflag {
		case tar.TypeDir:
			return false, nil
		case tar.TypeReg:
		default:
			return true, errors.NewValidation("bundle entry", fmt.Sprintf("%s is not a regular file", h.Name))
		}

		name := stripBase(h.Name)
		if err := validation.ValidateFilename(name); err != nil {
			return true, errors.NewValidation("bundle entry", fmt.Sprintf("%s: %v", h.Name, err))
		}
		if h.Size > validation.MaxFileSize {
			return true, errors.NewValidation("bundle entry", fmt.Sprintf("%s exceeds %d bytes", h.Name, validation.MaxFileSize))
		}

		dst := filepath.Join(dstDir, name)
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return true, errors.NewIO("create", dst, err)
		}
		if _, err := io.Copy(f, io.LimitReader(content, validation.MaxFileSize)); err != nil {
			f.Close()
			return true, errors.NewIO("write", dst, err)
		}
		if err := f.Close(); err != nil {
			return true, errors.NewIO("close", dst, err)
		}
		count++
		return false, nil
	})
	return count, err
}

// stripBase removes the leading base directory of an entry name.
func stripBase(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
