// Package artifact persists canonical translations and search indexes.
//
// Translations are written as compact JSON (see package scripture for the
// field names), optionally xz-compressed when the path ends in ".xz", or as a
// SQLite database for chapter-at-a-time reads. All writes are atomic.
package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
	"github.com/FocuswithJustin/versestream/core/search"
)

// File name suffixes.
const (
	TranslationExt = ".json"
	IndexExt       = ".index.json"
	XZExt          = ".xz"
	SQLiteExt      = ".sqlite"
)

// xzMagic is the six-byte XZ stream header.
var xzMagic = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// Injectable functions for testing
var (
	osCreateTemp = os.CreateTemp
	osRename     = os.Rename
)

// Encode returns the compact JSON form of v without a trailing newline and
// without HTML escaping.
func Encode(v any) ([]byte, error) {
	return scripture.MarshalCompact(v)
}

// WriteTranslation writes t to path and returns the number of bytes written.
func WriteTranslation(path string, t *scripture.Translation) (int64, error) {
	data, err := Encode(t)
	if err != nil {
		return 0, fmt.Errorf("failed to encode translation %s: %w", t.Code, err)
	}
	return writeMaybeCompressed(path, data)
}

// ReadTranslation reads a translation written by WriteTranslation. XZ
// compression is detected from the stream header, not the file name.
func ReadTranslation(path string) (*scripture.Translation, error) {
	data, err := readMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	var t scripture.Translation
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &errors.ParseError{Format: "translation artifact", Path: path, Message: err.Error(), Err: err}
	}
	return &t, nil
}

// WriteIndex writes ix to path and returns the number of bytes written.
func WriteIndex(path string, ix *search.Index) (int64, error) {
	data, err := Encode(ix)
	if err != nil {
		return 0, fmt.Errorf("failed to encode index %s: %w", ix.Code(), err)
	}
	return writeMaybeCompressed(path, data)
}

// ReadIndex reads an index written by WriteIndex and rebuilds its postings.
func ReadIndex(path string) (*search.Index, error) {
	data, err := readMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	var ix search.Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, &errors.ParseError{Format: "index artifact", Path: path, Message: err.Error(), Err: err}
	}
	return &ix, nil
}

// TranslationPath returns the artifact path for code inside dir.
func TranslationPath(dir, code string, compress bool) string {
	p := filepath.Join(dir, code+TranslationExt)
	if compress {
		p += XZExt
	}
	return p
}

// IndexPath returns the index artifact path for code inside dir.
func IndexPath(dir, code string, compress bool) string {
	p := filepath.Join(dir, code+IndexExt)
	if compress {
		p += XZExt
	}
	return p
}

// SizeReduction returns the percentage by which output is smaller than source.
// It is negative when the output grew.
func SizeReduction(source, output int64) float64 {
	if source <= 0 {
		return 0
	}
	return 100 * (1 - float64(output)/float64(source))
}

func writeMaybeCompressed(path string, data []byte) (int64, error) {
	if strings.HasSuffix(path, XZExt) {
		compressed, err := compress(data)
		if err != nil {
			return 0, fmt.Errorf("failed to compress %s: %w", path, err)
		}
		data = compressed
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func readMaybeCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("artifact", path)
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, _ := br.Peek(len(xzMagic)); bytes.Equal(magic, xzMagic) {
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, errors.NewIO("decompress", path, err)
		}
		r = xr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return data, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial artifact.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create directory", dir, err)
	}

	tempFile, err := osCreateTemp(dir, ".artifact-*")
	if err != nil {
		return errors.NewIO("create temp file", dir, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return errors.NewIO("write", tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return errors.NewIO("close", tempPath, err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return errors.NewIO("chmod", tempPath, err)
	}
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}
