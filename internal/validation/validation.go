// Package validation checks user-supplied translation codes, file names and
// input sizes before they reach the file system.
package validation

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Limits on untrusted input.
const (
	// MaxFileSize is the largest raw dataset the pipeline will read (256 MB).
	MaxFileSize = 256 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxCodeLength is the maximum translation code length.
	MaxCodeLength = 32
)

// Common validation errors.
var (
	ErrInvalidCode     = errors.New("invalid translation code")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrFilenameTooLong = errors.New("filename too long")
	ErrFileTooLarge    = errors.New("file too large")
)

// ValidateCode checks that a translation code is safe to use as a file name
// stem: 1-32 ASCII letters, digits, hyphens or underscores, not starting with
// a hyphen.
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	if len(code) > MaxCodeLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidCode, MaxCodeLength)
	}
	if code[0] == '-' {
		return fmt.Errorf("%w: %q starts with a hyphen", ErrInvalidCode, code)
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidCode, code, r)
		}
	}
	return nil
}

// ValidateFilename checks if a filename is safe and does not contain malicious characters.
// It rejects filenames with path separators, control characters, and dangerous patterns.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}

	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}

	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}

	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}

	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}

	// Can be confused with command flags.
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}

	return nil
}

// ReadLimited reads all of r, failing with ErrFileTooLarge when it holds more
// than limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}
