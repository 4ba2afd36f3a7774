package normalize

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

// Options carries translation identity and the book-name table.
// Non-empty Code, Name and Language override whatever the dataset declares.
type Options struct {
	Code     string
	Name     string
	Language string
	Lookup   *canon.Lookup
}

// Normalize detects the format of raw and dispatches to the matching normalizer.
// An undetectable shape returns an UnsupportedError; the caller skips the file.
func Normalize(raw []byte, opts Options) (*scripture.Result, Format, error) {
	format := DetectFormat(raw)

	var (
		res *scripture.Result
		err error
	)
	switch format {
	case FormatNested:
		res, err = NormalizeNested(raw, opts)
	case FormatFlat:
		res, err = NormalizeFlat(raw, opts)
	case FormatZefania:
		res, err = NormalizeZefania(raw, opts)
	default:
		return nil, FormatUnknown, errors.NewUnsupported("dataset format", "shape is neither nested, flat nor Zefania")
	}
	return res, format, err
}

// parseNumber parses a chapter or verse key; only positive integers are valid.
func parseNumber(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
