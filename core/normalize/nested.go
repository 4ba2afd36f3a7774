package normalize

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

// NormalizeNested reads {"Book": {"1": {"1": "text"}}} datasets. The dataset
// carries no metadata, so opts.Code is required. Book names resolve through
// opts.Lookup; a name that does not resolve is reported and the whole book is
// dropped.
func NormalizeNested(raw []byte, opts Options) (*scripture.Result, error) {
	if opts.Code == "" {
		return nil, errors.NewValidation("code", "nested datasets need a translation code")
	}
	if opts.Lookup == nil {
		return nil, errors.NewValidation("lookup", "nested datasets need a book name lookup")
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !gjson.ValidBytes(raw) {
		return nil, errors.NewParse("JSON", "", "invalid JSON document")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errors.NewParse("JSON", "", "nested dataset must be an object")
	}

	b := newBuilder(opts.Code, opts.Name, opts.Language)

	// gjson walks keys in document order, which keeps warning order stable.
	root.ForEach(func(bookKey, bookValue gjson.Result) bool {
		name := bookKey.String()
		id, ok := opts.Lookup.BookIDForName(name)
		if !ok {
			b.warn(scripture.Warning{
				Kind:     scripture.WarnUnresolvedBook,
				BookName: name,
				Message:  fmt.Sprintf("book name %q not recognized, book dropped", name),
			})
			return true
		}
		acc := b.book(id, name)

		bookValue.ForEach(func(chapterKey, chapterValue gjson.Result) bool {
			chapter, ok := parseNumber(chapterKey.String())
			if !ok {
				b.warn(scripture.Warning{
					Kind:     scripture.WarnInvalidNumber,
					Book:     id,
					BookName: acc.name,
					Message:  fmt.Sprintf("chapter key %q is not a positive number", chapterKey.String()),
				})
				return true
			}

			chapterValue.ForEach(func(verseKey, verseValue gjson.Result) bool {
				verse, ok := parseNumber(verseKey.String())
				if !ok {
					b.warn(scripture.Warning{
						Kind:     scripture.WarnInvalidNumber,
						Book:     id,
						BookName: acc.name,
						Chapter:  chapter,
						Message:  fmt.Sprintf("verse key %q is not a positive number", verseKey.String()),
					})
					return true
				}
				b.addJSONVerse(id, acc, chapter, verse, verseValue)
				return true
			})
			return true
		})
		return true
	})

	return b.finish(), nil
}
