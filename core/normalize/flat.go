package normalize

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

// NormalizeFlat reads datasets of the form
//
//	{"metadata": {"name": ..., "shortname": ..., "lang_short": ...},
//	 "verses": [{"book_name": "Genesis", "book": 1, "chapter": 1, "verse": 1, "text": ...}]}
//
// Book identity is numeric and needs no name resolution. A record whose book
// id lies outside 1-66 is dropped; one out_of_canon_book warning is recorded
// per offending id.
func NormalizeFlat(raw []byte, opts Options) (*scripture.Result, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !gjson.ValidBytes(raw) {
		return nil, errors.NewParse("JSON", "", "invalid JSON document")
	}
	root := gjson.ParseBytes(raw)
	meta := root.Get("metadata")
	verses := root.Get("verses")
	if !meta.IsObject() || !verses.IsArray() {
		return nil, errors.NewParse("JSON", "", "flat dataset needs a metadata object and a verses array")
	}

	code := firstNonEmpty(opts.Code, meta.Get("shortname").String(), meta.Get("module").String())
	if code == "" {
		return nil, errors.NewValidation("code", "no translation code in options or metadata")
	}
	name := firstNonEmpty(opts.Name, meta.Get("name").String())
	language := firstNonEmpty(opts.Language, meta.Get("lang_short").String(), meta.Get("lang").String())

	b := newBuilder(code, name, language)
	outOfCanon := make(map[int64]bool)

	index := 0
	verses.ForEach(func(_, rec gjson.Result) bool {
		index++
		bookID := rec.Get("book").Int()
		if !canon.IsValid(int(bookID)) {
			if !outOfCanon[bookID] {
				outOfCanon[bookID] = true
				b.warn(scripture.Warning{
					Kind:     scripture.WarnOutOfCanonBook,
					Book:     int(bookID),
					BookName: rec.Get("book_name").String(),
					Message:  fmt.Sprintf("book id %d is outside 1-66, its verses were dropped", bookID),
				})
			}
			return true
		}

		id := int(bookID)
		acc := b.book(id, rec.Get("book_name").String())

		chapter, chapterOK := positive(rec.Get("chapter"))
		verse, verseOK := positive(rec.Get("verse"))
		if !chapterOK || !verseOK {
			b.warn(scripture.Warning{
				Kind:     scripture.WarnInvalidNumber,
				Book:     id,
				BookName: acc.name,
				Chapter:  chapter,
				Message:  fmt.Sprintf("record %d has chapter %q and verse %q", index, rec.Get("chapter").Raw, rec.Get("verse").Raw),
			})
			return true
		}

		b.addJSONVerse(id, acc, chapter, verse, rec.Get("text"))
		return true
	})

	return b.finish(), nil
}

// positive accepts a JSON number or numeric string greater than zero.
func positive(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Number:
		n := r.Int()
		if float64(n) != r.Num || n < 1 {
			return 0, false
		}
		return int(n), true
	case gjson.String:
		return parseNumber(r.Str)
	}
	return 0, false
}
