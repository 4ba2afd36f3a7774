package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

// builder accumulates verses in arrival order and produces a fully ordered
// translation. All three input shapes feed the same builder so that sorting,
// de-duplication and sequencing warnings behave identically.
type builder struct {
	translation scripture.Translation
	books       map[int]*bookAcc
	warnings    []scripture.Warning
}

type bookAcc struct {
	name     string
	chapters map[int][]scripture.Verse
}

func newBuilder(code, name, language string) *builder {
	return &builder{
		translation: scripture.Translation{Code: code, Name: name, Language: language},
		books:       make(map[int]*bookAcc),
	}
}

func (b *builder) warn(w scripture.Warning) {
	b.warnings = append(b.warnings, w)
}

// book registers a book id. The first display name seen for an id is kept;
// an empty name falls back to the canonical English name.
func (b *builder) book(id int, displayName string) *bookAcc {
	if acc, ok := b.books[id]; ok {
		return acc
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name, _ = canon.NameForBookID(id)
	}
	acc := &bookAcc{name: name, chapters: make(map[int][]scripture.Verse)}
	b.books[id] = acc
	return acc
}

// addJSONVerse records a verse whose text is a JSON value. Only strings are
// verse text; a missing or null value counts as empty, anything else is
// reported and dropped.
func (b *builder) addJSONVerse(book int, acc *bookAcc, chapter, verse int, value gjson.Result) {
	switch value.Type {
	case gjson.String:
		b.addVerse(book, acc, chapter, verse, value.Str)
	case gjson.Null:
		b.addVerse(book, acc, chapter, verse, "")
	default:
		b.warn(scripture.Warning{
			Kind:     scripture.WarnInvalidText,
			Book:     book,
			BookName: acc.name,
			Chapter:  chapter,
			Verse:    verse,
			Message:  fmt.Sprintf("verse text is %s, not a string, and was dropped", value.Raw),
		})
	}
}

// addVerse records one verse. Empty text is reported and dropped.
func (b *builder) addVerse(book int, acc *bookAcc, chapter, verse int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		b.warn(scripture.Warning{
			Kind:     scripture.WarnEmptyText,
			Book:     book,
			BookName: acc.name,
			Chapter:  chapter,
			Verse:    verse,
			Message:  "verse has no text and was dropped",
		})
		return
	}
	acc.chapters[chapter] = append(acc.chapters[chapter], scripture.Verse{Number: verse, Text: text})
}

// finish sorts books, chapters and verses, drops duplicate verse numbers
// (first occurrence wins), and records sequencing warnings.
func (b *builder) finish() *scripture.Result {
	ids := make([]int, 0, len(b.books))
	for id := range b.books {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	t := b.translation
	t.Books = make([]scripture.Book, 0, len(ids))

	for _, id := range ids {
		acc := b.books[id]
		if len(acc.chapters) == 0 {
			continue
		}
		book := scripture.Book{ID: id, Name: acc.name}

		numbers := make([]int, 0, len(acc.chapters))
		for n := range acc.chapters {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		for i, n := range numbers {
			if n != i+1 {
				b.warn(scripture.Warning{
					Kind:     scripture.WarnNonSequentialChapter,
					Book:     id,
					BookName: acc.name,
					Chapter:  n,
					Message:  fmt.Sprintf("chapter %d found at position %d", n, i+1),
				})
			}
			book.Chapters = append(book.Chapters, scripture.Chapter{
				Number: n,
				Verses: b.orderVerses(id, acc.name, n, acc.chapters[n]),
			})
		}

		t.Books = append(t.Books, book)
	}

	return &scripture.Result{Translation: &t, Warnings: b.warnings}
}

func (b *builder) orderVerses(book int, bookName string, chapter int, verses []scripture.Verse) []scripture.Verse {
	sort.SliceStable(verses, func(i, j int) bool { return verses[i].Number < verses[j].Number })

	out := make([]scripture.Verse, 0, len(verses))
	for _, v := range verses {
		if n := len(out); n > 0 && out[n-1].Number == v.Number {
			b.warn(scripture.Warning{
				Kind:     scripture.WarnDuplicateVerse,
				Book:     book,
				BookName: bookName,
				Chapter:  chapter,
				Verse:    v.Number,
				Message:  "duplicate verse number, later occurrence dropped",
			})
			continue
		}
		out = append(out, v)
	}

	for i, v := range out {
		if v.Number != i+1 {
			b.warn(scripture.Warning{
				Kind:     scripture.WarnNonSequentialVerse,
				Book:     book,
				BookName: bookName,
				Chapter:  chapter,
				Verse:    v.Number,
				Message:  fmt.Sprintf("verse %d found at position %d", v.Number, i+1),
			})
		}
	}
	return out
}
