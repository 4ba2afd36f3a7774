// Package scripture defines the canonical translation model produced by the
// normalizer and read by the stream loader.
//
// JSON field names are one or two letters because the encoded translation
// ships inside a mobile bundle:
//
//	{"v":"KJV","n":"King James Version","l":"en",
//	 "b":[{"i":1,"n":"Genesis","c":[{"c":1,"v":[[1,"In the beginning..."]]}]}]}
package scripture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Translation is a named, language-tagged collection of books, fully ordered
// by book id, chapter number and verse number.
type Translation struct {
	// Code is the translation identifier (e.g., "KJV", "NIV").
	Code string `json:"v"`

	// Name is the human-readable display name.
	Name string `json:"n,omitempty"`

	// Language is the BCP-47 language tag.
	Language string `json:"l,omitempty"`

	// Books holds the books in canonical order.
	Books []Book `json:"b"`
}

// Book is one canonical book within a translation.
type Book struct {
	ID       int       `json:"i"`
	Name     string    `json:"n"`
	Chapters []Chapter `json:"c"`
}

// Chapter is a numbered chapter with its verses in order.
type Chapter struct {
	Number int     `json:"c"`
	Verses []Verse `json:"v"`
}

// Verse is a numbered verse. It encodes as a two-element JSON array.
type Verse struct {
	Number int
	Text   string
}

// MarshalJSON encodes the verse as [number,"text"].
func (v Verse) MarshalJSON() ([]byte, error) {
	return MarshalCompact([2]any{v.Number, v.Text})
}

// MarshalCompact is json.Marshal without HTML escaping, so '<', '>' and '&'
// in verse text stay one byte each.
func MarshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON decodes a [number,"text"] pair.
func (v *Verse) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("verse: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("verse: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &v.Number); err != nil {
		return fmt.Errorf("verse number: %w", err)
	}
	if err := json.Unmarshal(pair[1], &v.Text); err != nil {
		return fmt.Errorf("verse text: %w", err)
	}
	return nil
}

// Book returns the book with the given id.
func (t *Translation) Book(id int) (*Book, bool) {
	i := sort.Search(len(t.Books), func(i int) bool { return t.Books[i].ID >= id })
	if i < len(t.Books) && t.Books[i].ID == id {
		return &t.Books[i], true
	}
	return nil, false
}

// Chapter returns the chapter of a book by number.
func (b *Book) Chapter(number int) (*Chapter, bool) {
	i := sort.Search(len(b.Chapters), func(i int) bool { return b.Chapters[i].Number >= number })
	if i < len(b.Chapters) && b.Chapters[i].Number == number {
		return &b.Chapters[i], true
	}
	return nil, false
}

// LastChapter returns the highest chapter number in the book.
func (b *Book) LastChapter() int {
	if len(b.Chapters) == 0 {
		return 0
	}
	return b.Chapters[len(b.Chapters)-1].Number
}

// Stats summarizes the size of a translation.
type Stats struct {
	Books    int `json:"books"`
	Chapters int `json:"chapters"`
	Verses   int `json:"verses"`
}

// Stats counts books, chapters and verses.
func (t *Translation) Stats() Stats {
	s := Stats{Books: len(t.Books)}
	for _, b := range t.Books {
		s.Chapters += len(b.Chapters)
		for _, c := range b.Chapters {
			s.Verses += len(c.Verses)
		}
	}
	return s
}
