package stream

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/versestream/core/scripture"
)

// Kind distinguishes chapter headers from verses in the flattened stream.
type Kind int

const (
	// KindHeader marks the start of a chapter.
	KindHeader Kind = iota
	// KindVerse is a single verse.
	KindVerse
)

func (k Kind) String() string {
	if k == KindHeader {
		return "header"
	}
	return "verse"
}

// MarshalText encodes the kind as "header" or "verse".
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "header" or "verse".
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "header":
		*k = KindHeader
	case "verse":
		*k = KindVerse
	default:
		return fmt.Errorf("stream: unknown item kind %q", text)
	}
	return nil
}

// Item is one entry of the flattened stream. Headers carry Verse 0 and no text.
type Item struct {
	Kind     Kind   `json:"kind"`
	Book     int    `json:"book"`
	BookName string `json:"bookName"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ChapterKey identifies a loaded chapter.
type ChapterKey struct {
	Book    int `json:"book"`
	Chapter int `json:"chapter"`
}

// Less orders keys by book, then chapter.
func (k ChapterKey) Less(o ChapterKey) bool {
	if k.Book != o.Book {
		return k.Book < o.Book
	}
	return k.Chapter < o.Chapter
}

func (k ChapterKey) String() string {
	return fmt.Sprintf("%d:%d", k.Book, k.Chapter)
}

// Distance is |Δbook|×1000 + |Δchapter|.
func (k ChapterKey) Distance(o ChapterKey) int {
	return abs(k.Book-o.Book)*1000 + abs(k.Chapter-o.Chapter)
}

// BookInfo is the per-book metadata a loader needs before it can address chapters.
type BookInfo struct {
	ID       int
	Name     string
	Chapters int
}

// Source supplies translation data to a Loader. Implementations may block on
// I/O; these are the loader's only suspension points. A chapter that exists in
// the book's range but has no stored verses may be returned as an empty slice.
type Source interface {
	Books(ctx context.Context, translation string) ([]BookInfo, error)
	Chapter(ctx context.Context, translation string, book, chapter int) ([]scripture.Verse, error)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
