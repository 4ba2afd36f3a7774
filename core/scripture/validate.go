package scripture

import (
	"fmt"
	"strings"
)

// OrderError describes a translation that breaks canonical ordering.
type OrderError struct {
	Path    string
	Message string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateOrder checks the structural guarantees of a canonical translation:
// book ids strictly increasing within 1-66, chapter and verse numbers strictly
// increasing and positive, and no empty verse text. It returns every
// violation found.
func ValidateOrder(t *Translation) []error {
	var errs []error

	if t.Code == "" {
		errs = append(errs, &OrderError{Path: "translation", Message: "code is required"})
	}

	prevBook := 0
	for i, b := range t.Books {
		bookPath := fmt.Sprintf("books[%d]", i)
		if b.ID < 1 || b.ID > 66 {
			errs = append(errs, &OrderError{Path: bookPath, Message: fmt.Sprintf("book id %d outside 1-66", b.ID)})
		}
		if b.ID <= prevBook {
			errs = append(errs, &OrderError{Path: bookPath, Message: fmt.Sprintf("book id %d not after %d", b.ID, prevBook)})
		}
		prevBook = b.ID

		prevChapter := 0
		for j, c := range b.Chapters {
			chapterPath := fmt.Sprintf("%s.chapters[%d]", bookPath, j)
			if c.Number <= prevChapter {
				errs = append(errs, &OrderError{Path: chapterPath, Message: fmt.Sprintf("chapter %d not after %d", c.Number, prevChapter)})
			}
			prevChapter = c.Number

			prevVerse := 0
			for k, v := range c.Verses {
				versePath := fmt.Sprintf("%s.verses[%d]", chapterPath, k)
				if v.Number <= prevVerse {
					errs = append(errs, &OrderError{Path: versePath, Message: fmt.Sprintf("verse %d not after %d", v.Number, prevVerse)})
				}
				prevVerse = v.Number
				if strings.TrimSpace(v.Text) == "" {
					errs = append(errs, &OrderError{Path: versePath, Message: "empty text"})
				}
			}
		}
	}

	return errs
}
