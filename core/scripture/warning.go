package scripture

import (
	"fmt"
	"sort"
)

// WarningKind classifies a data-quality problem found during normalization.
type WarningKind string

// Warning kinds.
const (
	WarnUnresolvedBook       WarningKind = "unresolved_book"
	WarnOutOfCanonBook       WarningKind = "out_of_canon_book"
	WarnNonSequentialVerse   WarningKind = "non_sequential_verse"
	WarnNonSequentialChapter WarningKind = "non_sequential_chapter"
	WarnDuplicateVerse       WarningKind = "duplicate_verse"
	WarnEmptyText            WarningKind = "empty_text"
	WarnInvalidNumber        WarningKind = "invalid_number"
	WarnInvalidText          WarningKind = "invalid_text"
)

// Warning is a non-fatal data-quality finding. Normalization continues past
// every warning with whatever could be resolved.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Book     int         `json:"book,omitempty"`
	BookName string      `json:"book_name,omitempty"`
	Chapter  int         `json:"chapter,omitempty"`
	Verse    int         `json:"verse,omitempty"`
	Message  string      `json:"message"`
}

func (w Warning) String() string {
	loc := w.BookName
	if loc == "" && w.Book != 0 {
		loc = fmt.Sprintf("book %d", w.Book)
	}
	if w.Chapter != 0 {
		loc = fmt.Sprintf("%s %d", loc, w.Chapter)
		if w.Verse != 0 {
			loc = fmt.Sprintf("%s:%d", loc, w.Verse)
		}
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Kind, loc, w.Message)
}

// Result carries a normalized translation together with every warning
// collected while producing it.
type Result struct {
	Translation *Translation `json:"translation"`
	Warnings    []Warning    `json:"warnings,omitempty"`
}

// CountByKind tallies warnings per kind.
func (r *Result) CountByKind() map[WarningKind]int {
	counts := make(map[WarningKind]int)
	for _, w := range r.Warnings {
		counts[w.Kind]++
	}
	return counts
}

// Kinds returns the distinct warning kinds present, sorted.
func (r *Result) Kinds() []WarningKind {
	counts := r.CountByKind()
	kinds := make([]WarningKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
