package canon

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Alias maps an additional book name onto a canonical id.
type Alias struct {
	Name string `yaml:"name" json:"name"`
	Book int    `yaml:"book" json:"book"`
}

// Lookup resolves book names in any supported language to canonical ids.
// A Lookup is immutable after construction and safe for concurrent use.
type Lookup struct {
	byName map[string]int
}

// NewLookup builds the name table from the canonical names, OSIS ids and
// built-in aliases, plus any extra aliases. A name that normalizes to the same
// key as a name of a different book is an error: resolving scripture text to
// the wrong book is worse than not resolving it at all.
func NewLookup(extra ...Alias) (*Lookup, error) {
	l := &Lookup{byName: make(map[string]int, LastBook*8)}

	for i, e := range table {
		id := i + 1
		names := append([]string{e.name, e.osis}, e.aliases...)
		for _, name := range names {
			if err := l.add(name, id); err != nil {
				return nil, err
			}
		}
	}

	for _, a := range extra {
		if !IsValid(a.Book) {
			return nil, fmt.Errorf("alias %q: book id %d outside %d-%d", a.Name, a.Book, FirstBook, LastBook)
		}
		if err := l.add(a.Name, a.Book); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *Lookup) add(name string, id int) error {
	key := NormalizeName(name)
	if key == "" {
		return fmt.Errorf("alias %q normalizes to an empty key", name)
	}
	if existing, ok := l.byName[key]; ok && existing != id {
		existingName, _ := NameForBookID(existing)
		return fmt.Errorf("alias %q for book %d collides with %s (book %d)", name, id, existingName, existing)
	}
	l.byName[key] = id
	return nil
}

// BookIDForName resolves name to a canonical book id. Unknown names report
// false; no closest-match guess is made.
func (l *Lookup) BookIDForName(name string) (int, bool) {
	key := NormalizeName(name)
	if key == "" {
		return 0, false
	}
	id, ok := l.byName[key]
	return id, ok
}

// Len returns the number of distinct normalized names known to the lookup.
func (l *Lookup) Len() int {
	return len(l.byName)
}

// NormalizeName folds case, removes diacritics, and strips whitespace, hyphens,
// periods, apostrophes and underscores, so "1 Samuel", "1samuel" and
// "1-Samuel" share one key.
func NormalizeName(name string) string {
	// transform.Chain and cases.Caser carry state, so they are built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
		case r == '-', r == '.', r == '\'', r == '’', r == '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
