package canon

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/versestream/core/errors"
)

// Reference is a resolved position in the canon. Chapter and Verse are zero
// when the input did not name them.
type Reference struct {
	Book    int
	Chapter int
	Verse   int
}

func (r Reference) String() string {
	name, ok := NameForBookID(r.Book)
	if !ok {
		return fmt.Sprintf("book %d", r.Book)
	}
	switch {
	case r.Chapter == 0:
		return name
	case r.Verse == 0:
		return fmt.Sprintf("%s %d", name, r.Chapter)
	default:
		return fmt.Sprintf("%s %d:%d", name, r.Chapter, r.Verse)
	}
}

// referenceGrammar is the participle grammar for "Book [chapter[:verse]]".
type referenceGrammar struct {
	Book    string `parser:"@Book"`
	Chapter *int   `parser:"( @Number"`
	Verse   *int   `parser:"  ( ( \":\" | \".\" ) @Number )? )?"`
}

var referenceLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Book names: optional ordinal prefix ("1 ", "2. "), letters in any script,
	// multiple words ("Song of Solomon"), optional trailing period ("Gen.").
	{Name: "Book", Pattern: `(?:[1-3]\.?\s*)?\p{L}+(?:\s+\p{L}+)*\.?`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Punct", Pattern: `[:.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var referenceParser = participle.MustBuild[referenceGrammar](
	participle.Lexer(referenceLexer),
	participle.Elide("Whitespace"),
)

// ParseReference parses references such as "John 3:16", "1 Samuel 2",
// "Gen.1.1" or "Génesis 1" and resolves the book through lookup.
func ParseReference(input string, lookup *Lookup) (Reference, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Reference{}, errors.NewValidation("reference", "empty reference")
	}

	g, err := referenceParser.ParseString("", input)
	if err != nil {
		return Reference{}, &errors.ParseError{Format: "reference", Message: input, Err: err}
	}

	id, ok := lookup.BookIDForName(g.Book)
	if !ok {
		return Reference{}, errors.NewNotFound("book", strings.TrimSpace(g.Book))
	}

	ref := Reference{Book: id}
	if g.Chapter != nil {
		ref.Chapter = *g.Chapter
	}
	if g.Verse != nil {
		ref.Verse = *g.Verse
	}
	return ref, nil
}
