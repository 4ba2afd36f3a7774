package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

var (
	zefBooks    = xpath.MustCompile("//BIBLEBOOK")
	zefChapters = xpath.MustCompile("CHAPTER")
	zefVerses   = xpath.MustCompile("VERS")
	zefTitle    = xpath.MustCompile("//INFORMATION/title")
	zefIdent    = xpath.MustCompile("//INFORMATION/identifier")
	zefLanguage = xpath.MustCompile("//INFORMATION/language")
	zefRoot     = xpath.MustCompile("/XMLBIBLE")
)

// NormalizeZefania reads Zefania XML. A bnumber inside 1-66 is taken as the
// book id; otherwise bname is resolved through opts.Lookup, and a book that
// resolves neither way is dropped with a warning.
func NormalizeZefania(raw []byte, opts Options) (*scripture.Result, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	if err != nil {
		return nil, &errors.ParseError{Format: "Zefania", Message: "invalid XML document", Err: err}
	}
	root := xmlquery.QuerySelector(doc, zefRoot)
	if root == nil {
		return nil, errors.NewParse("Zefania", "", "missing XMLBIBLE root element")
	}

	code := firstNonEmpty(opts.Code, nodeText(xmlquery.QuerySelector(doc, zefIdent)))
	if code == "" {
		return nil, errors.NewValidation("code", "no translation code in options or INFORMATION/identifier")
	}
	name := firstNonEmpty(opts.Name, nodeText(xmlquery.QuerySelector(doc, zefTitle)), root.SelectAttr("biblename"))
	language := firstNonEmpty(opts.Language, nodeText(xmlquery.QuerySelector(doc, zefLanguage)))

	b := newBuilder(code, name, language)

	for _, bookNode := range xmlquery.QuerySelectorAll(doc, zefBooks) {
		bname := strings.TrimSpace(bookNode.SelectAttr("bname"))
		id, ok := parseNumber(bookNode.SelectAttr("bnumber"))
		if !ok || !canon.IsValid(id) {
			if opts.Lookup == nil {
				id, ok = 0, false
			} else {
				id, ok = opts.Lookup.BookIDForName(bname)
			}
		}
		if !ok {
			b.warn(scripture.Warning{
				Kind:     scripture.WarnUnresolvedBook,
				BookName: bname,
				Message:  fmt.Sprintf("book %q (bnumber %q) not recognized, book dropped", bname, bookNode.SelectAttr("bnumber")),
			})
			continue
		}
		acc := b.book(id, bname)

		for _, chapterNode := range xmlquery.QuerySelectorAll(bookNode, zefChapters) {
			chapter, ok := parseNumber(chapterNode.SelectAttr("cnumber"))
			if !ok {
				b.warn(scripture.Warning{
					Kind:     scripture.WarnInvalidNumber,
					Book:     id,
					BookName: acc.name,
					Message:  fmt.Sprintf("chapter number %q is not a positive number", chapterNode.SelectAttr("cnumber")),
				})
				continue
			}

			for _, verseNode := range xmlquery.QuerySelectorAll(chapterNode, zefVerses) {
				verse, ok := parseNumber(verseNode.SelectAttr("vnumber"))
				if !ok {
					b.warn(scripture.Warning{
						Kind:     scripture.WarnInvalidNumber,
						Book:     id,
						BookName: acc.name,
						Chapter:  chapter,
						Message:  fmt.Sprintf("verse number %q is not a positive number", verseNode.SelectAttr("vnumber")),
					})
					continue
				}
				b.addVerse(id, acc, chapter, verse, nodeText(verseNode))
			}
		}
	}

	return b.finish(), nil
}

// nodeText returns the element text with runs of whitespace collapsed.
func nodeText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(n.InnerText()), " ")
}
