// Package normalize converts raw scripture datasets into canonical
// translations, collecting data-quality warnings instead of failing.
package normalize

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// Format identifies the shape of a raw dataset.
type Format int

const (
	// FormatUnknown is any shape the normalizer cannot read.
	FormatUnknown Format = iota
	// FormatNested maps book name -> chapter -> verse -> text with no metadata.
	FormatNested
	// FormatFlat carries a metadata block and a flat array of verse records.
	FormatFlat
	// FormatZefania is Zefania XML (XMLBIBLE/BIBLEBOOK/CHAPTER/VERS).
	FormatZefania
)

func (f Format) String() string {
	switch f {
	case FormatNested:
		return "nested"
	case FormatFlat:
		return "flat"
	case FormatZefania:
		return "zefania"
	}
	return "unknown"
}

// zefaniaProbeLen bounds how much of an XML document is inspected for the root element.
const zefaniaProbeLen = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat inspects the top-level shape of raw without fully decoding it.
func DetectFormat(raw []byte) Format {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return FormatUnknown
	}

	if trimmed[0] == '<' {
		probe := trimmed
		if len(probe) > zefaniaProbeLen {
			probe = probe[:zefaniaProbeLen]
		}
		if bytes.Contains(bytes.ToUpper(probe), []byte("<XMLBIBLE")) {
			return FormatZefania
		}
		return FormatUnknown
	}

	if trimmed[0] != '{' || !gjson.ValidBytes(trimmed) {
		return FormatUnknown
	}

	root := gjson.ParseBytes(trimmed)
	if root.Get("metadata").IsObject() && root.Get("verses").IsArray() {
		return FormatFlat
	}
	if looksNested(root) {
		return FormatNested
	}
	return FormatUnknown
}

// looksNested requires every top-level value to be an object whose first
// chapter is an object whose first verse is a string.
func looksNested(root gjson.Result) bool {
	books := 0
	ok := true
	root.ForEach(func(_, book gjson.Result) bool {
		books++
		if !book.IsObject() {
			ok = false
			return false
		}
		var chapter gjson.Result
		book.ForEach(func(_, v gjson.Result) bool {
			chapter = v
			return false
		})
		if !chapter.IsObject() {
			ok = false
			return false
		}
		var verse gjson.Result
		chapter.ForEach(func(_, v gjson.Result) bool {
			verse = v
			return false
		})
		if verse.Type != gjson.String {
			ok = false
			return false
		}
		return true
	})
	return ok && books > 0
}
