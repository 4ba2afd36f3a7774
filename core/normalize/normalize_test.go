package normalize

import (
	"errors"
	"reflect"
	"testing"

	"github.com/FocuswithJustin/versestream/core/canon"
	verrors "github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

func testLookup(t *testing.T) *canon.Lookup {
	t.Helper()
	l, err := canon.NewLookup()
	if err != nil {
		t.Fatalf("NewLookup() error = %v", err)
	}
	return l
}

func kinds(ws []scripture.Warning) []scripture.WarningKind {
	out := make([]scripture.WarningKind, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Kind)
	}
	return out
}

func assertOrdered(t *testing.T, tr *scripture.Translation) {
	t.Helper()
	if errs := scripture.ValidateOrder(tr); len(errs) != 0 {
		t.Errorf("translation not canonically ordered: %v", errs)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Format
	}{
		{"nested", `{"Genesis": {"1": {"1": "In the beginning"}}}`, FormatNested},
		{"nested with BOM and whitespace", "\xEF\xBB\xBF\n  {\"John\": {\"3\": {\"16\": \"For God\"}}}", FormatNested},
		{"flat", `{"metadata": {"shortname": "KJV"}, "verses": [{"book": 1, "chapter": 1, "verse": 1, "text": "x"}]}`, FormatFlat},
		{"flat with empty verses", `{"metadata": {}, "verses": []}`, FormatFlat},
		{"zefania", `<?xml version="1.0"?><XMLBIBLE biblename="KJV"></XMLBIBLE>`, FormatZefania},
		{"other xml", `<osis><osisText/></osis>`, FormatUnknown},
		{"empty", ``, FormatUnknown},
		{"array", `[1, 2, 3]`, FormatUnknown},
		{"invalid json", `{"Genesis": `, FormatUnknown},
		{"empty object", `{}`, FormatUnknown},
		{"verses without metadata", `{"verses": []}`, FormatUnknown},
		{"nested with numeric verse", `{"Genesis": {"1": {"1": 5}}}`, FormatUnknown},
		{"book not an object", `{"Genesis": "text"}`, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat([]byte(tt.raw)); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeNested_Scenario(t *testing.T) {
	raw := `{"Genesis": {"1": {"1": "In the beginning...", "2": "..."}}}`

	res, err := NormalizeNested([]byte(raw), Options{Code: "NIV", Lookup: testLookup(t)})
	if err != nil {
		t.Fatalf("NormalizeNested() error = %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}

	tr := res.Translation
	if tr.Code != "NIV" {
		t.Errorf("Code = %q, want NIV", tr.Code)
	}
	if len(tr.Books) != 1 || tr.Books[0].ID != 1 {
		t.Fatalf("books = %+v", tr.Books)
	}
	ch := tr.Books[0].Chapters
	if len(ch) != 1 || ch[0].Number != 1 {
		t.Fatalf("chapters = %+v", ch)
	}
	want := []scripture.Verse{{Number: 1, Text: "In the beginning..."}, {Number: 2, Text: "..."}}
	if !reflect.DeepEqual(ch[0].Verses, want) {
		t.Errorf("verses = %+v, want %+v", ch[0].Verses, want)
	}
}

func TestNormalizeNested_SortsEverything(t *testing.T) {
	raw := `{
		"John": {"2": {"1": "j2v1"}, "1": {"2": "j1v2", "1": "j1v1"}},
		"Génesis": {"1": {"3": "g1v3", "1": "g1v1", "2": "g1v2"}}
	}`

	res, err := NormalizeNested([]byte(raw), Options{Code: "RVR", Lookup: testLookup(t)})
	if err != nil {
		t.Fatalf("NormalizeNested() error = %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
	tr := res.Translation
	assertOrdered(t, tr)

	if tr.Books[0].ID != 1 || tr.Books[1].ID != 43 {
		t.Fatalf("book order = %d, %d", tr.Books[0].ID, tr.Books[1].ID)
	}
	if tr.Books[0].Name != "Génesis" {
		t.Errorf("display name = %q, want source spelling", tr.Books[0].Name)
	}
	john := tr.Books[1]
	if john.Chapters[0].Number != 1 || john.Chapters[0].Verses[0].Text != "j1v1" {
		t.Errorf("john chapters = %+v", john.Chapters)
	}
}

func TestNormalizeNested_Warnings(t *testing.T) {
	raw := `{
		"Enoch": {"1": {"1": "dropped"}},
		"Genesis": {
			"1": {"1": "a", "3": "c", "x": "bad"},
			"3": {"1": "only"},
			"y": {"1": "bad chapter"}
		},
		"Exodus": {"1": {"1": "  ", "2": "second"}}
	}`

	res, err := NormalizeNested([]byte(raw), Options{Code: "TST", Lookup: testLookup(t)})
	if err != nil {
		t.Fatalf("NormalizeNested() error = %v", err)
	}

	want := []scripture.WarningKind{
		scripture.WarnUnresolvedBook,       // Enoch
		scripture.WarnInvalidNumber,        // Genesis 1:x
		scripture.WarnInvalidNumber,        // Genesis chapter y
		scripture.WarnEmptyText,            // Exodus 1:1
		scripture.WarnNonSequentialVerse,   // Genesis 1:3 at position 2
		scripture.WarnNonSequentialChapter, // Genesis 3 at position 2
		scripture.WarnNonSequentialVerse,   // Exodus 1:2 at position 1
	}
	if got := kinds(res.Warnings); !reflect.DeepEqual(got, want) {
		t.Errorf("warning kinds = %v, want %v", got, want)
	}

	tr := res.Translation
	if len(tr.Books) != 2 {
		t.Fatalf("books = %d, want 2 (Enoch dropped)", len(tr.Books))
	}
	gen := tr.Books[0]
	if len(gen.Chapters) != 2 || gen.Chapters[1].Number != 3 {
		t.Errorf("genesis chapters = %+v", gen.Chapters)
	}
	if got := len(gen.Chapters[0].Verses); got != 2 {
		t.Errorf("genesis 1 verses = %d, want 2", got)
	}
	exo := tr.Books[1]
	if len(exo.Chapters[0].Verses) != 1 || exo.Chapters[0].Verses[0].Number != 2 {
		t.Errorf("exodus 1 = %+v", exo.Chapters[0].Verses)
	}
}

func TestNormalizeNested_NonStringTextDropped(t *testing.T) {
	raw := `{"Genesis": {"1": {"1": "In the beginning", "2": {"t": "object verse"}, "3": 42}}}`

	res, err := NormalizeNested([]byte(raw), Options{Code: "TST", Lookup: testLookup(t)})
	if err != nil {
		t.Fatalf("NormalizeNested() error = %v", err)
	}
	want := []scripture.WarningKind{scripture.WarnInvalidText, scripture.WarnInvalidText}
	if got := kinds(res.Warnings); !reflect.DeepEqual(got, want) {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if res.Warnings[0].Verse != 2 || res.Warnings[1].Verse != 3 {
		t.Errorf("warning verses = %d, %d; want 2, 3", res.Warnings[0].Verse, res.Warnings[1].Verse)
	}
	verses := res.Translation.Books[0].Chapters[0].Verses
	if want := []scripture.Verse{{Number: 1, Text: "In the beginning"}}; !reflect.DeepEqual(verses, want) {
		t.Errorf("verses = %+v, want %+v", verses, want)
	}
}

func TestNormalizeNested_MergesAliasesOfSameBook(t *testing.T) {
	raw := `{"Genesis": {"1": {"1": "first"}}, "Gen": {"1": {"1": "dup", "2": "second"}}}`

	res, err := NormalizeNested([]byte(raw), Options{Code: "X", Lookup: testLookup(t)})
	if err != nil {
		t.Fatalf("NormalizeNested() error = %v", err)
	}
	if got := kinds(res.Warnings); !reflect.DeepEqual(got, []scripture.WarningKind{scripture.WarnDuplicateVerse}) {
		t.Errorf("warnings = %v", res.Warnings)
	}
	verses := res.Translation.Books[0].Chapters[0].Verses
	if len(verses) != 2 || verses[0].Text != "first" {
		t.Errorf("verses = %+v, first occurrence should win", verses)
	}
}

func TestNormalizeNested_Errors(t *testing.T) {
	l := testLookup(t)

	if _, err := NormalizeNested([]byte(`{}`), Options{Lookup: l}); !errors.Is(err, verrors.ErrInvalidInput) {
		t.Errorf("missing code: err = %v", err)
	}
	if _, err := NormalizeNested([]byte(`{}`), Options{Code: "X"}); !errors.Is(err, verrors.ErrInvalidInput) {
		t.Errorf("missing lookup: err = %v", err)
	}
	if _, err := NormalizeNested([]byte(`{"Genesis":`), Options{Code: "X", Lookup: l}); err == nil {
		t.Error("invalid JSON: expected error")
	}
	if _, err := NormalizeNested([]byte(`[1]`), Options{Code: "X", Lookup: l}); err == nil {
		t.Error("array root: expected error")
	}
}

const flatSample = `{
	"metadata": {"name": "King James Version", "shortname": "KJV", "lang_short": "en"},
	"verses": [
		{"book_name": "John", "book": 43, "chapter": 1, "verse": 2, "text": "The same was in the beginning with God."},
		{"book_name": "Genesis", "book": 1, "chapter": 1, "verse": 1, "text": "In the beginning God created the heaven and the earth."},
		{"book_name": "Jn", "book": 43, "chapter": 1, "verse": 1, "text": "In the beginning was the Word."},
		{"book_name": "Genesis", "book": "1", "chapter": "2", "verse": 1, "text": "Thus the heavens and the earth were finished."}
	]
}`

func TestNormalizeFlat(t *testing.T) {
	res, err := NormalizeFlat([]byte(flatSample), Options{})
	if err != nil {
		t.Fatalf("NormalizeFlat() error = %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}

	tr := res.Translation
	assertOrdered(t, tr)
	if tr.Code != "KJV" || tr.Name != "King James Version" || tr.Language != "en" {
		t.Errorf("metadata = %q %q %q", tr.Code, tr.Name, tr.Language)
	}
	if len(tr.Books) != 2 || tr.Books[1].ID != 43 {
		t.Fatalf("books = %+v", tr.Books)
	}
	if tr.Books[1].Name != "John" {
		t.Errorf("book name = %q, want name from first record", tr.Books[1].Name)
	}
	if got := tr.Books[1].Chapters[0].Verses[0].Text; got != "In the beginning was the Word." {
		t.Errorf("John 1:1 = %q", got)
	}
	if got := len(tr.Books[0].Chapters); got != 2 {
		t.Errorf("Genesis chapters = %d, want 2", got)
	}
}

func TestNormalizeFlat_OptionsOverrideMetadata(t *testing.T) {
	res, err := NormalizeFlat([]byte(flatSample), Options{Code: "KJV1611", Name: "Authorized Version"})
	if err != nil {
		t.Fatalf("NormalizeFlat() error = %v", err)
	}
	if res.Translation.Code != "KJV1611" || res.Translation.Name != "Authorized Version" {
		t.Errorf("override ignored: %q %q", res.Translation.Code, res.Translation.Name)
	}
	if res.Translation.Language != "en" {
		t.Errorf("language = %q, want metadata value", res.Translation.Language)
	}
}

func TestNormalizeFlat_OutOfCanonBookDropped(t *testing.T) {
	raw := `{
		"metadata": {"shortname": "TST"},
		"verses": [
			{"book": 99, "chapter": 1, "verse": 1, "text": "apocryphal"},
			{"book": 99, "chapter": 1, "verse": 2, "text": "apocryphal too"},
			{"book": 0, "chapter": 1, "verse": 1, "text": "zero"},
			{"book": 1, "chapter": 1, "verse": 1, "text": "In the beginning"}
		]
	}`

	res, err := NormalizeFlat([]byte(raw), Options{})
	if err != nil {
		t.Fatalf("NormalizeFlat() error = %v", err)
	}

	want := []scripture.WarningKind{scripture.WarnOutOfCanonBook, scripture.WarnOutOfCanonBook}
	if got := kinds(res.Warnings); !reflect.DeepEqual(got, want) {
		t.Fatalf("warnings = %v, want one per offending id", res.Warnings)
	}
	if res.Warnings[0].Book != 99 || res.Warnings[1].Book != 0 {
		t.Errorf("warning books = %d, %d", res.Warnings[0].Book, res.Warnings[1].Book)
	}

	tr := res.Translation
	if len(tr.Books) != 1 || tr.Books[0].ID != 1 {
		t.Errorf("books = %+v, only Genesis should remain", tr.Books)
	}
	if _, ok := tr.Book(99); ok {
		t.Error("book 99 reached the canonical translation")
	}
	if _, ok := canon.TestamentFor(99); ok {
		t.Error("TestamentFor(99) should report not found")
	}
}

func TestNormalizeFlat_InvalidNumbers(t *testing.T) {
	raw := `{
		"metadata": {"module": "TST"},
		"verses": [
			{"book": 1, "chapter": 0, "verse": 1, "text": "bad chapter"},
			{"book": 1, "chapter": 1, "verse": 1.5, "text": "bad verse"},
			{"book": 1, "chapter": 1, "text": "no verse"},
			{"book": 1, "chapter": 1, "verse": 1, "text": "ok"}
		]
	}`

	res, err := NormalizeFlat([]byte(raw), Options{})
	if err != nil {
		t.Fatalf("NormalizeFlat() error = %v", err)
	}
	if res.Translation.Code != "TST" {
		t.Errorf("Code = %q, want module fallback", res.Translation.Code)
	}
	want := []scripture.WarningKind{scripture.WarnInvalidNumber, scripture.WarnInvalidNumber, scripture.WarnInvalidNumber}
	if got := kinds(res.Warnings); !reflect.DeepEqual(got, want) {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if got := res.Translation.Stats().Verses; got != 1 {
		t.Errorf("verses = %d, want 1", got)
	}
}

func TestNormalizeFlat_NonStringText(t *testing.T) {
	raw := `{
		"metadata": {"module": "TST"},
		"verses": [
			{"book": 1, "chapter": 1, "verse": 1, "text": "ok"},
			{"book": 1, "chapter": 1, "verse": 2, "text": 42},
			{"book": 1, "chapter": 1, "verse": 3, "text": {"t": "object"}},
			{"book": 1, "chapter": 1, "verse": 4, "text": ["a"]},
			{"book": 1, "chapter": 1, "verse": 5, "text": true},
			{"book": 1, "chapter": 1, "verse": 6, "text": null},
			{"book": 1, "chapter": 1, "verse": 7}
		]
	}`

	res, err := NormalizeFlat([]byte(raw), Options{})
	if err != nil {
		t.Fatalf("NormalizeFlat() error = %v", err)
	}
	want := []scripture.WarningKind{
		scripture.WarnInvalidText, // 42
		scripture.WarnInvalidText, // object
		scripture.WarnInvalidText, // array
		scripture.WarnInvalidText, // bool
		scripture.WarnEmptyText,   // null
		scripture.WarnEmptyText,   // missing
	}
	if got := kinds(res.Warnings); !reflect.DeepEqual(got, want) {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if got := res.Translation.Stats().Verses; got != 1 {
		t.Errorf("verses = %d, want 1", got)
	}
}

func TestNormalizeFlat_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"metadata":`},
		{"no metadata", `{"verses": []}`},
		{"no code", `{"metadata": {"name": "x"}, "verses": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NormalizeFlat([]byte(tt.raw), Options{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

const zefaniaSample = `<?xml version="1.0" encoding="utf-8"?>
<XMLBIBLE biblename="Reina-Valera">
  <INFORMATION>
    <title>Reina-Valera 1909</title>
    <identifier>RV1909</identifier>
    <language>es</language>
  </INFORMATION>
  <BIBLEBOOK bnumber="43" bname="Juan">
    <CHAPTER cnumber="1">
      <VERS vnumber="2">Este era en el principio
        con Dios.</VERS>
      <VERS vnumber="1">En el principio era el Verbo.</VERS>
    </CHAPTER>
  </BIBLEBOOK>
  <BIBLEBOOK bnumber="1" bname="Génesis">
    <CHAPTER cnumber="1">
      <VERS vnumber="1">En el principio crió Dios los cielos y la tierra.</VERS>
    </CHAPTER>
  </BIBLEBOOK>
  <BIBLEBOOK bnumber="70" bname="Apocalipsis">
    <CHAPTER cnumber="1">
      <VERS vnumber="1">La revelación de Jesucristo.</VERS>
    </CHAPTER>
  </BIBLEBOOK>
  <BIBLEBOOK bname="Tobías">
    <CHAPTER cnumber="1"><VERS vnumber="1">x</VERS></CHAPTER>
  </BIBLEBOOK>
</XMLBIBLE>`

func TestNormalizeZefania(t *testing.T) {
	res, err := NormalizeZefania([]byte(zefaniaSample), Options{Lookup: testLookup(t)})
	if err != nil {
		t.Fatalf("NormalizeZefania() error = %v", err)
	}

	if got := kinds(res.Warnings); !reflect.DeepEqual(got, []scripture.WarningKind{scripture.WarnUnresolvedBook}) {
		t.Errorf("warnings = %v, want only Tobías unresolved", res.Warnings)
	}

	tr := res.Translation
	assertOrdered(t, tr)
	if tr.Code != "RV1909" || tr.Name != "Reina-Valera 1909" || tr.Language != "es" {
		t.Errorf("metadata = %q %q %q", tr.Code, tr.Name, tr.Language)
	}

	ids := []int{}
	for _, b := range tr.Books {
		ids = append(ids, b.ID)
	}
	if !reflect.DeepEqual(ids, []int{1, 43, 66}) {
		t.Errorf("book ids = %v, want [1 43 66] (bnumber 70 resolved by name)", ids)
	}

	juan, _ := tr.Book(43)
	if got := juan.Chapters[0].Verses[1].Text; got != "Este era en el principio con Dios." {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

func TestNormalizeZefania_Errors(t *testing.T) {
	l := testLookup(t)
	if _, err := NormalizeZefania([]byte(`<XMLBIBLE><BIBLEBOOK></CHAPTER></XMLBIBLE>`), Options{Code: "X", Lookup: l}); err == nil {
		t.Error("malformed XML: expected error")
	}
	if _, err := NormalizeZefania([]byte(`<bible/>`), Options{Code: "X", Lookup: l}); err == nil {
		t.Error("wrong root: expected error")
	}
	if _, err := NormalizeZefania([]byte(`<XMLBIBLE/>`), Options{Lookup: l}); err == nil {
		t.Error("missing code: expected error")
	}
}

func TestZefaniaMatchesNested(t *testing.T) {
	l := testLookup(t)
	nested := `{"Genesis": {"1": {"1": "In the beginning", "2": "And the earth"}}}`
	zef := `<XMLBIBLE><BIBLEBOOK bnumber="1" bname="Genesis"><CHAPTER cnumber="1">
		<VERS vnumber="1">In the beginning</VERS><VERS vnumber="2">And the earth</VERS>
	</CHAPTER></BIBLEBOOK></XMLBIBLE>`

	a, err := NormalizeNested([]byte(nested), Options{Code: "T", Lookup: l})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeZefania([]byte(zef), Options{Code: "T", Lookup: l})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Translation, b.Translation) {
		t.Errorf("nested = %+v\nzefania = %+v", a.Translation, b.Translation)
	}
}

func TestNormalize_Dispatch(t *testing.T) {
	l := testLookup(t)

	_, format, err := Normalize([]byte(flatSample), Options{Lookup: l})
	if err != nil || format != FormatFlat {
		t.Errorf("flat: format = %v, err = %v", format, err)
	}

	_, format, err = Normalize([]byte(`{"Genesis": {"1": {"1": "x"}}}`), Options{Code: "X", Lookup: l})
	if err != nil || format != FormatNested {
		t.Errorf("nested: format = %v, err = %v", format, err)
	}

	_, format, err = Normalize([]byte(`[]`), Options{Lookup: l})
	if format != FormatUnknown || !errors.Is(err, verrors.ErrUnsupported) {
		t.Errorf("unknown: format = %v, err = %v", format, err)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	l := testLookup(t)
	raw := []byte(`{"John": {"1": {"3": "c", "1": "a"}}, "Genesis": {"2": {"1": "x"}}, "Nope": {"1": {"1": "y"}}}`)

	first, err := NormalizeNested(raw, Options{Code: "X", Lookup: l})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := NormalizeNested(raw, Options{Code: "X", Lookup: l})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs from first run", i)
		}
	}
}

func TestFormatString(t *testing.T) {
	for f, want := range map[Format]string{
		FormatNested:  "nested",
		FormatFlat:    "flat",
		FormatZefania: "zefania",
		FormatUnknown: "unknown",
	} {
		if got := f.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", f, got, want)
		}
	}
}
