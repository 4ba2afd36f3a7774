// Package canon holds the fixed 66-book canon: book identity, English display
// names, testament split, multilingual name resolution and reference parsing.
//
// Book identity is an integer 1-66 in Protestant canonical order. Every
// translation maps its own book naming onto this identity space.
package canon

// Canon bounds.
const (
	FirstBook            = 1
	LastBook             = 66
	LastOldTestamentBook = 39
)

// Testament is one of the two fixed partitions of the canon.
type Testament int

const (
	// OldTestament covers books 1-39.
	OldTestament Testament = iota + 1
	// NewTestament covers books 40-66.
	NewTestament
)

func (t Testament) String() string {
	switch t {
	case OldTestament:
		return "OT"
	case NewTestament:
		return "NT"
	}
	return "unknown"
}

// Book holds the identity of a single canonical book.
type Book struct {
	ID        int
	Name      string
	OSIS      string
	Testament Testament
}

type bookEntry struct {
	name    string
	osis    string
	aliases []string
}

// table lists the canon in order; index i holds book i+1.
// Aliases are English abbreviations followed by Spanish, Portuguese, French and
// German names.
var table = [LastBook]bookEntry{
	{"Genesis", "Gen", []string{"gen", "gn", "Génesis", "Gênesis", "Genèse", "1. Mose", "1 Mose"}},
	{"Exodus", "Exod", []string{"exo", "ex", "Éxodo", "Êxodo", "Exode", "2. Mose", "2 Mose"}},
	{"Leviticus", "Lev", []string{"lv", "Levítico", "Lévitique", "3. Mose", "3 Mose"}},
	{"Numbers", "Num", []string{"nm", "nb", "Números", "Nombres", "4. Mose", "4 Mose", "Numeri"}},
	{"Deuteronomy", "Deut", []string{"deu", "dt", "Deuteronomio", "Deuteronômio", "Deutéronome", "5. Mose", "5 Mose"}},
	{"Joshua", "Josh", []string{"jos", "Josué", "Josua"}},
	{"Judges", "Judg", []string{"jdg", "jdgs", "Jueces", "Juízes", "Juges", "Richter"}},
	{"Ruth", "Ruth", []string{"rth", "Rut", "Rute"}},
	{"1 Samuel", "1Sam", []string{"1 Sam", "1sa", "I Samuel"}},
	{"2 Samuel", "2Sam", []string{"2 Sam", "2sa", "II Samuel"}},
	{"1 Kings", "1Kgs", []string{"1 Kgs", "1ki", "I Kings", "1 Reyes", "1 Reis", "1 Rois", "1. Könige"}},
	{"2 Kings", "2Kgs", []string{"2 Kgs", "2ki", "II Kings", "2 Reyes", "2 Reis", "2 Rois", "2. Könige"}},
	{"1 Chronicles", "1Chr", []string{"1 Chr", "1ch", "I Chronicles", "1 Crónicas", "1 Crônicas", "1 Chroniques", "1. Chronik"}},
	{"2 Chronicles", "2Chr", []string{"2 Chr", "2ch", "II Chronicles", "2 Crónicas", "2 Crônicas", "2 Chroniques", "2. Chronik"}},
	{"Ezra", "Ezra", []string{"ezr", "Esdras", "Esra"}},
	{"Nehemiah", "Neh", []string{"ne", "Nehemías", "Neemias", "Néhémie", "Nehemia"}},
	{"Esther", "Esth", []string{"est", "es", "Ester"}},
	{"Job", "Job", []string{"jb", "Jó", "Hiob"}},
	{"Psalms", "Ps", []string{"psa", "psalm", "pss", "Salmos", "Psaumes", "Psalmen", "Psalter"}},
	{"Proverbs", "Prov", []string{"pro", "prv", "Proverbios", "Provérbios", "Proverbes", "Sprüche", "Sprichwörter"}},
	{"Ecclesiastes", "Eccl", []string{"ecc", "qoh", "Eclesiastés", "Eclesiastes", "Ecclésiaste", "Prediger", "Kohelet"}},
	{"Song of Solomon", "Song", []string{"sos", "Song of Songs", "Canticles", "Cantares", "Cantar de los Cantares", "Cânticos", "Cantique des Cantiques", "Hoheslied"}},
	{"Isaiah", "Isa", []string{"is", "Isaías", "Ésaïe", "Jesaja"}},
	{"Jeremiah", "Jer", []string{"je", "Jeremías", "Jeremias", "Jérémie", "Jeremia"}},
	{"Lamentations", "Lam", []string{"la", "Lamentaciones", "Lamentações", "Klagelieder"}},
	{"Ezekiel", "Ezek", []string{"eze", "ezk", "Ezequiel", "Ézéchiel", "Hesekiel"}},
	{"Daniel", "Dan", []string{"da", "dn"}},
	{"Hosea", "Hos", []string{"ho", "Oseas", "Oséias", "Oseias", "Osée"}},
	{"Joel", "Joel", []string{"jl"}},
	{"Amos", "Amos", []string{"am", "Amós"}},
	{"Obadiah", "Obad", []string{"oba", "ob", "Abdías", "Obadias", "Obadja"}},
	{"Jonah", "Jonah", []string{"jon", "jnh", "Jonás", "Jonas", "Jona"}},
	{"Micah", "Mic", []string{"mi", "Miqueas", "Miquéias", "Michée", "Micha"}},
	{"Nahum", "Nah", []string{"na", "Nahúm", "Naum"}},
	{"Habakkuk", "Hab", []string{"hb", "Habacuc", "Habacuque", "Habakuk"}},
	{"Zephaniah", "Zeph", []string{"zep", "zp", "Sofonías", "Sofonias", "Sophonie", "Zefanja"}},
	{"Haggai", "Hag", []string{"hg", "Hageo", "Ageu", "Aggée"}},
	{"Zechariah", "Zech", []string{"zec", "zc", "Zacarías", "Zacarias", "Zacharie", "Sacharja"}},
	{"Malachi", "Mal", []string{"ml", "Malaquías", "Malaquias", "Malachie", "Maleachi"}},
	{"Matthew", "Matt", []string{"mat", "mt", "Mateo", "Mateus", "Matthieu", "Matthäus"}},
	{"Mark", "Mark", []string{"mrk", "mk", "mr", "Marcos", "Marc", "Markus"}},
	{"Luke", "Luke", []string{"luk", "lk", "Lucas", "Luc", "Lukas"}},
	{"John", "John", []string{"joh", "jn", "jhn", "Juan", "João", "Jean", "Johannes"}},
	{"Acts", "Acts", []string{"act", "ac", "Acts of the Apostles", "Hechos", "Atos", "Actes", "Apostelgeschichte"}},
	{"Romans", "Rom", []string{"ro", "rm", "Romanos", "Romains", "Römer"}},
	{"1 Corinthians", "1Cor", []string{"1 Cor", "1co", "I Corinthians", "1 Corintios", "1 Coríntios", "1 Corinthiens", "1. Korinther"}},
	{"2 Corinthians", "2Cor", []string{"2 Cor", "2co", "II Corinthians", "2 Corintios", "2 Coríntios", "2 Corinthiens", "2. Korinther"}},
	{"Galatians", "Gal", []string{"ga", "Gálatas", "Galates", "Galater"}},
	{"Ephesians", "Eph", []string{"ep", "Efesios", "Efésios", "Éphésiens", "Epheser"}},
	{"Philippians", "Phil", []string{"php", "pp", "Filipenses", "Philippiens", "Philipper"}},
	{"Colossians", "Col", []string{"co", "Colosenses", "Colossenses", "Colossiens", "Kolosser"}},
	{"1 Thessalonians", "1Thess", []string{"1 Thess", "1th", "I Thessalonians", "1 Tesalonicenses", "1 Tessalonicenses", "1 Thessaloniciens", "1. Thessalonicher"}},
	{"2 Thessalonians", "2Thess", []string{"2 Thess", "2th", "II Thessalonians", "2 Tesalonicenses", "2 Tessalonicenses", "2 Thessaloniciens", "2. Thessalonicher"}},
	{"1 Timothy", "1Tim", []string{"1 Tim", "1ti", "I Timothy", "1 Timoteo", "1 Timóteo", "1 Timothée", "1. Timotheus"}},
	{"2 Timothy", "2Tim", []string{"2 Tim", "2ti", "II Timothy", "2 Timoteo", "2 Timóteo", "2 Timothée", "2. Timotheus"}},
	{"Titus", "Titus", []string{"tit", "ti", "Tito", "Tite"}},
	{"Philemon", "Phlm", []string{"phm", "pm", "Filemón", "Filemom", "Philémon"}},
	{"Hebrews", "Heb", []string{"he", "Hebreos", "Hebreus", "Hébreux", "Hebräer"}},
	{"James", "Jas", []string{"jm", "Santiago", "Tiago", "Jacques", "Jakobus"}},
	{"1 Peter", "1Pet", []string{"1 Pet", "1pe", "I Peter", "1 Pedro", "1 Pierre", "1. Petrus"}},
	{"2 Peter", "2Pet", []string{"2 Pet", "2pe", "II Peter", "2 Pedro", "2 Pierre", "2. Petrus"}},
	{"1 John", "1John", []string{"1 Jn", "1jo", "I John", "1 Juan", "1 João", "1 Jean", "1. Johannes"}},
	{"2 John", "2John", []string{"2 Jn", "2jo", "II John", "2 Juan", "2 João", "2 Jean", "2. Johannes"}},
	{"3 John", "3John", []string{"3 Jn", "3jo", "III John", "3 Juan", "3 João", "3 Jean", "3. Johannes"}},
	{"Jude", "Jude", []string{"jud", "jd", "Judas"}},
	{"Revelation", "Rev", []string{"re", "rv", "Revelation of John", "Apocalipsis", "Apocalipse", "Apocalypse", "Offenbarung"}},
}

// IsValid reports whether id is a canonical book id.
func IsValid(id int) bool {
	return id >= FirstBook && id <= LastBook
}

// NameForBookID returns the canonical English display name for id.
func NameForBookID(id int) (string, bool) {
	if !IsValid(id) {
		return "", false
	}
	return table[id-1].name, true
}

// OSISForBookID returns the OSIS book abbreviation for id.
func OSISForBookID(id int) (string, bool) {
	if !IsValid(id) {
		return "", false
	}
	return table[id-1].osis, true
}

// TestamentFor derives the testament from the fixed 39/40 split.
func TestamentFor(id int) (Testament, bool) {
	switch {
	case !IsValid(id):
		return 0, false
	case id <= LastOldTestamentBook:
		return OldTestament, true
	default:
		return NewTestament, true
	}
}

// BookByID returns the full canonical record for id.
func BookByID(id int) (Book, bool) {
	if !IsValid(id) {
		return Book{}, false
	}
	t, _ := TestamentFor(id)
	e := table[id-1]
	return Book{ID: id, Name: e.name, OSIS: e.osis, Testament: t}, true
}

// Books returns all 66 books in canonical order.
func Books() []Book {
	books := make([]Book, 0, LastBook)
	for id := FirstBook; id <= LastBook; id++ {
		b, _ := BookByID(id)
		books = append(books, b)
	}
	return books
}
