package search

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Tokenizer splits verse text into index terms: lowercased runs of letters
// and digits, stop words removed, stemmed, bounded in length.
type Tokenizer struct {
	StopWords map[string]bool
	minLength int
	maxLength int
	stemmer   string
}

// NewTokenizer returns a tokenizer for the given minimum term length and
// snowball language. An empty or unsupported language disables stemming.
// English stop words are applied only to English text.
func NewTokenizer(minLength int, language string) *Tokenizer {
	stemmer := stemmerFor(language)
	stop := map[string]bool{}
	if stemmer == "english" || language == "" {
		stop = defaultStopWords()
	}
	return &Tokenizer{
		StopWords: stop,
		minLength: minLength,
		maxLength: 50,
		stemmer:   stemmer,
	}
}

// Tokenize returns the terms of text in order, duplicates included.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if t.StopWords[word] {
			continue
		}
		n := len([]rune(word))
		if n < t.minLength || n > t.maxLength {
			continue
		}
		if !isValidToken(word) {
			continue
		}
		tokens = append(tokens, t.stem(word))
	}
	return tokens
}

func (t *Tokenizer) stem(word string) string {
	if t.stemmer == "" {
		return word
	}
	stemmed, err := snowball.Stem(word, t.stemmer, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// isValidToken rejects pure numbers and digit-heavy tokens such as "3:16".
func isValidToken(word string) bool {
	alpha, digit := 0, 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			alpha++
		} else if unicode.IsDigit(r) {
			digit++
		}
	}
	return alpha > 0 && digit <= alpha
}

// stemmerFor maps a translation language tag to a snowball language name.
func stemmerFor(language string) string {
	tag := strings.ToLower(language)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	switch tag {
	case "", "en", "eng", "english":
		return "english"
	case "es", "spa", "spanish":
		return "spanish"
	case "fr", "fra", "fre", "french":
		return "french"
	case "ru", "rus", "russian":
		return "russian"
	case "sv", "swe", "swedish":
		return "swedish"
	case "no", "nb", "nn", "nor", "norwegian":
		return "norwegian"
	}
	return ""
}

func defaultStopWords() map[string]bool {
	words := []string{
		// Articles
		"a", "an", "the",

		// Pronouns
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves",
		"you", "your", "yours", "yourself", "yourselves",
		"he", "him", "his", "himself", "she", "her", "hers", "herself",
		"it", "its", "itself", "they", "them", "their", "theirs", "themselves",
		"thee", "thou", "thy", "thine", "ye",

		// Prepositions
		"of", "at", "by", "for", "with", "about", "against", "between",
		"into", "through", "during", "before", "after", "above", "below",
		"to", "from", "up", "down", "in", "out", "on", "off", "over", "under",
		"unto",

		// Conjunctions
		"and", "or", "but", "if", "while", "because", "as", "until",
		"than", "so", "nor", "yet",

		// Common verbs
		"is", "am", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "having", "hath",
		"do", "does", "did", "doing",
		"will", "would", "should", "could", "can", "may", "might", "must",
		"shall", "shalt",

		// Other common words
		"this", "that", "these", "those",
		"what", "which", "who", "whom", "whose", "when", "where", "why", "how",
		"all", "each", "every", "both", "few", "more", "most", "other", "some", "such",
		"no", "not", "only", "own", "same", "then", "there", "too", "very",
	}

	stopWords := make(map[string]bool, len(words))
	for _, word := range words {
		stopWords[word] = true
	}
	return stopWords
}
