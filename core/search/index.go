// Package search builds a fuzzy full-text index over the verses of a
// canonical translation.
package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/FocuswithJustin/versestream/core/scripture"
)

const (
	// DefaultMinTermLength drops very short tokens from the index.
	DefaultMinTermLength = 3
	// DefaultThreshold is the minimum term similarity for a fuzzy match.
	DefaultThreshold = 0.6
)

// Options controls index construction and matching.
type Options struct {
	MinTermLength int     `json:"m"`
	Threshold     float64 `json:"s"`
	// Language selects the snowball stemmer; empty means English.
	Language string `json:"l,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.MinTermLength <= 0 {
		o.MinTermLength = DefaultMinTermLength
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Entry is one indexed verse.
type Entry struct {
	Book    int
	Chapter int
	Verse   int
	Text    string
}

// MarshalJSON encodes an entry as [book,chapter,verse,"text"].
func (e Entry) MarshalJSON() ([]byte, error) {
	return scripture.MarshalCompact([4]any{e.Book, e.Chapter, e.Verse, e.Text})
}

// UnmarshalJSON decodes the four-element array form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("search entry: expected 4 elements, got %d", len(raw))
	}
	for i, dst := range []any{&e.Book, &e.Chapter, &e.Verse, &e.Text} {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return fmt.Errorf("search entry element %d: %w", i, err)
		}
	}
	return nil
}

// Hit is a search result.
type Hit struct {
	Book    int     `json:"book"`
	Chapter int     `json:"chapter"`
	Verse   int     `json:"verse"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// Index is an inverted index from stemmed terms to entries. Entries are held
// in canonical (book, chapter, verse) order. An Index is immutable after
// construction and safe for concurrent searches.
type Index struct {
	code     string
	opts     Options
	entries  []Entry
	postings map[string][]int
	terms    []string
	tok      *Tokenizer
}

// Build indexes every verse of t.
func Build(t *scripture.Translation, opts Options) *Index {
	if opts.Language == "" {
		opts.Language = t.Language
	}
	var entries []Entry
	for _, b := range t.Books {
		for _, c := range b.Chapters {
			for _, v := range c.Verses {
				entries = append(entries, Entry{Book: b.ID, Chapter: c.Number, Verse: v.Number, Text: v.Text})
			}
		}
	}
	return newIndex(t.Code, opts, entries)
}

func newIndex(code string, opts Options, entries []Entry) *Index {
	opts = opts.withDefaults()
	ix := &Index{
		code:     code,
		opts:     opts,
		entries:  entries,
		postings: make(map[string][]int),
		tok:      NewTokenizer(opts.MinTermLength, opts.Language),
	}
	for i, e := range entries {
		for _, term := range ix.tok.Tokenize(e.Text) {
			p := ix.postings[term]
			if n := len(p); n > 0 && p[n-1] == i {
				continue
			}
			ix.postings[term] = append(p, i)
		}
	}
	ix.terms = make([]string, 0, len(ix.postings))
	for term := range ix.postings {
		ix.terms = append(ix.terms, term)
	}
	sort.Strings(ix.terms)
	return ix
}

// Code returns the translation code the index was built from.
func (ix *Index) Code() string { return ix.code }

// Options returns the effective options.
func (ix *Index) Options() Options { return ix.opts }

// Len returns the number of indexed verses.
func (ix *Index) Len() int { return len(ix.entries) }

// Terms returns the number of distinct index terms.
func (ix *Index) Terms() int { return len(ix.terms) }

// Search returns up to limit hits for query, highest score first. Each query
// term contributes the similarity of its closest matching index term, so a
// verse matching more query terms ranks higher. Equal scores keep canonical
// order. A limit <= 0 returns every hit.
func (ix *Index) Search(query string, limit int) []Hit {
	queryTerms := dedupe(ix.tok.Tokenize(query))
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, q := range queryTerms {
		best := make(map[int]float64)
		for _, term := range ix.terms {
			sim, ok := ix.similar(q, term)
			if !ok {
				continue
			}
			for _, e := range ix.postings[term] {
				if sim > best[e] {
					best[e] = sim
				}
			}
		}
		for e, s := range best {
			scores[e] += s
		}
	}

	ids := make([]int, 0, len(scores))
	for e := range scores {
		ids = append(ids, e)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := scores[ids[i]], scores[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	hits := make([]Hit, len(ids))
	for i, e := range ids {
		en := ix.entries[e]
		hits[i] = Hit{Book: en.Book, Chapter: en.Chapter, Verse: en.Verse, Text: en.Text, Score: scores[e]}
	}
	return hits
}

// similar reports whether term is within the similarity threshold of q.
func (ix *Index) similar(q, term string) (float64, bool) {
	if q == term {
		return 1, true
	}
	lq, lt := utf8.RuneCountInString(q), utf8.RuneCountInString(term)
	longest := lq
	if lt > longest {
		longest = lt
	}
	diff := lq - lt
	if diff < 0 {
		diff = -diff
	}
	// The length difference is a lower bound on the edit distance.
	if 1-float64(diff)/float64(longest) < ix.opts.Threshold {
		return 0, false
	}
	sim := Similarity(q, term)
	return sim, sim >= ix.opts.Threshold
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type indexDoc struct {
	Code    string  `json:"v"`
	Options Options `json:"o"`
	Entries []Entry `json:"e"`
}

// MarshalJSON encodes the entries and options. Postings are derived data and
// are rebuilt on decode.
func (ix *Index) MarshalJSON() ([]byte, error) {
	entries := ix.entries
	if entries == nil {
		entries = []Entry{}
	}
	return scripture.MarshalCompact(indexDoc{Code: ix.code, Options: ix.opts, Entries: entries})
}

// UnmarshalJSON restores an index written by MarshalJSON.
func (ix *Index) UnmarshalJSON(data []byte) error {
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*ix = *newIndex(doc.Code, doc.Options, doc.Entries)
	return nil
}
