// Package library serves translations out of an artifact directory.
//
// A translation code resolves to the first of <CODE>.sqlite, <CODE>.json.xz
// and <CODE>.json found in the directory. SQLite artifacts are read one
// chapter at a time; JSON artifacts are decoded whole and kept in an LRU
// cache shared by every reader of the library.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/core/cache"
	verrors "github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
	"github.com/FocuswithJustin/versestream/core/search"
	"github.com/FocuswithJustin/versestream/core/stream"
	"github.com/FocuswithJustin/versestream/internal/validation"
)

// DefaultCacheSize is the number of decoded translations kept in memory.
const DefaultCacheSize = 4

// Kind is the storage format of a translation artifact.
type Kind int

const (
	KindSQLite Kind = iota
	KindJSONXZ
	KindJSON
)

var kindNames = [...]string{"sqlite", "json.xz", "json"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// suffix returns the file name suffix of the kind.
func (k Kind) suffix() string {
	switch k {
	case KindSQLite:
		return artifact.SQLiteExt
	case KindJSONXZ:
		return artifact.TranslationExt + artifact.XZExt
	default:
		return artifact.TranslationExt
	}
}

// resolveOrder is the preference order when several artifacts share a code.
var resolveOrder = []Kind{KindSQLite, KindJSONXZ, KindJSON}

// Artifact describes one available translation.
type Artifact struct {
	Code    string `json:"code"`
	Kind    Kind   `json:"kind"`
	Path    string `json:"-"`
	Indexed bool   `json:"indexed"`
}

// Options configures a Library.
type Options struct {
	// CacheSize bounds the decoded translations and indexes kept in memory.
	// Zero selects DefaultCacheSize.
	CacheSize int

	// TTL expires cached translations (0 = never).
	TTL time.Duration
}

// Library resolves translation codes to artifacts and implements
// stream.Source. It is safe for concurrent use.
type Library struct {
	dir          string
	translations *cache.LRU[string, *scripture.Translation]
	indexes      *cache.LRU[string, *search.Index]

	mu     sync.Mutex
	stores map[string]*artifact.SQLiteStore
}

var _ stream.Source = (*Library)(nil)

// Open returns a library over dir.
func Open(dir string, opts Options) (*Library, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, verrors.NewNotFound("artifact directory", dir)
		}
		return nil, verrors.NewIO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, verrors.NewValidation("dir", dir+" is not a directory")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	return &Library{
		dir: dir,
		translations: cache.New(cache.Config[string, *scripture.Translation]{
			MaxSize: opts.CacheSize,
			TTL:     opts.TTL,
		}),
		indexes: cache.New(cache.Config[string, *search.Index]{
			MaxSize: opts.CacheSize,
			TTL:     opts.TTL,
		}),
		stores: make(map[string]*artifact.SQLiteStore),
	}, nil
}

// Dir returns the artifact directory.
func (l *Library) Dir() string { return l.dir }

// Resolve finds the artifact backing code.
func (l *Library) Resolve(code string) (Artifact, error) {
	if err := validation.ValidateCode(code); err != nil {
		return Artifact{}, verrors.NewValidation("translation", err.Error())
	}
	for _, kind := range resolveOrder {
		path := filepath.Join(l.dir, code+kind.suffix())
		if _, err := os.Stat(path); err == nil {
			return Artifact{Code: code, Kind: kind, Path: path}, nil
		}
	}
	return Artifact{}, verrors.NewNotFound("translation", code)
}

// Translations lists the available translations in code order, one entry per
// code.
func (l *Library) Translations() ([]Artifact, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, verrors.NewIO("read directory", l.dir, err)
	}

	seen := make(map[string]bool)
	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		code, ok := codeFromFilename(e.Name())
		if !ok || seen[code] {
			continue
		}
		a, err := l.Resolve(code)
		if err != nil {
			continue
		}
		seen[code] = true
		a.Indexed = l.indexPath(code) != ""
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// codeFromFilename extracts the translation code from a translation artifact
// file name. Index artifacts and the lock file are not translations.
func codeFromFilename(name string) (string, bool) {
	if strings.Contains(name, artifact.IndexExt) || name == artifact.LockFileName {
		return "", false
	}
	for _, kind := range resolveOrder {
		if code, ok := strings.CutSuffix(name, kind.suffix()); ok {
			return code, validation.ValidateCode(code) == nil
		}
	}
	return "", false
}

// Translation returns the whole decoded translation.
func (l *Library) Translation(ctx context.Context, code string) (*scripture.Translation, error) {
	a, err := l.Resolve(code)
	if err != nil {
		return nil, err
	}
	return l.translations.GetOrLoad(code, func() (*scripture.Translation, error) {
		if a.Kind == KindSQLite {
			store, err := l.store(a)
			if err != nil {
				return nil, err
			}
			return store.ReadAll(ctx)
		}
		return artifact.ReadTranslation(a.Path)
	})
}

// Books returns the book metadata of a translation in canonical order.
func (l *Library) Books(ctx context.Context, code string) ([]stream.BookInfo, error) {
	a, err := l.Resolve(code)
	if err != nil {
		return nil, err
	}
	if a.Kind == KindSQLite {
		store, err := l.store(a)
		if err != nil {
			return nil, err
		}
		metas, err := store.Books(ctx)
		if err != nil {
			return nil, err
		}
		books := make([]stream.BookInfo, len(metas))
		for i, m := range metas {
			books[i] = stream.BookInfo{ID: m.ID, Name: m.Name, Chapters: m.Chapters}
		}
		return books, nil
	}

	t, err := l.Translation(ctx, code)
	if err != nil {
		return nil, err
	}
	books := make([]stream.BookInfo, len(t.Books))
	for i := range t.Books {
		b := &t.Books[i]
		books[i] = stream.BookInfo{ID: b.ID, Name: b.Name, Chapters: b.LastChapter()}
	}
	return books, nil
}

// Chapter returns the verses of one chapter. A chapter absent from the
// artifact is reported as NotFound.
func (l *Library) Chapter(ctx context.Context, code string, book, chapter int) ([]scripture.Verse, error) {
	a, err := l.Resolve(code)
	if err != nil {
		return nil, err
	}
	if a.Kind == KindSQLite {
		store, err := l.store(a)
		if err != nil {
			return nil, err
		}
		return store.Chapter(ctx, book, chapter)
	}

	t, err := l.Translation(ctx, code)
	if err != nil {
		return nil, err
	}
	b, ok := t.Book(book)
	if !ok {
		return nil, verrors.NewNotFound("book", fmt.Sprintf("%s %d", code, book))
	}
	c, ok := b.Chapter(chapter)
	if !ok {
		return nil, verrors.NewNotFound("chapter", fmt.Sprintf("%s %d:%d", code, book, chapter))
	}
	return c.Verses, nil
}

// Index returns the search index of a translation.
func (l *Library) Index(code string) (*search.Index, error) {
	if err := validation.ValidateCode(code); err != nil {
		return nil, verrors.NewValidation("translation", err.Error())
	}
	return l.indexes.GetOrLoad(code, func() (*search.Index, error) {
		path := l.indexPath(code)
		if path == "" {
			return nil, verrors.NewNotFound("index", code)
		}
		return artifact.ReadIndex(path)
	})
}

func (l *Library) indexPath(code string) string {
	for _, compress := range []bool{true, false} {
		path := artifact.IndexPath(l.dir, code, compress)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// store returns the open SQLite handle for a, opening it on first use.
func (l *Library) store(a Artifact) (*artifact.SQLiteStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.stores[a.Path]; ok {
		return s, nil
	}
	s, err := artifact.OpenSQLite(a.Path)
	if err != nil {
		return nil, err
	}
	l.stores[a.Path] = s
	return s, nil
}

// CacheStats reports the translation and index cache statistics.
func (l *Library) CacheStats() (translations, indexes cache.Stats) {
	return l.translations.Stats(), l.indexes.Stats()
}

// Close releases open database handles and empties the caches.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for path, s := range l.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.stores, path)
	}
	l.translations.Clear()
	l.indexes.Clear()
	return firstErr
}
