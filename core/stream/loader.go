// Package stream presents a translation as one continuous, book-spanning
// sequence of chapter headers and verses, loading chapters around the
// reader's position and evicting the ones furthest away.
package stream

import (
	"context"
	"errors"
	"sort"

	"github.com/FocuswithJustin/versestream/core/canon"
	verrors "github.com/FocuswithJustin/versestream/core/errors"
)

// Defaults applied to zero-valued Options.
const (
	DefaultPreloadCount      = 2
	DefaultMaxLoadedChapters = 10
)

// ErrNotReady is returned by operations issued before Initialize succeeds.
var ErrNotReady = errors.New("stream: loader not initialized")

// Options configures a Loader.
type Options struct {
	Translation  string
	StartBook    int
	StartChapter int

	// PreloadCount is the number of chapters loaded on each side of the start
	// position. Zero selects DefaultPreloadCount; a negative value disables
	// preloading.
	PreloadCount int

	// MaxLoadedChapters caps the window. Zero selects the default. It is
	// raised to 2*PreloadCount+1 when lower so the initial window fits.
	MaxLoadedChapters int

	// OnEvict is called for each chapter dropped from the window.
	OnEvict func(ChapterKey)
}

// Bounds is the currently requested window: a book and an inclusive chapter range.
// Book is zero when nothing is positioned.
type Bounds struct {
	Book  int `json:"book"`
	Lower int `json:"lower"`
	Upper int `json:"upper"`
}

type loadedChapter struct {
	items   []Item
	touched uint64
}

// Loader owns one reading session's window. It is not safe for concurrent
// use; each session constructs its own Loader.
type Loader struct {
	src  Source
	opts Options

	ready    bool
	books    map[int]BookInfo
	chapters map[ChapterKey]*loadedChapter
	window   Bounds
	focus    ChapterKey
	seq      uint64
	items    []Item
}

// New returns an uninitialized loader. Nothing is read until Initialize.
func New(src Source, opts Options) *Loader {
	switch {
	case opts.PreloadCount == 0:
		opts.PreloadCount = DefaultPreloadCount
	case opts.PreloadCount < 0:
		opts.PreloadCount = 0
	}
	if opts.MaxLoadedChapters <= 0 {
		opts.MaxLoadedChapters = DefaultMaxLoadedChapters
	}
	if floor := 2*opts.PreloadCount + 1; opts.MaxLoadedChapters < floor {
		opts.MaxLoadedChapters = floor
	}
	return &Loader{
		src:      src,
		opts:     opts,
		chapters: make(map[ChapterKey]*loadedChapter),
	}
}

// Options returns the effective options after defaults were applied.
func (l *Loader) Options() Options { return l.opts }

// Ready reports whether Initialize has succeeded.
func (l *Loader) Ready() bool { return l.ready }

// Initialize loads book metadata and the initial window around the start
// position. Failure to read the translation returns an UnavailableError. An
// out-of-range start position leaves the loader ready with an empty window.
func (l *Loader) Initialize(ctx context.Context) ([]Item, error) {
	infos, err := l.src.Books(ctx, l.opts.Translation)
	if err != nil {
		return nil, verrors.NewUnavailable(l.opts.Translation, err)
	}
	if len(infos) == 0 {
		return nil, verrors.NewUnavailable(l.opts.Translation, verrors.NewNotFound("books", l.opts.Translation))
	}

	books := make(map[int]BookInfo, len(infos))
	for _, b := range infos {
		if canon.IsValid(b.ID) && b.Chapters > 0 {
			books[b.ID] = b
		}
	}

	l.books = books
	l.chapters = make(map[ChapterKey]*loadedChapter)
	l.window = Bounds{}
	l.focus = ChapterKey{}
	l.items = nil
	l.ready = true

	if err := l.loadWindow(ctx, l.opts.StartBook, l.opts.StartChapter); err != nil {
		l.ready = false
		return nil, verrors.NewUnavailable(l.opts.Translation, err)
	}
	return l.items, nil
}

// Reset discards the window and loads a fresh one around (book, chapter),
// reusing the cached book metadata. An out-of-range position is a no-op.
func (l *Loader) Reset(ctx context.Context, book, chapter int) ([]Item, error) {
	if !l.ready {
		return nil, ErrNotReady
	}
	err := l.loadWindow(ctx, book, chapter)
	return l.items, err
}

// loadWindow replaces the window only after every chapter has been read, so a
// failed read leaves the previous window intact. An out-of-range position
// changes nothing.
func (l *Loader) loadWindow(ctx context.Context, book, chapter int) error {
	info, ok := l.books[book]
	if !ok || chapter < 1 || chapter > info.Chapters {
		return nil
	}
	lower := chapter - l.opts.PreloadCount
	if lower < 1 {
		lower = 1
	}
	upper := chapter + l.opts.PreloadCount
	if upper > info.Chapters {
		upper = info.Chapters
	}

	fresh := make(map[ChapterKey]*loadedChapter, upper-lower+1)
	seq := l.seq
	for c := lower; c <= upper; c++ {
		key := ChapterKey{Book: book, Chapter: c}
		items, err := l.fetch(ctx, key)
		if err != nil {
			return err
		}
		seq++
		fresh[key] = &loadedChapter{items: items, touched: seq}
	}

	l.seq = seq
	l.chapters = fresh
	l.window = Bounds{Book: book, Lower: lower, Upper: upper}
	l.focus = ChapterKey{Book: book, Chapter: lower}
	l.refresh()
	return nil
}

// LoadNextChapter extends the window by one chapter, crossing into chapter 1
// of the next book at a book's end. At the end of the canon it is a no-op.
func (l *Loader) LoadNextChapter(ctx context.Context) ([]Item, error) {
	if !l.ready {
		return nil, ErrNotReady
	}
	w := l.window
	if w.Book == 0 {
		return l.items, nil
	}

	var key ChapterKey
	var next Bounds
	if w.Upper < l.books[w.Book].Chapters {
		key = ChapterKey{Book: w.Book, Chapter: w.Upper + 1}
		next = Bounds{Book: w.Book, Lower: w.Lower, Upper: w.Upper + 1}
	} else if _, ok := l.books[w.Book+1]; ok {
		key = ChapterKey{Book: w.Book + 1, Chapter: 1}
		next = Bounds{Book: key.Book, Lower: 1, Upper: 1}
	} else {
		return l.items, nil
	}

	if err := l.ensure(ctx, key); err != nil {
		return l.items, err
	}
	l.window = next
	l.focus = key
	l.evict()
	l.refresh()
	return l.items, nil
}

// LoadPreviousChapter extends the window downward by one chapter, crossing
// into the last chapter of the previous book at chapter 1. At the start of the
// canon it is a no-op.
func (l *Loader) LoadPreviousChapter(ctx context.Context) ([]Item, error) {
	if !l.ready {
		return nil, ErrNotReady
	}
	w := l.window
	if w.Book == 0 {
		return l.items, nil
	}

	var key ChapterKey
	var next Bounds
	if w.Lower > 1 {
		key = ChapterKey{Book: w.Book, Chapter: w.Lower - 1}
		next = Bounds{Book: w.Book, Lower: w.Lower - 1, Upper: w.Upper}
	} else if prev, ok := l.books[w.Book-1]; ok {
		key = ChapterKey{Book: prev.ID, Chapter: prev.Chapters}
		next = Bounds{Book: prev.ID, Lower: prev.Chapters, Upper: prev.Chapters}
	} else {
		return l.items, nil
	}

	if err := l.ensure(ctx, key); err != nil {
		return l.items, err
	}
	l.window = next
	l.focus = key
	l.evict()
	l.refresh()
	return l.items, nil
}

// ensure loads key if needed and marks it most recently addressed.
func (l *Loader) ensure(ctx context.Context, key ChapterKey) error {
	if ch, ok := l.chapters[key]; ok {
		l.seq++
		ch.touched = l.seq
		return nil
	}
	items, err := l.fetch(ctx, key)
	if err != nil {
		return err
	}
	l.seq++
	l.chapters[key] = &loadedChapter{items: items, touched: l.seq}
	return nil
}

// fetch reads one chapter and builds its header and verse items. A chapter
// the source reports as not found loads as a bare header.
func (l *Loader) fetch(ctx context.Context, key ChapterKey) ([]Item, error) {
	verses, err := l.src.Chapter(ctx, l.opts.Translation, key.Book, key.Chapter)
	if err != nil && !errors.Is(err, verrors.ErrNotFound) {
		return nil, err
	}
	name := l.books[key.Book].Name
	if name == "" {
		name, _ = canon.NameForBookID(key.Book)
	}

	items := make([]Item, 0, len(verses)+1)
	items = append(items, Item{Kind: KindHeader, Book: key.Book, BookName: name, Chapter: key.Chapter})
	for _, v := range verses {
		items = append(items, Item{
			Kind:     KindVerse,
			Book:     key.Book,
			BookName: name,
			Chapter:  key.Chapter,
			Verse:    v.Number,
			Text:     v.Text,
		})
	}
	return items, nil
}

// evict drops chapters furthest from the focus until the cap holds. Equal
// distances evict the chapter addressed least recently. The focus is never
// evicted.
//
// Distance is measured from the focus, not from the window's lower bound.
// After Initialize and Reset the two coincide. While scrolling forward the
// lower bound trails the reader, and measuring from it would evict the
// chapter LoadNextChapter just loaded.
func (l *Loader) evict() {
	for len(l.chapters) > l.opts.MaxLoadedChapters {
		var (
			victim  ChapterKey
			found   bool
			maxDist int
			oldest  uint64
		)
		for key, ch := range l.chapters {
			if key == l.focus {
				continue
			}
			d := key.Distance(l.focus)
			if !found || d > maxDist || (d == maxDist && ch.touched < oldest) {
				victim, maxDist, oldest, found = key, d, ch.touched, true
			}
		}
		if !found {
			break
		}
		delete(l.chapters, victim)
		if l.opts.OnEvict != nil {
			l.opts.OnEvict(victim)
		}
	}
	l.shrinkWindow()
}

// shrinkWindow narrows the bounds to the contiguous loaded run around the focus.
func (l *Loader) shrinkWindow() {
	w := l.window
	loaded := func(c int) bool {
		_, ok := l.chapters[ChapterKey{Book: w.Book, Chapter: c}]
		return ok
	}
	lower, upper := l.focus.Chapter, l.focus.Chapter
	for lower-1 >= w.Lower && loaded(lower-1) {
		lower--
	}
	for upper+1 <= w.Upper && loaded(upper+1) {
		upper++
	}
	l.window.Lower, l.window.Upper = lower, upper
}

// refresh rebuilds the flattened view from the window.
func (l *Loader) refresh() {
	keys := make([]ChapterKey, 0, len(l.chapters))
	n := 0
	for key, ch := range l.chapters {
		keys = append(keys, key)
		n += len(ch.items)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	items := make([]Item, 0, n)
	for _, key := range keys {
		items = append(items, l.chapters[key].items...)
	}
	l.items = items
}

// FlattenedItems returns every loaded chapter's header and verses in
// (book, chapter, verse) order. The slice is replaced, not modified, by later
// operations; callers must not modify it.
func (l *Loader) FlattenedItems() []Item {
	return l.items
}

// CurrentChapterFor maps an item back to its chapter.
func (l *Loader) CurrentChapterFor(item Item) ChapterKey {
	return ChapterKey{Book: item.Book, Chapter: item.Chapter}
}

// CurrentChapterAt returns the chapter of the item at index in FlattenedItems.
func (l *Loader) CurrentChapterAt(index int) (ChapterKey, bool) {
	if index < 0 || index >= len(l.items) {
		return ChapterKey{}, false
	}
	return l.CurrentChapterFor(l.items[index]), true
}

// FindItemIndex returns the index of the chapter header, or of the verse when
// verse > 0, within FlattenedItems.
func (l *Loader) FindItemIndex(book, chapter, verse int) (int, bool) {
	if verse < 0 {
		verse = 0
	}
	target := Item{Book: book, Chapter: chapter, Verse: verse}
	i := sort.Search(len(l.items), func(i int) bool { return !itemBefore(l.items[i], target) })
	if i < len(l.items) {
		it := l.items[i]
		if it.Book == book && it.Chapter == chapter && it.Verse == verse {
			return i, true
		}
	}
	return -1, false
}

func itemBefore(a, b Item) bool {
	if a.Book != b.Book {
		return a.Book < b.Book
	}
	if a.Chapter != b.Chapter {
		return a.Chapter < b.Chapter
	}
	return a.Verse < b.Verse
}

// LoadedChapterCount returns the number of chapters held in memory.
func (l *Loader) LoadedChapterCount() int {
	return len(l.chapters)
}

// LoadedChapters returns the loaded chapter keys in canonical order.
func (l *Loader) LoadedChapters() []ChapterKey {
	keys := make([]ChapterKey, 0, len(l.chapters))
	for key := range l.chapters {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Window returns the current bounds.
func (l *Loader) Window() Bounds {
	return l.window
}

// Focus returns the most recently addressed chapter.
func (l *Loader) Focus() ChapterKey {
	return l.focus
}

// Book returns the cached metadata for a book.
func (l *Loader) Book(id int) (BookInfo, bool) {
	b, ok := l.books[id]
	return b, ok
}
