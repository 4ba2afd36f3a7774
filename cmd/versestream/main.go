// Command versestream builds Bible translation artifacts from raw datasets and
// serves them to streaming readers.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/library"
	"github.com/FocuswithJustin/versestream/core/normalize"
	"github.com/FocuswithJustin/versestream/core/stream"
	"github.com/FocuswithJustin/versestream/internal/archive"
	"github.com/FocuswithJustin/versestream/internal/logging"
	"github.com/FocuswithJustin/versestream/internal/manifest"
	"github.com/FocuswithJustin/versestream/internal/pipeline"
	"github.com/FocuswithJustin/versestream/internal/reader"
	"github.com/FocuswithJustin/versestream/internal/validation"
)

const version = "0.1.0"

// CLI defines the command-line interface for versestream.
type CLI struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" env:"VERSESTREAM_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format (text, json)" default:"text" env:"VERSESTREAM_LOG_FORMAT"`

	Build   BuildCmd   `cmd:"" help:"Normalize and index raw datasets into artifacts"`
	Detect  DetectCmd  `cmd:"" help:"Detect the format of a raw dataset and report its contents"`
	Verify  VerifyCmd  `cmd:"" help:"Check artifacts against the lock file"`
	Pack    PackCmd    `cmd:"" help:"Bundle verified artifacts into a tar.xz or tar.gz file"`
	Unpack  UnpackCmd  `cmd:"" help:"Extract a bundle and verify its artifacts"`
	Books   BooksCmd   `cmd:"" help:"List the books of a built translation"`
	Search  SearchCmd  `cmd:"" help:"Search a built translation"`
	Read    ReadCmd    `cmd:"" help:"Stream chapters of a built translation"`
	Serve   ServeCmd   `cmd:"" help:"Start the reader server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// Globals is bound into every command's Run method.
type Globals struct {
	Stdout io.Writer
}

// LibraryFlags locate the artifact directory.
type LibraryFlags struct {
	Dir string `help:"Artifact directory" default:"dist" type:"path" env:"VERSESTREAM_DIR"`
}

func (f LibraryFlags) open(opts library.Options) (*library.Library, error) {
	return library.Open(f.Dir, opts)
}

// BuildCmd runs the build pipeline.
type BuildCmd struct {
	Files    []string `arg:"" optional:"" help:"Raw dataset files (ignored with --manifest)" type:"existingfile"`
	Manifest string   `short:"m" help:"YAML or JSON build manifest" type:"existingfile" env:"VERSESTREAM_MANIFEST"`
	Out      string   `short:"o" help:"Artifact directory (overrides the manifest)" type:"path" env:"VERSESTREAM_OUT"`
	Compress bool     `help:"Write xz-compressed artifacts"`
	SQLite   bool     `name:"sqlite" help:"Also write a SQLite artifact per translation"`
	NoSearch bool     `name:"no-search" help:"Skip search index generation"`
	Workers  int      `help:"Concurrent dataset workers (0 = CPU count)" default:"0"`
	Report   string   `help:"Write the JSON build report to this path" type:"path"`
}

func (c *BuildCmd) Run(g *Globals) error {
	m, err := c.manifest()
	if err != nil {
		return err
	}

	rep, runErr := pipeline.Run(context.Background(), pipeline.Config{
		Manifest: m,
		Workers:  c.Workers,
		Stdout:   g.Stdout,
	})
	if rep != nil && c.Report != "" {
		data, err := rep.ToJSON()
		if err != nil {
			return err
		}
		if err := artifact.WriteFileAtomic(c.Report, append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return runErr
}

func (c *BuildCmd) manifest() (*manifest.Manifest, error) {
	var m *manifest.Manifest
	switch {
	case c.Manifest != "":
		var err error
		if m, err = manifest.Load(c.Manifest); err != nil {
			return nil, err
		}
	case len(c.Files) > 0:
		m = manifest.FromFiles(pipeline.DefaultOutput, c.Files...)
	default:
		return nil, fmt.Errorf("give dataset files or --manifest")
	}

	if c.Out != "" {
		m.Output = c.Out
	}
	m.Compress = m.Compress || c.Compress
	m.SQLite = m.SQLite || c.SQLite
	m.Search.Disabled = m.Search.Disabled || c.NoSearch
	return m, nil
}

// DetectCmd reports a dataset's format and what normalization makes of it.
type DetectCmd struct {
	Path     string `arg:"" help:"Raw dataset file" type:"existingfile"`
	Code     string `help:"Translation code (defaults to the dataset's own or the file name)"`
	Warnings bool   `short:"w" help:"List every data warning"`
}

func (c *DetectCmd) Run(g *Globals) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	raw, err := validation.ReadLimited(f, validation.MaxFileSize)
	f.Close()
	if err != nil {
		return err
	}

	format := normalize.DetectFormat(raw)
	fmt.Fprintf(g.Stdout, "%s: %s\n", c.Path, format)
	if format == normalize.FormatUnknown {
		return nil
	}

	code := c.Code
	if code == "" && format == normalize.FormatNested {
		code = manifest.Translation{File: c.Path}.DefaultCode()
	}
	lookup, err := canon.NewLookup()
	if err != nil {
		return err
	}
	res, _, err := normalize.Normalize(raw, normalize.Options{Code: code, Lookup: lookup})
	if err != nil {
		return err
	}

	st := res.Translation.Stats()
	fmt.Fprintf(g.Stdout, "%s: %d books, %d chapters, %d verses, %d warnings\n",
		res.Translation.Code, st.Books, st.Chapters, st.Verses, len(res.Warnings))
	counts := res.CountByKind()
	for _, kind := range res.Kinds() {
		fmt.Fprintf(g.Stdout, "  %s: %d\n", kind, counts[kind])
	}
	if c.Warnings {
		for _, w := range res.Warnings {
			fmt.Fprintf(g.Stdout, "  - %s\n", w)
		}
	}
	return nil
}

// VerifyCmd recomputes artifact digests.
type VerifyCmd struct {
	LibraryFlags
}

func (c *VerifyCmd) Run(g *Globals) error {
	mismatches, err := artifact.Verify(c.Dir)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		if m.Actual == "" {
			fmt.Fprintf(g.Stdout, "MISSING  %s\n", m.Path)
			continue
		}
		fmt.Fprintf(g.Stdout, "MISMATCH %s (expected %s, got %s)\n", m.Path, m.Expected, m.Actual)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d artifact(s) failed verification", len(mismatches))
	}
	fmt.Fprintf(g.Stdout, "all artifacts in %s match %s\n", c.Dir, artifact.LockFileName)
	return nil
}

// PackCmd bundles an artifact directory for distribution.
type PackCmd struct {
	LibraryFlags
	Bundle string `arg:"" help:"Bundle path ending in .tar.xz or .tar.gz" type:"path"`
}

func (c *PackCmd) Run(g *Globals) error {
	mismatches, err := artifact.Verify(c.Dir)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d artifact(s) in %s do not match the lock file; rebuild before packing", len(mismatches), c.Dir)
	}

	n, err := archive.Create(c.Dir, c.Bundle)
	if err != nil {
		return err
	}
	info, err := os.Stat(c.Bundle)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "packed %d files into %s (%s)\n", n, c.Bundle, humanize.Bytes(uint64(info.Size())))
	return nil
}

// UnpackCmd extracts a bundle into an artifact directory.
type UnpackCmd struct {
	LibraryFlags
	Bundle string `arg:"" help:"Bundle to extract" type:"existingfile"`
}

func (c *UnpackCmd) Run(g *Globals) error {
	n, err := archive.Extract(c.Bundle, c.Dir)
	if err != nil {
		return err
	}
	mismatches, err := artifact.Verify(c.Dir)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d artifact(s) from %s failed verification", len(mismatches), c.Bundle)
	}
	fmt.Fprintf(g.Stdout, "unpacked %d files into %s\n", n, c.Dir)
	return nil
}

// BooksCmd lists a translation's books.
type BooksCmd struct {
	LibraryFlags
	Translation string `arg:"" help:"Translation code"`
}

func (c *BooksCmd) Run(g *Globals) error {
	lib, err := c.open(library.Options{})
	if err != nil {
		return err
	}
	defer lib.Close()

	books, err := lib.Books(context.Background(), c.Translation)
	if err != nil {
		return err
	}
	for _, b := range books {
		fmt.Fprintf(g.Stdout, "%2d  %-20s %3d\n", b.ID, b.Name, b.Chapters)
	}
	return nil
}

// SearchCmd queries a translation's index.
type SearchCmd struct {
	LibraryFlags
	Translation string   `short:"t" required:"" help:"Translation code" env:"VERSESTREAM_TRANSLATION"`
	Limit       int      `short:"n" help:"Maximum results" default:"10"`
	Query       []string `arg:"" help:"Search terms"`
}

func (c *SearchCmd) Run(g *Globals) error {
	lib, err := c.open(library.Options{})
	if err != nil {
		return err
	}
	defer lib.Close()

	idx, err := lib.Index(c.Translation)
	if err != nil {
		return err
	}
	hits := idx.Search(strings.Join(c.Query, " "), c.Limit)
	if len(hits) == 0 {
		fmt.Fprintln(g.Stdout, "no matches")
		return nil
	}
	for _, h := range hits {
		ref := canon.Reference{Book: h.Book, Chapter: h.Chapter, Verse: h.Verse}
		fmt.Fprintf(g.Stdout, "%s (%.2f) %s\n", ref, h.Score, h.Text)
	}
	return nil
}

// ReadCmd streams chapters through the same loader the reader server uses.
type ReadCmd struct {
	LibraryFlags
	Translation string `arg:"" help:"Translation code"`
	Reference   string `arg:"" optional:"" help:"Where to start, e.g. \"John 3:16\"" default:"Genesis 1"`
	Chapters    int    `short:"c" help:"Number of chapters to print" default:"1"`
}

func (c *ReadCmd) Run(g *Globals) error {
	lookup, err := canon.NewLookup()
	if err != nil {
		return err
	}
	ref, err := canon.ParseReference(c.Reference, lookup)
	if err != nil {
		return err
	}
	if ref.Chapter == 0 {
		ref.Chapter = 1
	}

	lib, err := c.open(library.Options{})
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	l := stream.New(lib, stream.Options{
		Translation:  c.Translation,
		StartBook:    ref.Book,
		StartChapter: ref.Chapter,
		PreloadCount: -1,
	})
	items, err := l.Initialize(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%s is not in %s", ref, c.Translation)
	}

	if _, ok := l.FindItemIndex(ref.Book, ref.Chapter, ref.Verse); !ok {
		return fmt.Errorf("%s is not in %s", ref, c.Translation)
	}
	printChapter(g.Stdout, l, items, ref.Verse)
	for i := 1; i < c.Chapters; i++ {
		before := l.Focus()
		items, err = l.LoadNextChapter(ctx)
		if err != nil {
			return err
		}
		if l.Focus() == before {
			break
		}
		printChapter(g.Stdout, l, items, 0)
	}
	return nil
}

// printChapter prints the loader's focus chapter starting at fromVerse.
func printChapter(w io.Writer, l *stream.Loader, items []stream.Item, fromVerse int) {
	focus := l.Focus()
	for _, it := range items {
		if l.CurrentChapterFor(it) != focus {
			continue
		}
		if it.Kind == stream.KindHeader {
			fmt.Fprintf(w, "\n%s %d\n\n", it.BookName, it.Chapter)
			continue
		}
		if it.Verse >= fromVerse {
			fmt.Fprintf(w, "%3d  %s\n", it.Verse, it.Text)
		}
	}
}

// ServeCmd starts the reader server.
type ServeCmd struct {
	LibraryFlags
	Addr               string        `help:"Listen address" default:":8080" env:"VERSESTREAM_ADDR"`
	AllowedOrigins     []string      `name:"allowed-origin" help:"Allowed browser origins (repeatable; empty allows all)" env:"VERSESTREAM_ALLOWED_ORIGINS"`
	DefaultTranslation string        `help:"Translation used by sessions that name none" env:"VERSESTREAM_TRANSLATION"`
	Preload            int           `help:"Chapters preloaded on each side of the start position" default:"2"`
	MaxChapters        int           `help:"Maximum chapters kept per session" default:"10"`
	CacheSize          int           `help:"Decoded translations kept in memory" default:"4"`
	CacheTTL           time.Duration `name:"cache-ttl" help:"Expire cached translations after this long (0 = never)" default:"0s"`
	MessageRate        float64       `help:"Session commands allowed per second" default:"10"`
}

func (c *ServeCmd) Run(g *Globals) error {
	lib, err := c.open(library.Options{CacheSize: c.CacheSize, TTL: c.CacheTTL})
	if err != nil {
		return err
	}
	defer lib.Close()

	srv, err := reader.New(reader.Config{
		Library:            lib,
		AllowedOrigins:     c.AllowedOrigins,
		MessageRate:        c.MessageRate,
		PreloadCount:       c.Preload,
		MaxLoadedChapters:  c.MaxChapters,
		DefaultTranslation: c.DefaultTranslation,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, c.Addr)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.Stdout, "versestream version %s\n", version)
	return nil
}

func setupLogging(levelName, formatName string) error {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(formatName)
	if err != nil {
		return err
	}
	logging.InitLogger(os.Stderr, level, format)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("versestream"),
		kong.Description("Bible content pipeline and streaming reader"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(setupLogging(cli.LogLevel, cli.LogFormat))
	err := ctx.Run(&Globals{Stdout: os.Stdout})
	ctx.FatalIfErrorf(err)
}
