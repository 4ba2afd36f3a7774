package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/internal/pipeline"
)

const nestedWEB = `{
	"Genesis": {
		"1": {"1": "In the beginning, God created the heavens and the earth.", "2": "The earth was formless and empty."},
		"2": {"1": "The heavens, the earth, and all their vast array were finished."}
	},
	"Exodus": {"1": {"1": "Now these are the names of the sons of Israel."}}
}`

// Test helper functions

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func newGlobals() (*Globals, *bytes.Buffer) {
	var out bytes.Buffer
	return &Globals{Stdout: &out}, &out
}

// buildLibrary builds web.json into a fresh artifact directory.
func buildLibrary(t *testing.T, sqlite bool) string {
	t.Helper()
	src := createTestFile(t, t.TempDir(), "web.json", nestedWEB)
	dist := filepath.Join(t.TempDir(), "dist")
	g, _ := newGlobals()
	cmd := &BuildCmd{Files: []string{src}, Out: dist, SQLite: sqlite}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return dist
}

// Tests for BuildCmd

func TestBuildCmd_Files(t *testing.T) {
	src := createTestFile(t, t.TempDir(), "web.json", nestedWEB)
	dist := filepath.Join(t.TempDir(), "dist")
	report := filepath.Join(t.TempDir(), "report.json")

	g, out := newGlobals()
	cmd := &BuildCmd{Files: []string{src}, Out: dist, SQLite: true, Report: report}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(out.String(), "WEB: 2 books, 3 chapters, 4 verses, 0 warnings") {
		t.Errorf("stdout = %q", out.String())
	}
	for _, name := range []string{"WEB.json", "WEB.index.json", "WEB.sqlite", artifact.LockFileName} {
		if _, err := os.Stat(filepath.Join(dist, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(data), `"status": "pass"`) {
		t.Errorf("report = %s", data)
	}
}

func TestBuildCmd_NoInput(t *testing.T) {
	g, _ := newGlobals()
	if err := (&BuildCmd{}).Run(g); err == nil {
		t.Error("expected error without files or manifest")
	}
}

func TestBuildCmd_NothingProduced(t *testing.T) {
	src := createTestFile(t, t.TempDir(), "notes.txt", "not a bible")
	report := filepath.Join(t.TempDir(), "report.json")
	g, _ := newGlobals()
	cmd := &BuildCmd{Files: []string{src}, Out: t.TempDir(), Report: report}

	if err := cmd.Run(g); !errors.Is(err, pipeline.ErrNothingProduced) {
		t.Fatalf("err = %v, want ErrNothingProduced", err)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(data), `"status": "fail"`) {
		t.Errorf("report = %s", data)
	}
}

func TestBuildCmd_ManifestOverrides(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "web.json", nestedWEB)
	manifestPath := createTestFile(t, dir, "versestream.yaml", `
output: ignored
translations:
  - file: web.json
    code: WEB
    name: World English Bible
`)
	dist := filepath.Join(t.TempDir(), "dist")

	g, _ := newGlobals()
	cmd := &BuildCmd{Manifest: manifestPath, Out: dist, Compress: true, NoSearch: true}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dist, "WEB.json.xz")); err != nil {
		t.Errorf("compressed artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dist, "WEB.index.json.xz")); !os.IsNotExist(err) {
		t.Errorf("index written despite --no-search: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ignored")); !os.IsNotExist(err) {
		t.Error("manifest output used despite --out")
	}
}

// Tests for DetectCmd

func TestDetectCmd(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "nested",
			file:    "web.json",
			content: nestedWEB,
			want:    []string{"web.json: nested", "WEB: 2 books, 3 chapters, 4 verses, 0 warnings"},
		},
		{
			name:    "flat with warnings",
			file:    "kjv.json",
			content: `{"metadata": {"shortname": "KJV"}, "verses": [{"book_name": "Genesis", "book": 1, "chapter": 1, "verse": 1, "text": "In the beginning."}, {"book_name": "Genesis", "book": 1, "chapter": 1, "verse": 2, "text": "  "}]}`,
			want:    []string{"kjv.json: flat", "KJV: 1 books, 1 chapters, 1 verses, 1 warnings", "empty_text: 1"},
		},
		{
			name:    "unknown",
			file:    "notes.txt",
			content: "not a bible",
			want:    []string{"notes.txt: unknown"},
		},
		{
			name:    "flat without code",
			file:    "anon.json",
			content: `{"metadata": {"name": "Anonymous"}, "verses": [{"book_name": "Genesis", "book": 1, "chapter": 1, "verse": 1, "text": "In the beginning."}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTestFile(t, dir, tt.file, tt.content)
			g, out := newGlobals()
			err := (&DetectCmd{Path: path}).Run(g)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

// Tests for VerifyCmd

func TestVerifyCmd(t *testing.T) {
	dist := buildLibrary(t, false)

	g, out := newGlobals()
	cmd := &VerifyCmd{LibraryFlags{Dir: dist}}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("clean verify failed: %v", err)
	}
	if !strings.Contains(out.String(), "all artifacts") {
		t.Errorf("output = %q", out.String())
	}

	f, err := os.OpenFile(filepath.Join(dist, "WEB.json"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(" ")
	f.Close()
	if err := os.Remove(filepath.Join(dist, "WEB.index.json")); err != nil {
		t.Fatal(err)
	}

	g, out = newGlobals()
	if err := cmd.Run(g); err == nil {
		t.Fatal("expected verification failure")
	}
	for _, want := range []string{"MISMATCH WEB.json", "MISSING  WEB.index.json"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestVerifyCmd_NoLock(t *testing.T) {
	g, _ := newGlobals()
	if err := (&VerifyCmd{LibraryFlags{Dir: t.TempDir()}}).Run(g); err == nil {
		t.Error("expected error without a lock file")
	}
}

// Tests for PackCmd and UnpackCmd

func TestPackUnpack(t *testing.T) {
	dist := buildLibrary(t, true)
	bundle := filepath.Join(t.TempDir(), "bibles.tar.xz")

	g, out := newGlobals()
	if err := (&PackCmd{LibraryFlags: LibraryFlags{Dir: dist}, Bundle: bundle}).Run(g); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !strings.Contains(out.String(), "packed 4 files") {
		t.Errorf("pack output = %q", out.String())
	}

	restored := filepath.Join(t.TempDir(), "restored")
	g, out = newGlobals()
	if err := (&UnpackCmd{LibraryFlags: LibraryFlags{Dir: restored}, Bundle: bundle}).Run(g); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !strings.Contains(out.String(), "unpacked 4 files") {
		t.Errorf("unpack output = %q", out.String())
	}

	g, out = newGlobals()
	if err := (&BooksCmd{LibraryFlags: LibraryFlags{Dir: restored}, Translation: "WEB"}).Run(g); err != nil {
		t.Fatalf("books from restored library: %v", err)
	}
	if !strings.Contains(out.String(), "Genesis") {
		t.Errorf("books output = %q", out.String())
	}
}

func TestPackCmd_RefusesTamperedArtifacts(t *testing.T) {
	dist := buildLibrary(t, false)
	if err := os.WriteFile(filepath.Join(dist, "WEB.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	bundle := filepath.Join(t.TempDir(), "bibles.tar.gz")

	g, _ := newGlobals()
	if err := (&PackCmd{LibraryFlags: LibraryFlags{Dir: dist}, Bundle: bundle}).Run(g); err == nil {
		t.Fatal("expected pack to refuse tampered artifacts")
	}
	if _, err := os.Stat(bundle); !os.IsNotExist(err) {
		t.Error("bundle written despite failed verification")
	}
}

// Tests for library commands

func TestBooksCmd(t *testing.T) {
	for _, sqlite := range []bool{false, true} {
		dist := buildLibrary(t, sqlite)
		g, out := newGlobals()
		if err := (&BooksCmd{LibraryFlags: LibraryFlags{Dir: dist}, Translation: "WEB"}).Run(g); err != nil {
			t.Fatalf("sqlite=%v: Run() error = %v", sqlite, err)
		}
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 2 || !strings.Contains(lines[0], "Genesis") || !strings.Contains(lines[1], "Exodus") {
			t.Errorf("sqlite=%v: output = %q", sqlite, out.String())
		}
	}
}

func TestSearchCmd(t *testing.T) {
	dist := buildLibrary(t, false)

	g, out := newGlobals()
	cmd := &SearchCmd{LibraryFlags: LibraryFlags{Dir: dist}, Translation: "WEB", Limit: 5, Query: []string{"beginning"}}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "Genesis 1:1 ") {
		t.Errorf("output = %q", out.String())
	}

	g, out = newGlobals()
	cmd.Query = []string{"zzzzzz"}
	if err := cmd.Run(g); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "no matches" {
		t.Errorf("output = %q", out.String())
	}

	cmd.Translation = "NOPE"
	if err := cmd.Run(g); err == nil {
		t.Error("expected error for unknown translation")
	}
}

func TestReadCmd(t *testing.T) {
	dist := buildLibrary(t, false)

	tests := []struct {
		name     string
		ref      string
		chapters int
		want     []string
		notWant  []string
		wantErr  bool
	}{
		{
			name:     "from verse across books",
			ref:      "Genesis 1:2",
			chapters: 3,
			want:     []string{"Genesis 1\n", "  2  The earth was formless", "Genesis 2\n", "Exodus 1\n"},
			notWant:  []string{"In the beginning"},
		},
		{
			name:     "stops at the end",
			ref:      "Exodus",
			chapters: 5,
			want:     []string{"Exodus 1\n", "sons of Israel"},
			notWant:  []string{"Genesis"},
		},
		{name: "book not in translation", ref: "Leviticus 1", chapters: 1, wantErr: true},
		{name: "missing verse", ref: "Genesis 2:9", chapters: 1, wantErr: true},
		{name: "unknown book", ref: "Hezekiah 1", chapters: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, out := newGlobals()
			cmd := &ReadCmd{LibraryFlags: LibraryFlags{Dir: dist}, Translation: "WEB", Reference: tt.ref, Chapters: tt.chapters}
			err := cmd.Run(g)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
			for _, bad := range tt.notWant {
				if strings.Contains(out.String(), bad) {
					t.Errorf("output contains %q:\n%s", bad, out.String())
				}
			}
		})
	}
}

func TestReadCmd_Unavailable(t *testing.T) {
	g, _ := newGlobals()
	cmd := &ReadCmd{LibraryFlags: LibraryFlags{Dir: t.TempDir()}, Translation: "WEB", Reference: "Genesis 1", Chapters: 1}
	err := cmd.Run(g)
	if err == nil || !strings.Contains(err.Error(), "currently unavailable") {
		t.Errorf("err = %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	g, out := newGlobals()
	if err := (&VersionCmd{}).Run(g); err != nil {
		t.Fatal(err)
	}
	if out.String() != "versestream version "+version+"\n" {
		t.Errorf("output = %q", out.String())
	}
}

// Tests for flag parsing

func TestCLI_Parse(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VERSESTREAM_DIR", dir)
	t.Setenv("VERSESTREAM_ADDR", ":9090")

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cli *CLI, command string)
	}{
		{
			name: "search from env",
			args: []string{"search", "-t", "KJV", "love", "one", "another"},
			check: func(t *testing.T, cli *CLI, command string) {
				if command != "search <query>" {
					t.Errorf("command = %q", command)
				}
				if cli.Search.Dir != dir || cli.Search.Limit != 10 || len(cli.Search.Query) != 3 {
					t.Errorf("search = %+v", cli.Search)
				}
			},
		},
		{
			name: "serve defaults",
			args: []string{"serve", "--allowed-origin", "https://a.example", "--log-format", "json"},
			check: func(t *testing.T, cli *CLI, command string) {
				s := cli.Serve
				if s.Addr != ":9090" || s.Preload != 2 || s.MaxChapters != 10 || s.CacheSize != 4 {
					t.Errorf("serve = %+v", s)
				}
				if len(s.AllowedOrigins) != 1 || cli.LogFormat != "json" {
					t.Errorf("origins = %v, log format = %q", s.AllowedOrigins, cli.LogFormat)
				}
			},
		},
		{
			name: "read default reference",
			args: []string{"read", "KJV"},
			check: func(t *testing.T, cli *CLI, command string) {
				if cli.Read.Reference != "Genesis 1" || cli.Read.Chapters != 1 {
					t.Errorf("read = %+v", cli.Read)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Name("versestream"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
			if err != nil {
				t.Fatal(err)
			}
			ctx, err := parser.Parse(tt.args)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			tt.check(t, &cli, ctx.Command())
		})
	}
}

func TestSetupLogging(t *testing.T) {
	if err := setupLogging("debug", "json"); err != nil {
		t.Errorf("valid settings: %v", err)
	}
	if err := setupLogging("loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := setupLogging("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	setupLogging("info", "text")
}
