// Package pipeline runs the offline build: every dataset listed in a manifest
// is read, detected, normalized, indexed and written to the artifact
// directory, and each artifact's digest is recorded in the lock file.
//
// Datasets are prepared concurrently; artifacts are written in manifest order
// so the output does not depend on scheduling.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/normalize"
	"github.com/FocuswithJustin/versestream/core/scripture"
	"github.com/FocuswithJustin/versestream/core/search"
	"github.com/FocuswithJustin/versestream/internal/logging"
	"github.com/FocuswithJustin/versestream/internal/manifest"
	"github.com/FocuswithJustin/versestream/internal/validation"
)

// DefaultOutput is the artifact directory used when the manifest names none.
const DefaultOutput = "dist"

// Artifact kinds recorded in the lock file.
const (
	KindTranslation = "translation"
	KindIndex       = "index"
	KindSQLite      = "sqlite"
)

// ErrNothingProduced is returned when every dataset was skipped.
var ErrNothingProduced = stderrors.New("no translation was produced")

// Config configures a run.
type Config struct {
	Manifest *manifest.Manifest

	// Workers bounds concurrent dataset preparation (0 = CPU count).
	Workers int

	// Stdout receives one summary line per translation and a closing line.
	Stdout io.Writer
}

type job struct {
	pos   int
	entry manifest.Translation
}

// prepared is a normalized dataset awaiting its artifacts.
type prepared struct {
	pos        int
	entry      manifest.Translation
	format     normalize.Format
	result     *scripture.Result
	index      *search.Index
	sourceSize int64
	err        error
}

// Run builds every dataset in the manifest. Bad datasets are logged and
// skipped; Run fails only when nothing was produced. The report is returned
// in both cases.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	m := cfg.Manifest
	if m == nil {
		return nil, errors.NewValidation("manifest", "no manifest given")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := m.Output
	if out == "" {
		out = DefaultOutput
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	rep := &Report{ReportVersion: ReportVersion, Output: out, StartedAt: time.Now()}

	pool := NewWorkerPool[job, prepared](cfg.Workers, len(m.Translations))
	pool.Start(func(j job) prepared { return prepare(ctx, m, j) })
	for i, t := range m.Translations {
		pool.Submit(job{pos: i, entry: t})
	}
	pool.Close()

	results := make([]prepared, len(m.Translations))
	for p := range pool.Results() {
		results[p.pos] = p
	}

	lock := &artifact.Lock{}
	written := make(map[string]bool)
	for _, p := range results {
		if p.err == nil {
			p.err = ctx.Err()
		}
		if p.err != nil {
			rep.skip(p.entry.File, p.err.Error())
			continue
		}
		t := p.result.Translation
		if written[t.Code] {
			rep.skip(p.entry.File, fmt.Sprintf("translation code %s already produced by an earlier dataset", t.Code))
			continue
		}

		tr, err := write(ctx, out, m, p, lock)
		if err != nil {
			rep.skip(p.entry.File, errors.Wrapf(err, "write %s artifacts", t.Code).Error())
			continue
		}
		written[t.Code] = true
		rep.Translations = append(rep.Translations, *tr)

		for _, w := range p.result.Warnings {
			logging.DataWarning(t.Code, string(w.Kind), w.String())
		}
		logging.TranslationBuilt(t.Code, tr.Stats.Books, tr.Stats.Verses, len(tr.Warnings),
			"format", tr.Format, "reduction_percent", tr.Reduction)
		fmt.Fprintln(stdout, tr.Line())
	}

	if len(written) > 0 {
		if err := writeLock(out, lock, written); err != nil {
			return rep, err
		}
	}

	rep.Duration = time.Since(rep.StartedAt)
	fmt.Fprintln(stdout, rep.Summary())
	if len(rep.Translations) == 0 {
		rep.Status = StatusFail
		return rep, ErrNothingProduced
	}
	rep.Status = StatusPass
	return rep, nil
}

func (r *Report) skip(file, reason string) {
	r.Skipped = append(r.Skipped, Skipped{File: file, Reason: reason})
	logging.DatasetSkipped(file, reason)
}

// prepare reads and normalizes one dataset and builds its search index.
func prepare(ctx context.Context, m *manifest.Manifest, j job) prepared {
	p := prepared{pos: j.pos, entry: j.entry}
	if p.err = ctx.Err(); p.err != nil {
		return p
	}

	raw, err := readDataset(j.entry.File)
	if err != nil {
		p.err = err
		return p
	}
	p.sourceSize = int64(len(raw))

	p.format = normalize.DetectFormat(raw)
	code := j.entry.Code
	if code == "" && p.format == normalize.FormatNested {
		code = j.entry.DefaultCode()
	}
	lookup, err := m.Lookup(j.entry)
	if err != nil {
		p.err = errors.NewValidation("aliases", err.Error())
		return p
	}

	res, _, err := normalize.Normalize(raw, normalize.Options{
		Code:     code,
		Name:     j.entry.Name,
		Language: j.entry.Language,
		Lookup:   lookup,
	})
	if err != nil {
		p.err = err
		return p
	}

	t := res.Translation
	if err := validation.ValidateCode(t.Code); err != nil {
		p.err = err
		return p
	}
	if len(t.Books) == 0 {
		p.err = errors.NewValidation("dataset", "no canonical books found")
		return p
	}
	p.result = res

	if !m.Search.Disabled {
		p.index = search.Build(t, m.Search.Options(""))
	}
	return p
}

func readDataset(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("dataset", path)
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	data, err := validation.ReadLimited(f, validation.MaxFileSize)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return data, nil
}

// write emits every artifact of one translation and records their digests.
// Variants the manifest no longer asks for are removed so a library never
// resolves a stale artifact.
func write(ctx context.Context, out string, m *manifest.Manifest, p prepared, lock *artifact.Lock) (*TranslationReport, error) {
	t := p.result.Translation
	tpath := artifact.TranslationPath(out, t.Code, m.Compress)
	ipath := artifact.IndexPath(out, t.Code, m.Compress)
	spath := filepath.Join(out, t.Code+artifact.SQLiteExt)

	type output struct{ kind, path string }
	outputs := []output{{KindTranslation, tpath}}

	size, err := artifact.WriteTranslation(tpath, t)
	if err != nil {
		return nil, err
	}
	os.Remove(artifact.TranslationPath(out, t.Code, !m.Compress))

	termCount := 0
	if p.index != nil {
		if _, err := artifact.WriteIndex(ipath, p.index); err != nil {
			return nil, err
		}
		outputs = append(outputs, output{KindIndex, ipath})
		termCount = p.index.Terms()
	} else {
		os.Remove(ipath)
	}
	os.Remove(artifact.IndexPath(out, t.Code, !m.Compress))

	if m.SQLite {
		if _, err := artifact.WriteSQLite(ctx, spath, t); err != nil {
			return nil, err
		}
		outputs = append(outputs, output{KindSQLite, spath})
	} else {
		os.Remove(spath)
	}

	tr := &TranslationReport{
		File:       p.entry.File,
		Format:     p.format.String(),
		Code:       t.Code,
		Name:       t.Name,
		Language:   t.Language,
		Stats:      t.Stats(),
		Warnings:   p.result.Warnings,
		ByKind:     p.result.CountByKind(),
		SourceSize: p.sourceSize,
		OutputSize: size,
		Reduction:  artifact.SizeReduction(p.sourceSize, size),
		IndexTerms: termCount,
	}
	for _, o := range outputs {
		e, err := lock.Add(out, t.Code, o.kind, filepath.Base(o.path))
		if err != nil {
			return nil, err
		}
		tr.Artifacts = append(tr.Artifacts, e)
	}
	return tr, nil
}

// writeLock merges this run's entries with those of translations it did not
// rebuild.
func writeLock(out string, lock *artifact.Lock, rebuilt map[string]bool) error {
	if prev, err := artifact.ReadLock(out); err == nil {
		for _, e := range prev.Artifacts {
			if !rebuilt[e.Translation] {
				lock.Artifacts = append(lock.Artifacts, e)
			}
		}
	}
	return artifact.WriteLock(out, lock)
}
