package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

// ReportVersion is the report format version.
const ReportVersion = "1.0.0"

// Status values for reports.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Report is the outcome of one build run.
type Report struct {
	ReportVersion string              `json:"report_version"`
	Status        string              `json:"status"`
	Output        string              `json:"output"`
	StartedAt     time.Time           `json:"started_at"`
	Duration      time.Duration       `json:"duration_ns"`
	Translations  []TranslationReport `json:"translations"`
	Skipped       []Skipped           `json:"skipped,omitempty"`
}

// TranslationReport is the diagnostic summary of one produced translation.
type TranslationReport struct {
	File       string                        `json:"file"`
	Format     string                        `json:"format"`
	Code       string                        `json:"code"`
	Name       string                        `json:"name,omitempty"`
	Language   string                        `json:"language,omitempty"`
	Stats      scripture.Stats               `json:"stats"`
	Warnings   []scripture.Warning           `json:"warnings,omitempty"`
	ByKind     map[scripture.WarningKind]int `json:"warnings_by_kind,omitempty"`
	SourceSize int64                         `json:"source_size"`
	OutputSize int64                         `json:"output_size"`
	Reduction  float64                       `json:"reduction_percent"`
	IndexTerms int                           `json:"index_terms,omitempty"`
	Artifacts  []artifact.LockEntry          `json:"artifacts"`
}

// Skipped records a dataset that produced nothing.
type Skipped struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Produced returns the number of translations written.
func (r *Report) Produced() int { return len(r.Translations) }

// ToJSON serializes the report.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Line is the one-line summary printed for a translation.
func (t *TranslationReport) Line() string {
	return fmt.Sprintf("%s: %d books, %d chapters, %d verses, %d warnings, %s -> %s (%.1f%% smaller)",
		t.Code, t.Stats.Books, t.Stats.Chapters, t.Stats.Verses, len(t.Warnings),
		humanize.Bytes(uint64(t.SourceSize)), humanize.Bytes(uint64(t.OutputSize)), t.Reduction)
}

// Summary is the closing line of a run.
func (r *Report) Summary() string {
	return fmt.Sprintf("built %d of %d datasets into %s (%d skipped) in %s",
		len(r.Translations), len(r.Translations)+len(r.Skipped), r.Output, len(r.Skipped),
		r.Duration.Round(time.Millisecond))
}
