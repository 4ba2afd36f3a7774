// Package manifest defines the build manifest: which raw datasets to
// normalize, how to identify each translation, and which artifacts to emit.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/search"
	"github.com/FocuswithJustin/versestream/internal/validation"
)

// Manifest is the complete build configuration.
type Manifest struct {
	// Output is the artifact directory. Relative paths are resolved against
	// the manifest's directory.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// Compress writes .json.xz artifacts instead of plain .json.
	Compress bool `json:"compress,omitempty" yaml:"compress,omitempty"`

	// SQLite additionally exports each translation as <CODE>.sqlite.
	SQLite bool `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`

	// Search configures the search index built for every translation.
	Search SearchConfig `json:"search,omitempty" yaml:"search,omitempty"`

	// Aliases are extra book names shared by all translations.
	Aliases []canon.Alias `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// Translations lists the datasets to build.
	Translations []Translation `json:"translations" yaml:"translations"`
}

// SearchConfig defines search index parameters. Zero values select defaults.
type SearchConfig struct {
	Disabled      bool    `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	MinTermLength int     `json:"min_term_length,omitempty" yaml:"min_term_length,omitempty"`
	Threshold     float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Options converts the config for search.Build. An empty language lets the
// index use the translation's own language.
func (c SearchConfig) Options(language string) search.Options {
	return search.Options{MinTermLength: c.MinTermLength, Threshold: c.Threshold, Language: language}
}

// Translation is one dataset to build. Code, Name and Language override the
// values declared by the dataset; Code is required for nested datasets, which
// carry no metadata, and defaults to the upper-cased file stem there.
type Translation struct {
	File     string        `json:"file" yaml:"file"`
	Code     string        `json:"code,omitempty" yaml:"code,omitempty"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
	Language string        `json:"language,omitempty" yaml:"language,omitempty"`
	Aliases  []canon.Alias `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// DefaultCode returns the upper-cased file stem, used when a nested dataset
// has no code.
func (t Translation) DefaultCode() string {
	base := filepath.Base(t.File)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.ToUpper(base)
}

// Lookup builds the book-name table for t from the shared and per-translation
// aliases.
func (m *Manifest) Lookup(t Translation) (*canon.Lookup, error) {
	aliases := make([]canon.Alias, 0, len(m.Aliases)+len(t.Aliases))
	aliases = append(aliases, m.Aliases...)
	aliases = append(aliases, t.Aliases...)
	return canon.NewLookup(aliases...)
}

// Load loads a manifest from a file and resolves relative paths against the
// file's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("manifest", path)
		}
		return nil, errors.NewIO("read manifest", path, err)
	}
	m, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	m.resolvePaths(filepath.Dir(path))
	return m, nil
}

// Parse parses manifest data. Files ending in .json are decoded as JSON;
// everything else as YAML, which is a superset.
func Parse(data []byte, filename string) (*Manifest, error) {
	var m Manifest
	if strings.HasSuffix(filename, ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &errors.ParseError{Format: "manifest", Path: filename, Message: err.Error(), Err: err}
		}
	} else if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &errors.ParseError{Format: "manifest", Path: filename, Message: err.Error(), Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FromFiles builds a manifest for ad-hoc builds from the command line.
func FromFiles(output string, files ...string) *Manifest {
	m := &Manifest{Output: output}
	for _, f := range files {
		m.Translations = append(m.Translations, Translation{File: f})
	}
	return m
}

// Validate reports every problem in the manifest in one error.
func (m *Manifest) Validate() error {
	var errs []string

	if len(m.Translations) == 0 {
		errs = append(errs, "no translations listed")
	}
	if m.Search.MinTermLength < 0 {
		errs = append(errs, "search.min_term_length must not be negative")
	}
	if m.Search.Threshold < 0 || m.Search.Threshold > 1 {
		errs = append(errs, "search.threshold must be between 0 and 1")
	}
	for _, a := range m.Aliases {
		if !canon.IsValid(a.Book) {
			errs = append(errs, fmt.Sprintf("alias %q: book %d is not a canonical id", a.Name, a.Book))
		}
	}

	codes := make(map[string]int)
	for i, t := range m.Translations {
		label := fmt.Sprintf("translations[%d]", i)
		if t.File == "" {
			errs = append(errs, label+": file is required")
		}
		if t.Code != "" {
			if err := validation.ValidateCode(t.Code); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", label, err))
			}
			if prev, ok := codes[t.Code]; ok {
				errs = append(errs, fmt.Sprintf("%s: code %s already used by translations[%d]", label, t.Code, prev))
			}
			codes[t.Code] = i
		}
		for _, a := range t.Aliases {
			if !canon.IsValid(a.Book) {
				errs = append(errs, fmt.Sprintf("%s: alias %q: book %d is not a canonical id", label, a.Name, a.Book))
			}
		}
	}

	if len(errs) > 0 {
		return errors.NewValidation("manifest", strings.Join(errs, "; "))
	}
	return nil
}

func (m *Manifest) resolvePaths(base string) {
	if m.Output != "" && !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(base, m.Output)
	}
	for i := range m.Translations {
		if f := m.Translations[i].File; f != "" && !filepath.IsAbs(f) {
			m.Translations[i].File = filepath.Join(base, f)
		}
	}
}
