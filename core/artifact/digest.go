package artifact

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/versestream/core/errors"
)

// LockFileName is the per-run digest manifest written next to the artifacts.
const LockFileName = "manifest.lock.json"

// LockVersion is the current lock file schema version.
const LockVersion = 1

// Digest returns the hex BLAKE3-256 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("artifact", path)
		}
		return "", errors.NewIO("open", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.NewIO("hash", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestBytes returns the hex BLAKE3-256 digest of data.
func DigestBytes(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// LockEntry records one artifact. Path is relative to the lock file's directory.
type LockEntry struct {
	Translation string `json:"translation"`
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	BLAKE3      string `json:"blake3"`
}

// Lock lists every artifact produced by a run.
type Lock struct {
	Version   int         `json:"version"`
	Artifacts []LockEntry `json:"artifacts"`
}

// Add digests the file at dir/rel and appends it to the lock.
func (l *Lock) Add(dir, translation, kind, rel string) (LockEntry, error) {
	path := filepath.Join(dir, rel)
	info, err := os.Stat(path)
	if err != nil {
		return LockEntry{}, errors.NewIO("stat", path, err)
	}
	sum, err := Digest(path)
	if err != nil {
		return LockEntry{}, err
	}
	e := LockEntry{Translation: translation, Kind: kind, Path: filepath.ToSlash(rel), Size: info.Size(), BLAKE3: sum}
	l.Artifacts = append(l.Artifacts, e)
	return e, nil
}

// WriteLock writes the lock into dir with entries sorted by path.
func WriteLock(dir string, l *Lock) error {
	l.Version = LockVersion
	sort.Slice(l.Artifacts, func(i, j int) bool { return l.Artifacts[i].Path < l.Artifacts[j].Path })
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(dir, LockFileName), append(data, '\n'))
}

// ReadLock reads the lock file from dir.
func ReadLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("lock file", path)
		}
		return nil, errors.NewIO("read", path, err)
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, &errors.ParseError{Format: "lock file", Path: path, Message: err.Error(), Err: err}
	}
	if l.Version != LockVersion {
		return nil, errors.NewUnsupported("lock file version", "expected version 1")
	}
	return &l, nil
}

// Mismatch describes an artifact whose current digest differs from the lock.
type Mismatch struct {
	Path     string
	Expected string
	Actual   string // empty when the file is missing
}

// Verify recomputes every digest recorded in dir's lock file.
func Verify(dir string) ([]Mismatch, error) {
	l, err := ReadLock(dir)
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for _, e := range l.Artifacts {
		sum, err := Digest(filepath.Join(dir, filepath.FromSlash(e.Path)))
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				out = append(out, Mismatch{Path: e.Path, Expected: e.BLAKE3})
				continue
			}
			return nil, err
		}
		if sum != e.BLAKE3 {
			out = append(out, Mismatch{Path: e.Path, Expected: e.BLAKE3, Actual: sum})
		}
	}
	return out, nil
}
