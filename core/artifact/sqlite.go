package artifact

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
)

const driverName = "sqlite"

const sqliteSchema = `
	CREATE TABLE meta (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		language TEXT NOT NULL
	);
	CREATE TABLE books (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		chapters INTEGER NOT NULL
	);
	CREATE TABLE verses (
		book INTEGER NOT NULL REFERENCES books(id),
		chapter INTEGER NOT NULL,
		verse INTEGER NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (book, chapter, verse)
	) WITHOUT ROWID;
`

// BookMeta summarizes one book of a SQLite artifact.
type BookMeta struct {
	ID       int
	Name     string
	Chapters int
}

// WriteSQLite exports t as a SQLite database at path. The database is built
// under a temporary name and renamed into place.
func WriteSQLite(ctx context.Context, path string, t *scripture.Translation) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.NewIO("create directory", dir, err)
	}
	tempPath := path + ".tmp"
	os.Remove(tempPath)

	if err := writeSQLite(ctx, tempPath, t); err != nil {
		os.Remove(tempPath)
		return 0, err
	}
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return 0, errors.NewIO("rename", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.NewIO("stat", path, err)
	}
	return info.Size(), nil
}

// sqliteDSN builds a file: URI for path so that '?', '#' and '%' in
// directory or file names are escaped rather than read as URI syntax.
func sqliteDSN(path, mode string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=" + mode}
	return u.String(), nil
}

func writeSQLite(ctx context.Context, path string, t *scripture.Translation) error {
	dsn, err := sqliteDSN(path, "rwc")
	if err != nil {
		return errors.NewIO("open database", path, err)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return errors.NewIO("open database", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO meta (code, name, language) VALUES (?, ?, ?)",
		t.Code, t.Name, t.Language); err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}

	bookStmt, err := tx.PrepareContext(ctx, "INSERT INTO books (id, name, chapters) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer bookStmt.Close()
	verseStmt, err := tx.PrepareContext(ctx, "INSERT INTO verses (book, chapter, verse, text) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer verseStmt.Close()

	for _, b := range t.Books {
		if _, err := bookStmt.ExecContext(ctx, b.ID, b.Name, b.LastChapter()); err != nil {
			return fmt.Errorf("failed to insert book %d: %w", b.ID, err)
		}
		for _, c := range b.Chapters {
			for _, v := range c.Verses {
				if _, err := verseStmt.ExecContext(ctx, b.ID, c.Number, v.Number, v.Text); err != nil {
					return fmt.Errorf("failed to insert verse %d:%d:%d: %w", b.ID, c.Number, v.Number, err)
				}
			}
		}
	}
	return tx.Commit()
}

// SQLiteStore reads a SQLite translation artifact. It is safe for concurrent use.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens a SQLite artifact read-only.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("artifact", path)
		}
		return nil, errors.NewIO("stat", path, err)
	}
	dsn, err := sqliteDSN(path, "ro")
	if err != nil {
		return nil, errors.NewIO("open database", path, err)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.NewIO("open database", path, err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Meta returns the translation code, display name and language.
func (s *SQLiteStore) Meta(ctx context.Context) (code, name, language string, err error) {
	row := s.db.QueryRowContext(ctx, "SELECT code, name, language FROM meta LIMIT 1")
	if err = row.Scan(&code, &name, &language); err != nil {
		return "", "", "", errors.NewIO("read metadata", s.path, err)
	}
	return code, name, language, nil
}

// Books returns every book in canonical order.
func (s *SQLiteStore) Books(ctx context.Context) ([]BookMeta, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, chapters FROM books ORDER BY id")
	if err != nil {
		return nil, errors.NewIO("query books", s.path, err)
	}
	defer rows.Close()

	var books []BookMeta
	for rows.Next() {
		var b BookMeta
		if err := rows.Scan(&b.ID, &b.Name, &b.Chapters); err != nil {
			return nil, errors.NewIO("scan book", s.path, err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Chapter returns the verses of one chapter in order. A chapter with no
// stored verses returns an empty slice and no error.
func (s *SQLiteStore) Chapter(ctx context.Context, book, chapter int) ([]scripture.Verse, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT verse, text FROM verses WHERE book = ? AND chapter = ? ORDER BY verse", book, chapter)
	if err != nil {
		return nil, errors.NewIO("query chapter", s.path, err)
	}
	defer rows.Close()

	verses := []scripture.Verse{}
	for rows.Next() {
		var v scripture.Verse
		if err := rows.Scan(&v.Number, &v.Text); err != nil {
			return nil, errors.NewIO("scan verse", s.path, err)
		}
		verses = append(verses, v)
	}
	return verses, rows.Err()
}

// ReadAll loads the whole translation.
func (s *SQLiteStore) ReadAll(ctx context.Context) (*scripture.Translation, error) {
	t := &scripture.Translation{}
	var err error
	if t.Code, t.Name, t.Language, err = s.Meta(ctx); err != nil {
		return nil, err
	}

	books, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[int]int, len(books))
	for _, b := range books {
		index[b.ID] = len(t.Books)
		t.Books = append(t.Books, scripture.Book{ID: b.ID, Name: b.Name})
	}

	rows, err := s.db.QueryContext(ctx, "SELECT book, chapter, verse, text FROM verses ORDER BY book, chapter, verse")
	if err != nil {
		return nil, errors.NewIO("query verses", s.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var book, chapter int
		var v scripture.Verse
		if err := rows.Scan(&book, &chapter, &v.Number, &v.Text); err != nil {
			return nil, errors.NewIO("scan verse", s.path, err)
		}
		i, ok := index[book]
		if !ok {
			continue
		}
		b := &t.Books[i]
		if n := len(b.Chapters); n == 0 || b.Chapters[n-1].Number != chapter {
			b.Chapters = append(b.Chapters, scripture.Chapter{Number: chapter})
		}
		c := &b.Chapters[len(b.Chapters)-1]
		c.Verses = append(c.Verses, v)
	}
	return t, rows.Err()
}
