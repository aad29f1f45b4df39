package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Cache is a SQLite-backed store of per-document fragment outputs.
type Cache struct {
	db *sql.DB
}

// Entry is one document's cached evaluation: the content key it was
// produced under, the per-ordinal substitution outputs, and the file
// dependencies with the mtimes observed at store time.
type Entry struct {
	Key     string
	Outputs []string
	Deps    []Dep
}

// Open creates or opens the cache database at path, applying pragmas and
// schema. Idempotent - safe to call on an existing database.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to cache: %w", err)
	}

	// SQLite allows one writer at a time; parallel document builds
	// queue on the busy timeout instead of failing.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("applying cache schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	return nil
}

// Lookup returns the cached entry for a document path when its key
// matches and every recorded dependency is unchanged on disk. Returns
// nil on any miss.
func (c *Cache) Lookup(ctx context.Context, docPath, key string) (*Entry, error) {
	var id int64
	var storedKey string
	err := c.db.QueryRowContext(ctx,
		`SELECT id, key FROM documents WHERE path = ?`, docPath,
	).Scan(&id, &storedKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if storedKey != key {
		return nil, nil
	}

	deps, err := c.readDeps(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Fresh(deps) {
		return nil, nil
	}

	outputs, err := c.readOutputs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Entry{Key: key, Outputs: outputs, Deps: deps}, nil
}

func (c *Cache) readOutputs(ctx context.Context, docID int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT output FROM outputs WHERE document_id = ? ORDER BY ordinal ASC`, docID)
	if err != nil {
		return nil, fmt.Errorf("cache outputs: %w", err)
	}
	defer rows.Close()

	outputs := []string{}
	for rows.Next() {
		var out string
		if err := rows.Scan(&out); err != nil {
			return nil, fmt.Errorf("cache outputs: %w", err)
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache outputs: %w", err)
	}
	return outputs, nil
}

func (c *Cache) readDeps(ctx context.Context, docID int64) ([]Dep, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT path, mtime_ns FROM deps WHERE document_id = ? ORDER BY path ASC`, docID)
	if err != nil {
		return nil, fmt.Errorf("cache deps: %w", err)
	}
	defer rows.Close()

	var deps []Dep
	for rows.Next() {
		var d Dep
		if err := rows.Scan(&d.Path, &d.MTimeNS); err != nil {
			return nil, fmt.Errorf("cache deps: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache deps: %w", err)
	}
	return deps, nil
}

// Store replaces the cached entry for a document path. The write is
// transactional: a concurrent reader sees either the old entry or the
// new one, never a mix.
func (c *Cache) Store(ctx context.Context, docPath string, e *Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, docPath); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (path, key) VALUES (?, ?)`, docPath, e.Key)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}

	for ordinal, out := range e.Outputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outputs (document_id, ordinal, output) VALUES (?, ?, ?)`,
			id, ordinal, out); err != nil {
			return fmt.Errorf("cache store: %w", err)
		}
	}
	for _, d := range e.Deps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deps (document_id, path, mtime_ns) VALUES (?, ?, ?)`,
			id, d.Path, d.MTimeNS); err != nil {
			return fmt.Errorf("cache store: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
