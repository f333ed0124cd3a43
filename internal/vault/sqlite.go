package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite implements Vault on a single SQLite database file. Blobs and
// folders live in two tables keyed by their cleaned vault path.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite vault at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		path       TEXT PRIMARY KEY,
		folder     TEXT NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blobs_folder ON blobs(folder);

	CREATE TABLE IF NOT EXISTS folders (
		path       TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Read(ctx context.Context, p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	var data string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE path = ?`, c).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	if err != nil {
		return "", err
	}
	return data, nil
}

func (s *SQLite) Write(ctx context.Context, p, data string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blobs (path, folder, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		c, path.Dir(c), data, now)
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, p string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE path = ?`, c)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return nil
}

func (s *SQLite) MkdirAll(ctx context.Context, p string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for dir := c; dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO folders (path, created_at) VALUES (?, ?)`, dir, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, folder string) ([]string, error) {
	c, err := Clean(folder)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM blobs WHERE folder = ? ORDER BY path`, c)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
