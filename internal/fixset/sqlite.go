package fixset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS fixed_records(
	record_id TEXT PRIMARY KEY,
	fixed_at  INTEGER NOT NULL
);`

// SQLite is a Set persisted in a local SQLite database so fixed records
// survive restarts of the CLI.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("fixset: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("fixset: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fixset: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fixset: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Mark(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fixed_records(record_id, fixed_at) VALUES(?, ?)`,
		id, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("fixset: mark %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) Has(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM fixed_records WHERE record_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("fixset: lookup %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_id FROM fixed_records ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("fixset: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("fixset: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
