// Package store persists embedding vectors in SQLite, keyed by a hash of the
// model name and input text. It never stores tab titles, URLs or bodies.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	dim INTEGER NOT NULL,
	embedding BLOB NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_model ON embedding_cache(model);
`

// sqlite limits bound parameters per statement
const maxKeysPerQuery = 500

type Store struct {
	DB   *sql.DB
	Path string
}

type Stats struct {
	Path    string         `json:"path"`
	Entries int            `json:"entries"`
	ByModel map[string]int `json:"by_model"`
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{DB: db, Path: dbPath}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// GetMany returns the stored vectors for keys. Missing keys are absent from
// the result.
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string][]float64, error) {
	found := make(map[string][]float64, len(keys))

	for start := 0; start < len(keys); start += maxKeysPerQuery {
		chunk := keys[start:min(start+maxKeysPerQuery, len(keys))]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}

		rows, err := s.DB.QueryContext(ctx,
			`SELECT key, embedding FROM embedding_cache WHERE key IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			var key string
			var blob []byte
			if err := rows.Scan(&key, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			found[key] = BlobToFloat64Slice(blob)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return found, nil
}

// PutMany writes entries in one transaction, replacing existing keys.
func (s *Store) PutMany(ctx context.Context, model string, entries map[string][]float64) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (key, model, dim, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, vec := range entries {
		if _, err := stmt.ExecContext(ctx, key, model, len(vec), Float64SliceToBlob(vec), now); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT model, COUNT(*) FROM embedding_cache GROUP BY model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &Stats{Path: s.Path, ByModel: map[string]int{}}
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, err
		}
		st.ByModel[model] = n
		st.Entries += n
	}
	return st, rows.Err()
}

// Clear removes every cached vector, or only those of model when it is set.
func (s *Store) Clear(ctx context.Context, model string) (int64, error) {
	var res sql.Result
	var err error
	if model == "" {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM embedding_cache`)
	} else {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM embedding_cache WHERE model = ?`, model)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
