package baseline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"registry-federation/internal/addition"
	"registry-federation/internal/baseline/migrations"
)

// SQLite stores the baseline as one row per record, ordered by position.
type SQLite struct {
	db        *sql.DB
	namespace string
}

// OpenSQLite opens the database at path, runs pending migrations and
// returns a Store. path may be ":memory:".
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps a ":memory:" database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, namespace: Namespace}, nil
}

// NewSQLiteFromDB wraps an existing, already migrated connection.
func NewSQLiteFromDB(db *sql.DB) *SQLite {
	return &SQLite{db: db, namespace: Namespace}
}

func (s *SQLite) Load(ctx context.Context) ([]addition.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM additions WHERE namespace = ? ORDER BY position`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("loading baseline: %w", err)
	}
	defer rows.Close()

	out := []addition.Record{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning baseline row: %w", err)
		}
		var rec addition.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decoding baseline row: %w", err)
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating baseline rows: %w", err)
	}
	return out, nil
}

// Save replaces the stored baseline in a single transaction.
func (s *SQLite) Save(ctx context.Context, records []addition.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning baseline save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM additions WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clearing baseline: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO additions (namespace, position, record) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing baseline insert: %w", err)
	}
	defer stmt.Close()

	pos := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding baseline record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.namespace, pos, string(raw)); err != nil {
			return fmt.Errorf("inserting baseline record: %w", err)
		}
		pos++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing baseline: %w", err)
	}
	return nil
}

// CheckSchema reports whether the schema is at the latest migration.
func (s *SQLite) CheckSchema() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
