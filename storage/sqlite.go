package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	_ "modernc.org/sqlite"
)

// SQLiteDriver is the database/sql driver name registered by modernc.org/sqlite.
const SQLiteDriver = "sqlite"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenSQLite opens a SQLite database through the pure Go driver.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open(SQLiteDriver, dsn)
	if err != nil {
		return nil, scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "open sqlite", err, map[string]any{"dsn": dsn})
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteKV persists keys in a two column table.
type SQLiteKV struct {
	db    *sql.DB
	table string
}

func NewSQLiteKV(db *sql.DB, table string) (*SQLiteKV, error) {
	if table == "" {
		table = "scriptdesk_kv"
	}
	if !tableName.MatchString(table) {
		return nil, scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "invalid sqlite table name", nil, map[string]any{"table": table})
	}
	return &SQLiteKV{db: db, table: table}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	q := fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, s.table)
	var v string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "read "+key, err, map[string]any{"key": key})
	}
	return []byte(v), true, nil
}

func (s *SQLiteKV) Put(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (k, v, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, q, key, string(value), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "write "+key, err, map[string]any{"key": key})
	}
	return nil
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "delete "+key, err, map[string]any{"key": key})
	}
	return nil
}

func (s *SQLiteKV) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "sqlite store not configured", nil, nil)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "ensure sqlite schema", err, map[string]any{"table": s.table})
	}
	return nil
}
