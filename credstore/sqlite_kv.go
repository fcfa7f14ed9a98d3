package credstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var _ KV = (*SQLiteKV)(nil)

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteKV stores values in a single SQLite table
type SQLiteKV struct {
	pool *sqlitex.Pool
	path string
	log  zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path. The caller must Close it.
func OpenSQLite(path string, log zerolog.Logger) (*SQLiteKV, error) {
	if path == "" {
		return nil, fmt.Errorf("credstore: sqlite path is required")
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("credstore: opening %s: %w", path, err)
	}

	log = log.With().Str("component", "credstore").Logger()
	log.Debug().Str("path", path).Msg("sqlite store opened")

	return &SQLiteKV{pool: pool, path: path, log: log}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("credstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, createKVTable, nil); err != nil {
		return fmt.Errorf("credstore: create schema: %w", err)
	}
	return nil
}

func (kv *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	conn, err := kv.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("credstore: take: %w", err)
	}
	defer kv.pool.Put(conn)

	var (
		value string
		found bool
	)
	err = sqlitex.Execute(conn, "SELECT value FROM kv WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("credstore: get %s: %w", key, err)
	}
	return value, found, nil
}

func (kv *SQLiteKV) SetMany(ctx context.Context, values map[string]string) (err error) {
	conn, err := kv.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: take: %w", err)
	}
	defer kv.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	for k, v := range values {
		err = sqlitex.Execute(conn,
			"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			&sqlitex.ExecOptions{Args: []any{k, v}},
		)
		if err != nil {
			return fmt.Errorf("credstore: set %s: %w", k, err)
		}
	}
	return nil
}

func (kv *SQLiteKV) Delete(ctx context.Context, keys ...string) (err error) {
	conn, err := kv.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: take: %w", err)
	}
	defer kv.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	for _, k := range keys {
		if err = sqlitex.Execute(conn, "DELETE FROM kv WHERE key = ?", &sqlitex.ExecOptions{Args: []any{k}}); err != nil {
			return fmt.Errorf("credstore: delete %s: %w", k, err)
		}
	}
	return nil
}

// Close closes the connection pool
func (kv *SQLiteKV) Close() error {
	if err := kv.pool.Close(); err != nil {
		return fmt.Errorf("credstore: closing %s: %w", kv.path, err)
	}
	return nil
}
