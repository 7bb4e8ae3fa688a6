package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements RecordStore on a SQLite database.
// Expired keys read as empty and are purged on next access.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hash_fields (
		key TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (key, field)
	);

	CREATE TABLE IF NOT EXISTS key_expiry (
		key TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SizeBytes returns the on-disk size of the database including WAL side files.
func (s *SQLiteStore) SizeBytes() (int64, error) {
	return DiskUsageBytes(s.path)
}

// purgeExpired deletes key if its expiry has passed.
func (s *SQLiteStore) purgeExpired(ctx context.Context, key string) error {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM key_expiry WHERE key = ?`, key).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if s.now().UnixNano() < expiresAt {
		return nil
	}
	return s.Del(ctx, key)
}

// HSet sets field in the hash at key. An existing expiry is kept.
func (s *SQLiteStore) HSet(ctx context.Context, key, field, value string) error {
	if err := s.purgeExpired(ctx, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hash_fields (key, field, value) VALUES (?, ?, ?)
		 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
		key, field, value,
	)
	return err
}

// HMGet returns one entry per field, nil where the field is absent.
func (s *SQLiteStore) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	if err := s.purgeExpired(ctx, key); err != nil {
		return nil, err
	}

	args := make([]interface{}, 0, len(fields)+1)
	args = append(args, key)
	for _, f := range fields {
		args = append(args, f)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fields)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM hash_fields WHERE key = ? AND field IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]string, len(fields))
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		found[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*string, len(fields))
	for i, f := range fields {
		if v, ok := found[f]; ok {
			out[i] = &v
		}
	}
	return out, nil
}

// HGetAll returns every field of the hash at key.
func (s *SQLiteStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := s.purgeExpired(ctx, key); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM hash_fields WHERE key = ?`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		out[field] = value
	}
	return out, rows.Err()
}

// Del removes key, its fields and its expiry in one transaction.
func (s *SQLiteStore) Del(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hash_fields WHERE key = ?`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM key_expiry WHERE key = ?`, key); err != nil {
		return err
	}
	return tx.Commit()
}

// Expire sets a time to live on key. Keys without fields are left alone, as in Redis.
func (s *SQLiteStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Del(ctx, key)
	}
	if err := s.purgeExpired(ctx, key); err != nil {
		return err
	}
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM hash_fields WHERE key = ?)`, key,
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO key_expiry (key, expires_at) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at`,
		key, s.now().Add(ttl).UnixNano(),
	)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
