// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

const (
	// DefaultSQLiteTable is the table holding token records.
	DefaultSQLiteTable = "tokens"

	sqliteBackendName = "sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStorage stores records in a local SQLite database, one row per key.
// It suits processes that share tokens on one machine without a Redis server.
type SQLiteStorage struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at path and
// ensures the token table exists. Use ":memory:" for an ephemeral database.
func NewSQLiteStorage(path string, opts ...Option) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	o := buildOptions(opts)
	if !tableNamePattern.MatchString(o.table) {
		return nil, fmt.Errorf("invalid table name %q", o.table)
	}

	connStr := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db, table: o.table, logger: o.logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`, s.table))
	return err
}

// Store implements TokenStorage.
func (s *SQLiteStorage) Store(ctx context.Context, key string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &apierrors.StorageError{Backend: sqliteBackendName, Op: "encode", Key: key, Cause: err}
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().Unix()); err != nil {
		return &apierrors.StorageError{Backend: sqliteBackendName, Op: "write", Key: key, Cause: err}
	}
	return nil
}

// Get implements TokenStorage.
func (s *SQLiteStorage) Get(ctx context.Context, key string) (*Record, bool) {
	var data string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE key = ?`, s.table), key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false
		}
		return degrade(s.logger, sqliteBackendName, "read", key, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return degrade(s.logger, sqliteBackendName, "decode", key, err)
	}
	return &rec, true
}

// Delete implements TokenStorage.
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table), key); err != nil {
		return &apierrors.StorageError{Backend: sqliteBackendName, Op: "delete", Key: key, Cause: err}
	}
	return nil
}

// ClearAll implements TokenStorage.
func (s *SQLiteStorage) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return &apierrors.StorageError{Backend: sqliteBackendName, Op: "clear", Cause: err}
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, s.table))
	if err != nil {
		return nil, &apierrors.StorageError{Backend: sqliteBackendName, Op: "list", Cause: err}
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &apierrors.StorageError{Backend: sqliteBackendName, Op: "list", Cause: err}
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
