package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Collections the host UI persists documents into.
const (
	CollectionPolls         = "polls"
	CollectionPresentations = "presentations"
)

var ErrInvalidJSON = errors.New("document is not valid JSON")

// Store is a named JSON document store: the relay core never touches it,
// only the host-facing HTTP API does.
type Store struct {
	db *sql.DB
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps document writes from stalling concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		name TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, name)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("document store ready", zap.String("path", path))
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SanitizeName strips everything but letters, digits, underscore, and
// hyphen, so a document name can never escape its collection.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// List returns the collection's document names in lexical order.
func (s *Store) List(collection string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT name FROM documents WHERE collection = ? ORDER BY name ASC",
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Get returns the document body, or nil when it does not exist.
func (s *Store) Get(collection, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRow(
		"SELECT body FROM documents WHERE collection = ? AND name = ?",
		collection, name,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Put stores a document, replacing any previous body under the same name.
// The body must be valid JSON; the store never interprets it beyond that.
func (s *Store) Put(collection, name string, body []byte) error {
	if !json.Valid(body) {
		return ErrInvalidJSON
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (collection, name, body, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection, name) DO UPDATE SET
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP
	`, collection, name, string(body))
	return err
}

// Delete removes a document, reporting whether it existed.
func (s *Store) Delete(collection, name string) (bool, error) {
	res, err := s.db.Exec(
		"DELETE FROM documents WHERE collection = ? AND name = ?",
		collection, name,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Count(collection string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM documents WHERE collection = ?",
		collection,
	).Scan(&count)
	return count, err
}
