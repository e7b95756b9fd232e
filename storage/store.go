// Package storage provides SQLite-backed persistence for sessions,
// folders, and API credentials.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tricoder.app/models"
)

// Collection names. Every record is an opaque JSON blob keyed by its id,
// so import/export can round-trip records without interpreting them.
const (
	CollectionSessions = "sessions"
	CollectionFolders  = "folders"
)

// Store provides SQLite-backed persistence.
type Store struct {
	db    *sql.DB
	creds *credentialCipher
}

// Open opens the SQLite database at dbPath and creates tables if they
// don't exist. keyPath holds the at-rest encryption key for credentials
// and is created on first use.
func Open(dbPath, keyPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	cipher, err := loadCredentialCipher(keyPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load credential key: %w", err)
	}

	return &Store{db: db, creds: cipher}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// GetAll returns every record in a collection as raw JSON.
func (s *Store) GetAll(collection string) ([]json.RawMessage, error) {
	rows, err := s.db.Query(
		`SELECT data FROM records WHERE collection = ? ORDER BY updated_at ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, json.RawMessage(data))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// Get returns one record by id, or sql.ErrNoRows wrapped.
func (s *Store) Get(collection, id string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT data FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s/%s not found", collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return json.RawMessage(data), nil
}

// Put upserts one record keyed by id.
func (s *Store) Put(collection, id string, record []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO records (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(record), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// Delete removes one record by id. Deleting a missing record is not an error.
func (s *Store) Delete(collection, id string) error {
	_, err := s.db.Exec(
		`DELETE FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Clear removes every record in a collection.
func (s *Store) Clear(collection string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}

// GetSessions returns all stored sessions.
func (s *Store) GetSessions() ([]*models.Session, error) {
	raw, err := s.GetAll(CollectionSessions)
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.Session, 0, len(raw))
	for _, data := range raw {
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(id string) (*models.Session, error) {
	data, err := s.Get(CollectionSessions, id)
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// PutSession upserts a session as one unit.
func (s *Store) PutSession(sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.Put(CollectionSessions, sess.ID, data)
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(id string) error {
	return s.Delete(CollectionSessions, id)
}

// GetFolders returns all stored folders.
func (s *Store) GetFolders() ([]*models.Folder, error) {
	raw, err := s.GetAll(CollectionFolders)
	if err != nil {
		return nil, err
	}

	folders := make([]*models.Folder, 0, len(raw))
	for _, data := range raw {
		var folder models.Folder
		if err := json.Unmarshal(data, &folder); err != nil {
			return nil, fmt.Errorf("unmarshal folder: %w", err)
		}
		folders = append(folders, &folder)
	}
	return folders, nil
}

// GetFolder returns one folder by id.
func (s *Store) GetFolder(id string) (*models.Folder, error) {
	data, err := s.Get(CollectionFolders, id)
	if err != nil {
		return nil, err
	}
	var folder models.Folder
	if err := json.Unmarshal(data, &folder); err != nil {
		return nil, fmt.Errorf("unmarshal folder: %w", err)
	}
	return &folder, nil
}

// PutFolder upserts a folder with its snippets.
func (s *Store) PutFolder(folder *models.Folder) error {
	data, err := json.Marshal(folder)
	if err != nil {
		return fmt.Errorf("marshal folder: %w", err)
	}
	return s.Put(CollectionFolders, folder.ID, data)
}

// DeleteFolder removes a folder by id.
func (s *Store) DeleteFolder(id string) error {
	return s.Delete(CollectionFolders, id)
}
