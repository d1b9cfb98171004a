package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/gigsmartpay/client/internal/model"
)

// Storage keys. No component outside this package reads or writes them.
const (
	keyState         = "gigsmartpay_state"
	keyChatSessionID = "job_creator_session_id"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Store is the durable local key/value mirror. It survives restarts and
// holds only the identity fragment and the chat session handle.
type Store struct {
	conn   *sql.DB
	logger *zap.Logger
}

// Open creates the store, initializing the schema if needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory failed: %w", err)
	}

	// WAL mode for durability without blocking readers. SQLite works best
	// with a single connection here.
	conn, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store failed: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, logger: logger.Named("store")}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema failed: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) get(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %q failed: %w", key, err)
	}
	return value, nil
}

func (s *Store) put(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("write %q failed: %w", key, err)
	}
	return nil
}

func (s *Store) delete(key string) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q failed: %w", key, err)
	}
	return nil
}

// SaveIdentity persists the active identity. Switching roles overwrites the
// previous identity; it is never deleted in normal flow.
func (s *Store) SaveIdentity(id model.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity failed: %w", err)
	}
	s.logger.Debug("persisting identity",
		zap.String("role", string(id.Role)), zap.String("address", id.Address))
	return s.put(keyState, string(data))
}

// Identity returns the persisted identity, or ErrNotFound if none was ever
// saved.
func (s *Store) Identity() (model.Identity, error) {
	raw, err := s.get(keyState)
	if err != nil {
		return model.Identity{}, err
	}
	var id model.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return model.Identity{}, fmt.Errorf("unmarshal identity failed: %w", err)
	}
	return id, nil
}

// SaveSessionID persists the chat session handle.
func (s *Store) SaveSessionID(sessionID string) error {
	return s.put(keyChatSessionID, sessionID)
}

// SessionID returns the persisted chat session handle, or ErrNotFound.
func (s *Store) SessionID() (string, error) {
	return s.get(keyChatSessionID)
}

// ClearSessionID removes the chat session handle so the next interaction
// starts a fresh session.
func (s *Store) ClearSessionID() error {
	return s.delete(keyChatSessionID)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}
