package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a session or message does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator for conversations.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]SessionSummary, error)

	// AppendMessage stores msg at the end of the session, creating the
	// session if it does not exist yet.
	AppendMessage(ctx context.Context, sessionID string, msg *Message) error
	// AppendTurn stores a user message and its reply together; either both
	// are stored or neither is.
	AppendTurn(ctx context.Context, sessionID string, user, reply *Message) error
	LoadMessages(ctx context.Context, sessionID string) ([]Message, error)
	SetGrade(ctx context.Context, sessionID string, messageID int64, grade int) error

	LoadContextThreshold(ctx context.Context, sessionID string) (int, error)
	SetContextThreshold(ctx context.Context, sessionID string, threshold int) error

	Close() error
}

// Config holds session storage configuration.
type Config struct {
	Enabled bool   `mapstructure:"enabled"` // false keeps sessions in memory only
	Path    string `mapstructure:"path"`    // database path, empty for the data dir default
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// GetDataDir returns the XDG data directory for tierchat.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "tierchat"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "tierchat"), nil
}

// GetDBPath returns the path to the sessions database.
func GetDBPath(cfg Config) (string, error) {
	if cfg.Path != "" {
		return cfg.Path, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "sessions.db"), nil
}

// NewStore creates a Store based on the configuration.
// If sessions are disabled, returns an in-memory store.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(cfg)
}
