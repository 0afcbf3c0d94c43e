package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Schema for the sessions database.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT,
    summary TEXT,
    context_threshold INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    turn_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    tip TEXT,
    grade INTEGER NOT NULL DEFAULT 1,
    is_final BOOLEAN NOT NULL DEFAULT TRUE,
    tier TEXT,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_sequence ON messages(session_id, sequence);
`

// NewSQLiteStore opens (or creates) the sessions database.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dbPath, err := GetDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("get db path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, cfg: cfg}, nil
}

// schemaVersion is the current schema version.
// - Fresh databases get the full schema from `schema` const and start at this version
// - Existing databases run migrations to reach this version
// Increment when adding new migrations.
const schemaVersion = 2

// migration represents a schema migration.
type migration struct {
	version     int
	description string
	up          func(db *sql.DB) error
}

// migrations upgrade databases created before a schema change.
// The base `schema` const always contains the FULL current schema.
var migrations = []migration{
	{
		version:     1,
		description: "add message tip and grade columns",
		up: func(db *sql.DB) error {
			return addColumns(db,
				"ALTER TABLE messages ADD COLUMN tip TEXT",
				"ALTER TABLE messages ADD COLUMN grade INTEGER NOT NULL DEFAULT 1",
			)
		},
	},
	{
		version:     2,
		description: "add per-session context threshold",
		up: func(db *sql.DB) error {
			return addColumns(db,
				"ALTER TABLE sessions ADD COLUMN context_threshold INTEGER NOT NULL DEFAULT 0",
			)
		},
	},
}

func addColumns(db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			if !isDuplicateColumnError(err) {
				return err
			}
		}
	}
	return nil
}

// initSchema initializes the database schema and runs any pending migrations.
// Optimized for the common case: schema already current = single SELECT query.
func initSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion)
	if err == nil && currentVersion >= schemaVersion {
		return nil
	}
	return initSchemaFull(db, err, currentVersion)
}

// initSchemaFull handles schema creation and migrations.
func initSchemaFull(db *sql.DB, versionErr error, currentVersion int) error {
	// Existing tables are left alone by IF NOT EXISTS, so a pre-migration
	// database keeps its old columns until the migrations run.
	var tableCount int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='sessions'
	`).Scan(&tableCount); err != nil {
		return fmt.Errorf("check sessions table: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if versionErr != nil && (errors.Is(versionErr, sql.ErrNoRows) || strings.Contains(versionErr.Error(), "no such table")) {
		if tableCount > 0 {
			currentVersion = 0
		} else {
			currentVersion = schemaVersion
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentVersion); err != nil {
			return fmt.Errorf("insert initial version: %w", err)
		}
	} else if versionErr != nil {
		return fmt.Errorf("get current version: %w", versionErr)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := m.up(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := db.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
			return fmt.Errorf("update version to %d: %w", m.version, err)
		}
	}
	return nil
}

// isDuplicateColumnError checks if an error is due to a column already existing.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") ||
		strings.Contains(errStr, "already exists")
}

// Create inserts a new session.
func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, summary, context_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(sess.Name), nullString(sess.Summary), sess.Threshold, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. A missing session yields (nil, nil).
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, summary, context_threshold, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var sess Session
	var name, summary sql.NullString
	err := row.Scan(&sess.ID, &name, &summary, &sess.Threshold, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Name = name.String
	sess.Summary = summary.String
	return &sess, nil
}

// Rename sets the display name of a session.
func (s *SQLiteStore) Rename(ctx context.Context, id, name string) error {
	return s.updateSession(ctx, id, "name = ?", nullString(strings.TrimSpace(name)))
}

// Delete removes a session and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	// Foreign key cascade handles messages
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.summary, s.context_threshold, s.created_at, s.updated_at,
		       COUNT(m.id), COALESCE(SUM(m.input_tokens), 0), COALESCE(SUM(m.output_tokens), 0)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC
		LIMIT ? OFFSET ?`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var name, summary sql.NullString
		if err := rows.Scan(&sum.ID, &name, &summary, &sum.Threshold, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.MessageCount, &sum.InputTokens, &sum.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.Name = name.String
		sum.Summary = summary.String
		results = append(results, sum)
	}
	return results, rows.Err()
}

// AppendMessage adds a message to the end of a session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg *Message) error {
	return s.appendMessages(ctx, sessionID, msg)
}

// AppendTurn stores a user message and its reply in one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, user, reply *Message) error {
	return s.appendMessages(ctx, sessionID, user, reply)
}

func (s *SQLiteStore) appendMessages(ctx context.Context, sessionID string, msgs ...*Message) error {
	// Use transaction for atomic sequence allocation
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if err := appendTx(ctx, tx, sessionID, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func appendTx(ctx context.Context, tx *sql.Tx, sessionID string, msg *Message) error {
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var summary sql.NullString
	if msg.Role == llm.RoleUser {
		summary = nullString(TruncateSummary(msg.Content))
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, summary, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    summary = COALESCE(sessions.summary, excluded.summary),
		    updated_at = excluded.updated_at`,
		sessionID, summary, msg.CreatedAt, msg.CreatedAt); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM messages WHERE session_id = ?`, sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("get max sequence: %w", err)
	}
	msg.Sequence = 0
	if maxSeq.Valid {
		msg.Sequence = int(maxSeq.Int64) + 1
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, turn_id, role, content, tip, grade, is_final, tier,
		                      input_tokens, output_tokens, created_at, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.TurnID, string(msg.Role), msg.Content, nullString(msg.Tip), msg.Grade, msg.IsFinal,
		nullString(msg.Tier), msg.InputTokens, msg.OutputTokens, msg.CreatedAt, msg.Sequence)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	return nil
}

// LoadMessages returns every message of a session in order.
func (s *SQLiteStore) LoadMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, turn_id, role, content, tip, grade, is_final, tier,
		       input_tokens, output_tokens, created_at, sequence
		FROM messages
		WHERE session_id = ?
		ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var tip, tier sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.TurnID, &msg.Role, &msg.Content, &tip, &msg.Grade,
			&msg.IsFinal, &tier, &msg.InputTokens, &msg.OutputTokens, &msg.CreatedAt, &msg.Sequence); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Tip = tip.String
		msg.Tier = tier.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SetGrade changes the relevance grade of one message.
func (s *SQLiteStore) SetGrade(ctx context.Context, sessionID string, messageID int64, grade int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE messages SET grade = ? WHERE id = ? AND session_id = ?", grade, messageID, sessionID)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	return nil
}

// LoadContextThreshold returns the session's threshold, or 0 for an unknown session.
func (s *SQLiteStore) LoadContextThreshold(ctx context.Context, sessionID string) (int, error) {
	var threshold int
	err := s.db.QueryRowContext(ctx,
		"SELECT context_threshold FROM sessions WHERE id = ?", sessionID).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load threshold: %w", err)
	}
	return threshold, nil
}

// SetContextThreshold stores the session's threshold.
func (s *SQLiteStore) SetContextThreshold(ctx context.Context, sessionID string, threshold int) error {
	return s.updateSession(ctx, sessionID, "context_threshold = ?", threshold)
}

func (s *SQLiteStore) updateSession(ctx context.Context, id, set string, value any) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+set+", updated_at = ? WHERE id = ?", value, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
