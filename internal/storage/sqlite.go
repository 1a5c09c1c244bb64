package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parleyhq/parley/internal/core"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens a SQLite database at the given path, creating the
// parent directory if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Multiple session goroutines write through this handle; a single
	// connection serializes them without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteStore) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		app_context TEXT NOT NULL DEFAULT '',
		participants_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'idle',
		status_reason TEXT NOT NULL DEFAULT '',
		max_turns INTEGER NOT NULL,
		cost_json TEXT NOT NULL DEFAULT '{}',
		consensus_json TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		role TEXT NOT NULL,
		turn INTEGER NOT NULL,
		content TEXT NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		is_agreement INTEGER NOT NULL DEFAULT 0,
		interjection_json TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession upserts the session record. Messages are persisted
// separately via SaveMessage.
func (s *SQLiteStore) SaveSession(session *core.Session) error {
	participantsJSON, err := json.Marshal(session.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	costJSON, err := json.Marshal(session.Cost)
	if err != nil {
		return fmt.Errorf("failed to marshal cost: %w", err)
	}

	var consensusJSON *string
	if session.Consensus != nil {
		data, err := json.Marshal(session.Consensus)
		if err != nil {
			return fmt.Errorf("failed to marshal consensus: %w", err)
		}
		str := string(data)
		consensusJSON = &str
	}

	query := `
	INSERT INTO sessions (id, question, app_context, participants_json, status, status_reason, max_turns, cost_json, consensus_json, created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		status_reason = excluded.status_reason,
		cost_json = excluded.cost_json,
		consensus_json = excluded.consensus_json,
		updated_at = excluded.updated_at,
		completed_at = excluded.completed_at
	`

	_, err = s.db.Exec(query,
		session.ID,
		session.Question,
		session.AppContext,
		string(participantsJSON),
		session.Status,
		session.StatusReason,
		session.MaxTurns,
		string(costJSON),
		consensusJSON,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// SaveMessage persists one transcript message.
func (s *SQLiteStore) SaveMessage(session *core.Session, message *core.Message) error {
	var interjectionJSON *string
	if message.Interjection != nil {
		data, err := json.Marshal(message.Interjection)
		if err != nil {
			return fmt.Errorf("failed to marshal interjection: %w", err)
		}
		str := string(data)
		interjectionJSON = &str
	}

	query := `
	INSERT OR REPLACE INTO messages (id, session_id, participant_id, role, turn, content, reasoning, is_agreement, interjection_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		message.ID,
		session.ID,
		message.ParticipantID,
		message.Role,
		message.Turn,
		message.Content,
		message.Reasoning,
		message.IsAgreement,
		interjectionJSON,
		message.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetSession retrieves a session with its full transcript.
func (s *SQLiteStore) GetSession(id string) (*core.Session, error) {
	query := `
	SELECT id, question, app_context, participants_json, status, status_reason, max_turns, cost_json, consensus_json, created_at, updated_at, completed_at
	FROM sessions
	WHERE id = ?
	`

	var session core.Session
	var participantsJSON, costJSON string
	var consensusJSON sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&session.ID,
		&session.Question,
		&session.AppContext,
		&participantsJSON,
		&session.Status,
		&session.StatusReason,
		&session.MaxTurns,
		&costJSON,
		&consensusJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
		&completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal([]byte(participantsJSON), &session.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(costJSON), &session.Cost); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cost: %w", err)
	}
	if consensusJSON.Valid {
		var consensus core.Consensus
		if err := json.Unmarshal([]byte(consensusJSON.String), &consensus); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consensus: %w", err)
		}
		session.Consensus = &consensus
	}
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}

	messages, err := s.getMessages(id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages

	return &session, nil
}

func (s *SQLiteStore) getMessages(sessionID string) ([]*core.Message, error) {
	query := `
	SELECT id, participant_id, role, turn, content, reasoning, is_agreement, interjection_json, created_at
	FROM messages
	WHERE session_id = ?
	ORDER BY turn ASC
	`

	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*core.Message
	for rows.Next() {
		var message core.Message
		var interjectionJSON sql.NullString

		err := rows.Scan(
			&message.ID,
			&message.ParticipantID,
			&message.Role,
			&message.Turn,
			&message.Content,
			&message.Reasoning,
			&message.IsAgreement,
			&interjectionJSON,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if interjectionJSON.Valid {
			var interjection core.Interjection
			if err := json.Unmarshal([]byte(interjectionJSON.String), &interjection); err != nil {
				return nil, fmt.Errorf("failed to unmarshal interjection: %w", err)
			}
			message.Interjection = &interjection
		}

		messages = append(messages, &message)
	}

	return messages, rows.Err()
}

// ListSessions returns session summaries, newest first.
func (s *SQLiteStore) ListSessions(limit, offset int) ([]*core.SessionSummary, error) {
	query := `
	SELECT s.id, s.question, s.status, s.cost_json, s.created_at,
		   (SELECT COUNT(*) FROM messages WHERE session_id = s.id) as message_count
	FROM sessions s
	ORDER BY s.created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*core.SessionSummary
	for rows.Next() {
		var summary core.SessionSummary
		var costJSON string

		err := rows.Scan(
			&summary.ID,
			&summary.Question,
			&summary.Status,
			&costJSON,
			&summary.CreatedAt,
			&summary.MessageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}

		var cost core.CostSnapshot
		if err := json.Unmarshal([]byte(costJSON), &cost); err == nil {
			summary.TotalCost = cost.TotalCost
		}

		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// DeleteSession deletes a session and its messages.
func (s *SQLiteStore) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
