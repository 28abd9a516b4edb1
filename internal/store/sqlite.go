// ABOUTME: SQLite implementation of the ledger store using modernc.org/sqlite.
// ABOUTME: Provides message/reservation persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens or creates the ledger database at path. The schema is
// created automatically and parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers from blocking the message-append path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("ledger store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			reservation_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			date TEXT NOT NULL,
			party_size INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reservations_conversation
			ON reservations(conversation_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendMessage writes one ledger entry. A missing ID or CreatedAt is filled in.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Direction), msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit entries for a conversation, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, direction, text, created_at
		 FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, id LIMIT ?
		 ) ORDER BY created_at ASC, id`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var dir string
		if err := rows.Scan(&m.ID, &m.ConversationID, &dir, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Direction = Direction(dir)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordReservation writes one audit record.
func (s *SQLiteStore) RecordReservation(ctx context.Context, res Reservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations (id, conversation_id, reservation_id, operation, date, party_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.ConversationID, res.ReservationID, res.Operation, res.Date, res.PartySize, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording reservation: %w", err)
	}
	return nil
}

// ReservationsByConversation returns a conversation's audit records, oldest first.
func (s *SQLiteStore) ReservationsByConversation(ctx context.Context, conversationID string) ([]Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, reservation_id, operation, date, party_size, created_at
		 FROM reservations WHERE conversation_id = ?
		 ORDER BY created_at ASC, id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.ReservationID, &r.Operation, &r.Date, &r.PartySize, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
