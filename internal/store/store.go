// ABOUTME: Store interface and record types for the conversation ledger.
// ABOUTME: Persists message traffic and completed reservation operations.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Direction marks which way a ledger message travelled.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one ledger entry of user or bot traffic.
type Message struct {
	ID             string
	ConversationID string
	Direction      Direction
	Text           string
	CreatedAt      time.Time
}

// Reservation is an audit record of a completed backend operation.
type Reservation struct {
	ID             string
	ConversationID string
	ReservationID  string
	Operation      string
	Date           string
	PartySize      int
	CreatedAt      time.Time
}

// Store persists the conversation ledger and reservation audit trail.
type Store interface {
	AppendMessage(ctx context.Context, msg Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	RecordReservation(ctx context.Context, res Reservation) error
	ReservationsByConversation(ctx context.Context, conversationID string) ([]Reservation, error)
	Close() error
}
