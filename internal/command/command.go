// ABOUTME: Command is the structured instruction an assistant embeds in free text.
// ABOUTME: Defines the recognized kind set and typed access to common fields.

package command

import (
	"strings"
)

// Kind identifies a reservation operation requested by the assistant.
// The wire values are fixed and versionless; unknown kinds are ignored.
type Kind string

const (
	KindAvailabilityCheck  Kind = "#DISPONIBLE#"
	KindCreateReservation  Kind = "#RESERVA#"
	KindModifyReservation  Kind = "#MODIFICAR#"
	KindCancelReservation  Kind = "#CANCELAR#"
	KindConfirmReservation Kind = "#CONFIRMAR#"
)

// recognizedKinds is the closed set of kinds the dispatcher understands.
var recognizedKinds = map[Kind]bool{
	KindAvailabilityCheck:  true,
	KindCreateReservation:  true,
	KindModifyReservation:  true,
	KindCancelReservation:  true,
	KindConfirmReservation: true,
}

// Recognized reports whether k is a kind the dispatcher can execute.
func Recognized(k Kind) bool {
	return recognizedKinds[Kind(strings.TrimSpace(string(k)))]
}

// Command is one structured instruction extracted from an assistant reply.
// Fields holds the full decoded payload so operation-specific extras
// (shift, slotId, bookingToken, ...) survive the trip to the backend.
type Command struct {
	Kind   Kind
	Fields map[string]any
}

// Date returns the "date" field, if present.
func (c *Command) Date() string {
	s, _ := c.Fields["date"].(string)
	return s
}

// SetDate overwrites the "date" field (used after year coercion).
func (c *Command) SetDate(s string) {
	c.Fields["date"] = s
}

// PartySize returns the "partySize" field as an int, or 0.
// JSON numbers decode as float64, so both forms are accepted.
func (c *Command) PartySize() int {
	switch v := c.Fields["partySize"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// ReservationID returns the "id" field, if present.
func (c *Command) ReservationID() string {
	s, _ := c.Fields["id"].(string)
	return s
}
