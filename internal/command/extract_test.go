// ABOUTME: Tests for command extraction from assistant replies.
// ABOUTME: Covers tagged blocks, loose JSON, nested payloads, and non-matches.

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_TaggedBlock(t *testing.T) {
	text := `¡Perfecto! Déjame revisar.
[RESERVA]{"type":"#RESERVA#","date":"2025-06-01 20:00","partySize":4}[/RESERVA]`

	cmd, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, KindCreateReservation, cmd.Kind)
	assert.Equal(t, "2025-06-01 20:00", cmd.Date())
	assert.Equal(t, 4, cmd.PartySize())
}

func TestExtract_APIEnvelope(t *testing.T) {
	text := `[API]{"type":"#DISPONIBLE#","date":"2025-06-01 20:00","partySize":2}[/API]`

	cmd, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, KindAvailabilityCheck, cmd.Kind)
}

func TestExtract_JSONPrefixedTag(t *testing.T) {
	text := `[JSON-CANCELAR]{"type":"#CANCELAR#","id":"abc123"}[/JSON-CANCELAR]`

	cmd, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, KindCancelReservation, cmd.Kind)
	assert.Equal(t, "abc123", cmd.ReservationID())
}

func TestExtract_MalformedTagFallsThroughToLooseJSON(t *testing.T) {
	// The tagged block is broken JSON; the loose object later in the text
	// must still be found.
	text := `[RESERVA]{"type": "#RESERVA#", broken[/RESERVA]
some text {"type":"#MODIFICAR#","id":"r-9","date":"2025-07-01 21:00","partySize":2} more`

	cmd, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, KindModifyReservation, cmd.Kind)
	assert.Equal(t, "r-9", cmd.ReservationID())
}

func TestExtract_LooseJSONWithNestedBraces(t *testing.T) {
	text := `{"type":"#RESERVA#","date":"2025-06-01 20:00","partySize":4,"utmParams":{"source":"wa"}}`

	cmd, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, KindCreateReservation, cmd.Kind)
	assert.Contains(t, cmd.Fields, "utmParams")
}

func TestExtract_UnknownKindIgnored(t *testing.T) {
	text := `[API]{"type":"#BORRAR-TODO#","id":"x"}[/API]`

	_, ok := Extract(text)
	assert.False(t, ok)
}

func TestExtract_PlainTextReturnsNone(t *testing.T) {
	_, ok := Extract("Nos vemos mañana a las 20:00, ¡gracias!")
	assert.False(t, ok)
}

func TestExtract_FirstRecognizedWins(t *testing.T) {
	text := `[DISPONIBLE]{"type":"#DISPONIBLE#","date":"2025-06-01 20:00","partySize":2}[/DISPONIBLE]
[RESERVA]{"type":"#RESERVA#","date":"2025-06-01 20:00","partySize":2}[/RESERVA]`

	cmd, ok := Extract(text)
	require.True(t, ok)
	// API tag order is fixed: RESERVA is scanned before DISPONIBLE only via
	// tag priority; the first tag whose payload parses wins.
	assert.Equal(t, KindCreateReservation, cmd.Kind)
}

func TestExtractAny_NestedPayload(t *testing.T) {
	payload := map[string]any{
		"status": "ok",
		"response": map[string]any{
			"output": `[CONFIRMAR]{"type":"#CONFIRMAR#","id":"r-42"}[/CONFIRMAR]`,
		},
	}

	cmd, ok := ExtractAny(payload)
	require.True(t, ok)
	assert.Equal(t, KindConfirmReservation, cmd.Kind)
	assert.Equal(t, "r-42", cmd.ReservationID())
}

func TestExtractAny_NoMatch(t *testing.T) {
	_, ok := ExtractAny(map[string]any{"a": "text", "b": []any{"more text"}})
	assert.False(t, ok)
}

func TestStripBlocks(t *testing.T) {
	text := "Hola!\n[RESERVA]{\"type\":\"#RESERVA#\"}[/RESERVA]\nTe confirmo enseguida."

	clean := StripBlocks(text)
	assert.NotContains(t, clean, "[RESERVA]")
	assert.Contains(t, clean, "Hola!")
	assert.Contains(t, clean, "Te confirmo enseguida.")
}

func TestStripBlocks_NoBlocks(t *testing.T) {
	assert.Equal(t, "plain text", StripBlocks("plain text"))
}
