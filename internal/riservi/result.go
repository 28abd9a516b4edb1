// ABOUTME: Result type for backend replies plus extraction helpers.
// ABOUTME: Covers error text, booking id candidates and availability slots.

package riservi

import "fmt"

// Result is a decoded backend reply. Successful replies usually wrap their
// payload under a "response" key; failures carry "error" or "errors".
type Result map[string]any

// ErrText returns the backend's error message, or "" for a success reply.
func (r Result) ErrText() string {
	for _, key := range []string{"error", "errors"} {
		switch v := r[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any, []any:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// idCandidates is the ordered list of keys that may carry the booking id.
var idCandidates = []string{"id", "bookingId", "reservationId"}

// ReservationID extracts the booking id, trying the candidate keys at the top
// level first and then under the "response" wrapper. Numeric ids are
// stringified.
func (r Result) ReservationID() string {
	if id := idFrom(r); id != "" {
		return id
	}
	if inner, ok := r["response"].(map[string]any); ok {
		return idFrom(inner)
	}
	return ""
}

func idFrom(m map[string]any) string {
	for _, key := range idCandidates {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// Slot is one availability entry for the requested date.
type Slot struct {
	Time      string
	Available bool
}

// AvailabilitySlots returns the slot list from an availability reply,
// tolerating one or two levels of "response" nesting.
func (r Result) AvailabilitySlots() []Slot {
	raw := slotList(r)
	if raw == nil {
		if inner, ok := r["response"].(map[string]any); ok {
			raw = slotList(inner)
			if raw == nil {
				if deeper, ok := inner["response"].(map[string]any); ok {
					raw = slotList(deeper)
				}
			}
		}
	}
	if raw == nil {
		return nil
	}

	slots := make([]Slot, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		slot := Slot{}
		slot.Time = firstString(entry, "time", "hour", "dateTime", "date")
		switch v := entry["available"].(type) {
		case bool:
			slot.Available = v
		default:
			// Entries without an explicit flag are offered slots.
			slot.Available = true
		}
		slots = append(slots, slot)
	}
	return slots
}

func slotList(m map[string]any) []any {
	for _, key := range []string{"availability", "availableSlots", "slots"} {
		if list, ok := m[key].([]any); ok {
			return list
		}
	}
	return nil
}
