// ABOUTME: HTTP client for the Riservi partner reservation API.
// ABOUTME: Backend-reported failures become error-shaped results, never Go errors.

package riservi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production partner endpoint.
const DefaultBaseURL = "https://partners.riservi.com/api/v1/restaurants"

// Client talks to the reservation backend. All operations return a Result;
// HTTP-level and backend-reported failures are folded into the error-object
// shape so the dispatcher has a single path for both.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// Config holds client construction parameters.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a Client. Zero-value config fields get defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		hc:      &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger.With("component", "riservi"),
	}
}

// CheckAvailability queries open slots for a date ("YYYY-MM-DD HH:mm") and
// party size.
func (c *Client) CheckAvailability(ctx context.Context, date string, partySize int) Result {
	path := fmt.Sprintf("/availability/available-slots/%s/%d", url.PathEscape(date), partySize)
	return c.do(ctx, http.MethodGet, path, nil)
}

// CreateReservation submits a new booking. fields is the decoded command
// payload; recognized fields are mapped onto the wire format and
// operation-specific extras are passed through.
func (c *Client) CreateReservation(ctx context.Context, fields map[string]any) Result {
	payload := buildCreatePayload(fields)
	c.logger.Debug("creating reservation", "date", payload["date"], "party_size", payload["partySize"])
	return c.do(ctx, http.MethodPost, "/bookings/", payload)
}

// GetReservation fetches a booking by id.
func (c *Client) GetReservation(ctx context.Context, id string) Result {
	return c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(id), nil)
}

// UpdateReservation changes date and party size on an existing booking.
// The backend requires the full payload on PUT, so the current booking is
// fetched first and its contact and seating fields carried forward.
func (c *Client) UpdateReservation(ctx context.Context, id, date string, partySize int) Result {
	current := c.GetReservation(ctx, id)
	if msg := current.ErrText(); msg != "" {
		return current
	}
	existing, _ := current["response"].(map[string]any)
	if existing == nil {
		return Result{"error": "no se pudo obtener la reserva para modificar"}
	}

	payload := map[string]any{
		"date":      date,
		"partySize": partySize,
	}
	if phone := dinerPhone(existing); phone != "" {
		payload["reservePhone"] = phone
	}
	if notes := firstString(existing, "eventNotes", "notes"); notes != "" {
		payload["notes"] = notes
	}
	for _, key := range []string{"shift", "preferredArea"} {
		if v, ok := existing[key]; ok {
			payload[key] = v
		}
	}
	if v, ok := existing["sendEmailToDiner"].(bool); ok {
		payload["sendEmailToDiner"] = v
	} else {
		payload["sendEmailToDiner"] = true
	}

	return c.do(ctx, http.MethodPut, "/bookings/"+url.PathEscape(id), payload)
}

// CancelReservation cancels a booking by id.
func (c *Client) CancelReservation(ctx context.Context, id string) Result {
	return c.do(ctx, http.MethodPatch, "/bookings/"+url.PathEscape(id)+"/cancel", map[string]any{})
}

// ConfirmReservation confirms a booking by id.
func (c *Client) ConfirmReservation(ctx context.Context, id string) Result {
	return c.do(ctx, http.MethodPatch, "/bookings/"+url.PathEscape(id)+"/confirm", map[string]any{})
}

// do executes one request and decodes the JSON body. Any failure, transport
// or backend, comes back as an error-shaped Result.
func (c *Client) do(ctx context.Context, method, path string, body any) Result {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Result{"error": fmt.Sprintf("encoding request: %v", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Result{"error": fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "method", method, "path", path, "error", err)
		return Result{"error": err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{"error": fmt.Sprintf("reading response: %v", err)}
	}

	var decoded map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			decoded = nil
		}
	}

	if resp.StatusCode >= 400 {
		// The backend reports business errors with JSON bodies; hand those
		// through so the assistant can explain them to the user.
		if decoded != nil {
			r := Result(decoded)
			if r.ErrText() == "" {
				r["error"] = fmt.Sprintf("backend returned status %d", resp.StatusCode)
			}
			return r
		}
		return Result{"error": fmt.Sprintf("backend returned status %d", resp.StatusCode)}
	}

	if decoded == nil {
		decoded = map[string]any{}
	}
	return Result(decoded)
}

// createFields maps command payload keys copied verbatim when present.
var createFields = []string{
	"date", "reserveName", "reserveLastname", "reserveEmail", "reservePhone",
	"reserveBirthday", "preferredLang", "notes", "utmParams", "promoCode",
	"eventTypeId", "eventSourceId", "tags",
}

// createExtraFields are slot-variant extras forwarded untouched; suggested
// availability variants carry these and the booking must repeat them.
var createExtraFields = []string{
	"shift", "slotId", "turno", "turn", "availabilityId", "tableId", "area",
	"service", "serviceId", "time", "hour", "dateTime", "bookingToken",
}

// buildCreatePayload maps the assistant's command fields onto the booking
// wire format. A "no smokers" preferred area is folded into notes because the
// backend has no such area.
func buildCreatePayload(fields map[string]any) map[string]any {
	payload := map[string]any{}
	for _, key := range createFields {
		if v, ok := fields[key]; ok && v != nil && v != "" {
			payload[key] = v
		}
	}
	if ps, ok := fields["partySize"]; ok {
		payload["partySize"] = ps
	}

	if area, _ := fields["preferredArea"].(string); area != "" {
		if strings.Contains(strings.ToLower(area), "no fumadores") {
			notes, _ := payload["notes"].(string)
			if notes != "" {
				notes += " "
			}
			payload["notes"] = notes + area
		} else {
			payload["preferredArea"] = area
		}
	}

	for _, key := range createExtraFields {
		if v, ok := fields[key]; ok {
			if _, exists := payload[key]; !exists {
				payload[key] = v
			}
		}
	}
	return payload
}

// dinerPhone digs the E.164 phone out of a booking payload.
func dinerPhone(booking map[string]any) string {
	if diner, ok := booking["diner"].(map[string]any); ok {
		if phone, ok := diner["phone"].(map[string]any); ok {
			if s, _ := phone["e164Format"].(string); s != "" {
				return s
			}
		}
	}
	s, _ := booking["reservePhone"].(string)
	return s
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, _ := m[key].(string); s != "" {
			return s
		}
	}
	return ""
}
