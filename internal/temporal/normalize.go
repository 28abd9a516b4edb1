// ABOUTME: Normalizes and validates reservation date strings from the assistant.
// ABOUTME: Coerces hallucinated past years to the current year, rejects past dates.

package temporal

import (
	"errors"
	"fmt"
	"time"
)

// RejectionMessage is the user-facing text for an unusable date. Validation
// failures are delivered to the end user directly, never retried.
const RejectionMessage = "La fecha debe ser igual o posterior a hoy. Por favor, elegí una fecha válida."

// acceptedLayouts are tried in order. The assistant usually emits
// "YYYY-MM-DD HH:mm" but ISO-8601 variants show up too.
var acceptedLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ValidationError is a date the user must correct. It carries the message
// delivered to the user as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a user-correctable date failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NormalizedDate is a civil date-time in the operational timezone.
type NormalizedDate struct {
	t time.Time
}

// Time returns the underlying wall-clock time.
func (d NormalizedDate) Time() time.Time {
	return d.t
}

// String renders the backend wire format "YYYY-MM-DD HH:mm".
func (d NormalizedDate) String() string {
	return d.t.Format("2006-01-02 15:04")
}

// Normalizer parses and validates assistant-provided dates against a single
// operational timezone. The clock is injectable for tests.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Normalizer for loc. A nil now defaults to time.Now.
func New(loc *time.Location, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{loc: loc, now: now}
}

// Normalize parses s, silently rewrites a stale year to the current one, and
// rejects anything still in the past. The year rewrite is a business rule:
// assistants sometimes emit last year's date for "tomorrow"; correcting it is
// cheaper than bouncing the whole exchange back to the user.
func (n *Normalizer) Normalize(s string) (NormalizedDate, error) {
	parsed, err := n.parse(s)
	if err != nil {
		return NormalizedDate{}, &ValidationError{Message: RejectionMessage}
	}

	now := n.now().In(n.loc)
	if parsed.Year() < now.Year() {
		parsed = time.Date(now.Year(), parsed.Month(), parsed.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, n.loc)
	}

	if parsed.Before(now) {
		return NormalizedDate{}, &ValidationError{Message: RejectionMessage}
	}

	return NormalizedDate{t: parsed}, nil
}

func (n *Normalizer) parse(s string) (time.Time, error) {
	for _, layout := range acceptedLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}
