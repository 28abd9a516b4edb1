// ABOUTME: Boundary types for the generative assistant: invoker interface and errors.
// ABOUTME: The assistant is a black box: prompt in, text out, fallible and slow.

package assistant

import (
	"context"
	"errors"
)

// ErrBusy is the transient "busy / conflicting run" signal from the assistant
// provider. Callers retry on it with backoff; every other error propagates
// immediately.
var ErrBusy = errors.New("assistant busy with a conflicting run")

// ErrRetriesExhausted means the busy condition never cleared within the
// configured attempt budget. It is fatal for that call.
var ErrRetriesExhausted = errors.New("assistant retries exhausted")

// IsBusy reports whether err carries the transient busy signal.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Invoker is the external generative assistant. Implementations must return
// an error wrapping ErrBusy for the transient conflicting-run condition so
// the gateway can distinguish it.
type Invoker interface {
	Invoke(ctx context.Context, conversationID, prompt string) (string, error)
}
