// ABOUTME: Bounded feedback loop between the assistant and the dispatcher.
// ABOUTME: Re-invokes the assistant with operation results until clean text remains.

package dispatch

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mesabot/mesa-gateway/internal/assistant"
	"github.com/mesabot/mesa-gateway/internal/command"
)

// DefaultMaxDepth bounds feedback rounds per inbound message.
const DefaultMaxDepth = 5

// Asker is the assistant call surface the loop needs.
type Asker interface {
	Ask(ctx context.Context, req assistant.Request) (string, error)
}

// Loop drives assistant replies through extraction and dispatch until a
// reply with no command remains, then chunks it for delivery. A misbehaving
// assistant that keeps emitting commands is cut off at maxDepth and the last
// clean text is delivered instead.
type Loop struct {
	dispatcher *Dispatcher
	asker      Asker
	maxDepth   int
	logger     *slog.Logger
}

// NewLoop creates a Loop. maxDepth <= 0 selects DefaultMaxDepth.
func NewLoop(dispatcher *Dispatcher, asker Asker, maxDepth int, logger *slog.Logger) *Loop {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		dispatcher: dispatcher,
		asker:      asker,
		maxDepth:   maxDepth,
		logger:     logger.With("component", "loop"),
	}
}

// Run processes one assistant reply for a conversation and returns the
// outbound message chunks for the user.
func (l *Loop) Run(ctx context.Context, conversationID, assistantReply string) ([]string, error) {
	lastClean := ""

	for depth := 0; ; depth++ {
		if clean := strings.TrimSpace(command.StripBlocks(assistantReply)); clean != "" {
			lastClean = clean
		}

		cmd, ok := command.Extract(assistantReply)
		if !ok {
			return Chunks(lastClean), nil
		}

		if depth >= l.maxDepth {
			l.logger.Warn("feedback depth cap reached", "conversation_id", conversationID, "depth", depth)
			return Chunks(lastClean), nil
		}

		outcome := l.dispatcher.Dispatch(ctx, conversationID, cmd)
		if outcome.Reply != "" {
			return Chunks(outcome.Reply), nil
		}

		reply, err := l.asker.Ask(ctx, assistant.Request{
			ConversationID: conversationID,
			Prompt:         outcome.Feedback,
			Nudge:          outcome.Nudge,
		})
		if err != nil {
			return Chunks(lastClean), err
		}
		assistantReply = reply
	}
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// Chunks splits text on blank-line boundaries into outbound messages,
// dropping empty pieces.
func Chunks(text string) []string {
	var out []string
	for _, piece := range blankLines.Split(text, -1) {
		piece = strings.TrimSpace(piece)
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
