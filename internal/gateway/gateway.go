// ABOUTME: Core inbound pipeline tying dedupe, sessions, assistant and dispatch together.
// ABOUTME: One unit of work per inbound message, serialized per conversation.

package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mesabot/mesa-gateway/internal/assistant"
	"github.com/mesabot/mesa-gateway/internal/dedupe"
	"github.com/mesabot/mesa-gateway/internal/session"
	"github.com/mesabot/mesa-gateway/internal/store"
)

// InboundMessage is one user message arriving from a chat channel.
type InboundMessage struct {
	ConversationID string
	MessageID      string
	Channel        string
	Sender         string
	Text           string
}

// Deliverer sends outbound chunks back to the user's channel.
type Deliverer interface {
	Deliver(ctx context.Context, conversationID string, chunks []string) error
}

// Asker is the assistant call surface the gateway needs.
type Asker interface {
	Ask(ctx context.Context, req assistant.Request) (string, error)
}

// Looper runs an assistant reply through extraction and dispatch.
type Looper interface {
	Run(ctx context.Context, conversationID, assistantReply string) ([]string, error)
}

// ErrorReporter notifies the operator about failed units of work. May be nil.
type ErrorReporter interface {
	ReportError(ctx context.Context, conversationID string, err error)
}

// Ledger persists message traffic. May be nil.
type Ledger interface {
	AppendMessage(ctx context.Context, msg store.Message) error
}

// Gateway processes inbound messages end to end.
type Gateway struct {
	sessions  *session.Registry
	tracker   *dedupe.Tracker
	asker     Asker
	loop      Looper
	deliverer Deliverer
	ledger    Ledger
	reporter  ErrorReporter
	logger    *slog.Logger
}

// New creates a Gateway. ledger and reporter may be nil.
func New(sessions *session.Registry, tracker *dedupe.Tracker, asker Asker, loop Looper, deliverer Deliverer, ledger Ledger, reporter ErrorReporter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		sessions:  sessions,
		tracker:   tracker,
		asker:     asker,
		loop:      loop,
		deliverer: deliverer,
		ledger:    ledger,
		reporter:  reporter,
		logger:    logger.With("component", "gateway"),
	}
}

// HandleInbound accepts one inbound message. Duplicates and empty messages
// are dropped; everything else is queued on the conversation's session and
// processed in arrival order.
func (g *Gateway) HandleInbound(ctx context.Context, msg InboundMessage) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	if g.tracker != nil && g.tracker.Seen(msg.Channel+"/"+msg.ConversationID, msg.MessageID) {
		g.logger.Debug("dropping duplicate message",
			"conversation_id", msg.ConversationID, "message_id", msg.MessageID)
		return
	}

	g.appendLedger(ctx, msg.ConversationID, store.DirectionInbound, msg.Text)

	g.sessions.Enqueue(ctx, msg.ConversationID, func(ctx context.Context) {
		g.process(ctx, msg)
	})
}

// process is one unit of work. Failures are logged and reported, and the
// conversation is always left idle with no pending reservation.
func (g *Gateway) process(ctx context.Context, msg InboundMessage) {
	defer g.sessions.EndReservation(msg.ConversationID)

	reply, err := g.asker.Ask(ctx, assistant.Request{
		ConversationID: msg.ConversationID,
		Prompt:         msg.Text,
		ContactPhone:   msg.Sender,
	})
	if err != nil {
		g.fail(ctx, msg.ConversationID, err)
		return
	}

	chunks, err := g.loop.Run(ctx, msg.ConversationID, reply)
	if err != nil {
		g.fail(ctx, msg.ConversationID, err)
		return
	}
	if len(chunks) == 0 {
		return
	}

	for _, chunk := range chunks {
		g.appendLedger(ctx, msg.ConversationID, store.DirectionOutbound, chunk)
	}
	if err := g.deliverer.Deliver(ctx, msg.ConversationID, chunks); err != nil {
		g.logger.Error("delivery failed", "conversation_id", msg.ConversationID, "error", err)
	}
}

func (g *Gateway) fail(ctx context.Context, conversationID string, err error) {
	g.logger.Error("unit of work failed", "conversation_id", conversationID, "error", err)
	if g.reporter != nil {
		g.reporter.ReportError(ctx, conversationID, err)
	}
}

func (g *Gateway) appendLedger(ctx context.Context, conversationID string, dir store.Direction, text string) {
	if g.ledger == nil {
		return
	}
	err := g.ledger.AppendMessage(ctx, store.Message{
		ConversationID: conversationID,
		Direction:      dir,
		Text:           text,
	})
	if err != nil {
		g.logger.Warn("ledger append failed", "conversation_id", conversationID, "error", err)
	}
}
