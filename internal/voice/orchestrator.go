package voice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nikhilbhutani/voicerelay/internal/agent"
	"github.com/nikhilbhutani/voicerelay/internal/session"
	"github.com/nikhilbhutani/voicerelay/internal/usage"
)

// ReplyGenerator produces the assistant's answer for a turn.
type ReplyGenerator interface {
	Generate(ctx context.Context, history []session.Message, current string) agent.Reply
}

// Speaker streams synthesized speech for a reply to the client.
type Speaker interface {
	Stream(ctx context.Context, text string, client Client)
}

const defaultTurnQueue = 8

// Orchestrator answers the qualified turns of one connection in arrival order.
type Orchestrator struct {
	generator ReplyGenerator
	speaker   Speaker
	client    Client
	connID    string
	turns     chan Turn
}

func NewOrchestrator(gen ReplyGenerator, speaker Speaker, client Client, connID string, queueSize int) *Orchestrator {
	if queueSize <= 0 {
		queueSize = defaultTurnQueue
	}
	return &Orchestrator{
		generator: gen,
		speaker:   speaker,
		client:    client,
		connID:    connID,
		turns:     make(chan Turn, queueSize),
	}
}

// Submit queues a turn without blocking. It is a TurnSink.
func (o *Orchestrator) Submit(t Turn) bool {
	select {
	case o.turns <- t:
		return true
	default:
		return false
	}
}

// Run handles queued turns one at a time until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.turns:
			o.Handle(ctx, t)
		}
	}
}

// Handle generates, sends and speaks the reply to a single turn.
func (o *Orchestrator) Handle(ctx context.Context, t Turn) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("reply pipeline panic", "conn_id", o.connID, "turn", t.Seq, "panic", r)
		}
	}()

	if o.client.Closed() {
		return
	}

	history := []session.Message{{Role: session.RoleUser, Text: t.Text}}
	reply := o.generator.Generate(usage.WithEndpoint(ctx, usage.EndpointVoice), history, t.Text)
	if ctx.Err() != nil {
		slog.Debug("reply cancelled", "conn_id", o.connID, "turn", t.Seq)
		return
	}

	if err := o.client.Send(ctx, aiResponseEvent(reply.Text, t.Seq)); err != nil {
		if !errors.Is(err, ErrClientClosed) && ctx.Err() == nil {
			slog.Warn("send ai_response", "conn_id", o.connID, "turn", t.Seq, "error", err)
		}
		return
	}

	o.speaker.Stream(ctx, reply.Text, o.client)
}
