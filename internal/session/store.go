// Package session keeps per-session conversation history for the HTTP chat endpoint.
package session

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrInvalidID = errors.New("session id is required")

// Message is one immutable entry in a conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Store is an append-only log of messages keyed by session id.
// Get on an unknown session returns an empty history, not an error.
type Store interface {
	Get(ctx context.Context, id string) ([]Message, error)
	// Append adds msgs in order and returns the full history afterwards.
	Append(ctx context.Context, id string, msgs ...Message) ([]Message, error)
	Evict(ctx context.Context, id string) error
}

// Retention bounds how much history a Store keeps. Zero values mean unbounded.
type Retention struct {
	TTL         time.Duration // idle time before a session expires
	MaxSessions int           // oldest-accessed sessions are dropped past this count
	MaxMessages int           // per-session sliding window
}

func trimWindow(msgs []Message, max int) []Message {
	if max > 0 && len(msgs) > max {
		return msgs[len(msgs)-max:]
	}
	return msgs
}
