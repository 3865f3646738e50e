// Package usage records the cost of every LLM call the relay makes.
package usage

import (
	"context"
	"time"

	"github.com/nikhilbhutani/voicerelay/internal/llm"
)

const (
	EndpointVoice = "ws"
	EndpointChat  = "chat"
)

// Record is one row of the usage ledger.
type Record struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	Endpoint     string    `json:"endpoint"`
	SessionID    string    `json:"session_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recorder persists usage records. Implementations may be asynchronous.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// FromResponse builds a record for resp, taking endpoint and session from ctx.
func FromResponse(ctx context.Context, resp *llm.ChatResponse) Record {
	return Record{
		Provider:     resp.Provider,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.TotalTokens,
		CostUSD:      resp.CostUSD,
		LatencyMs:    resp.LatencyMs,
		Endpoint:     EndpointFromContext(ctx),
		SessionID:    SessionFromContext(ctx),
		CreatedAt:    time.Now().UTC(),
	}
}

type Noop struct{}

func (Noop) Record(context.Context, Record) error { return nil }

type contextKey string

const (
	endpointKey contextKey = "endpoint"
	sessionKey  contextKey = "session"
)

func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey, endpoint)
}

func EndpointFromContext(ctx context.Context) string {
	e, _ := ctx.Value(endpointKey).(string)
	return e
}

func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

func SessionFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey).(string)
	return s
}
