package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DBRecorder inserts records into llm_usage_logs.
type DBRecorder struct {
	db execer
}

// NewDBRecorder accepts a *pgxpool.Pool or anything with the same Exec.
func NewDBRecorder(db execer) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var session *string
	if rec.SessionID != "" {
		session = &rec.SessionID
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO llm_usage_logs (provider, model, input_tokens, output_tokens, total_tokens, cost_usd, latency_ms, endpoint, session_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.CostUSD, rec.LatencyMs, rec.Endpoint, session, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert LLM usage log: %w", err)
	}
	return nil
}
