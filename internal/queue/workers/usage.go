package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/voicerelay/internal/usage"
)

// UsageWorker drains queued usage records into a synchronous recorder.
type UsageWorker struct {
	recorder usage.Recorder
}

func NewUsageWorker(rec usage.Recorder) *UsageWorker {
	return &UsageWorker{recorder: rec}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var rec usage.Record
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		// Malformed payloads will never succeed.
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.recorder.Record(ctx, rec); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	slog.Debug("usage recorded", "provider", rec.Provider, "model", rec.Model, "total_tokens", rec.TotalTokens)
	return nil
}
