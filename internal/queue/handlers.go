package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// NewMux routes each task type to its handler and logs every run.
func NewMux(handlers map[string]asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(logTask)
	for taskType, h := range handlers {
		mux.Handle(taskType, h)
	}
	return mux
}

func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		attrs := []any{"type", t.Type(), "duration_ms", time.Since(start).Milliseconds()}
		if err != nil {
			slog.Warn("task failed", append(attrs, "error", err)...)
			return err
		}
		slog.Debug("task done", attrs...)
		return nil
	})
}
