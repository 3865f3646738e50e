package usage

import (
	"context"
	"fmt"
)

type enqueuer interface {
	EnqueueUsageRecord(ctx context.Context, payload any) error
}

// QueueRecorder hands records to the background worker instead of writing inline.
type QueueRecorder struct {
	queue enqueuer
}

func NewQueueRecorder(q enqueuer) *QueueRecorder {
	return &QueueRecorder{queue: q}
}

func (r *QueueRecorder) Record(ctx context.Context, rec Record) error {
	if err := r.queue.EnqueueUsageRecord(ctx, rec); err != nil {
		return fmt.Errorf("queue usage record: %w", err)
	}
	return nil
}
