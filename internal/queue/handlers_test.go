package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestNewMux_RoutesByType(t *testing.T) {
	var got []byte
	mux := NewMux(map[string]asynq.Handler{
		TypeUsageRecord: asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			got = task.Payload()
			return nil
		}),
	})

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TypeUsageRecord, []byte(`{"model":"m"}`)))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"model":"m"}`, string(got))
}

func TestNewMux_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	mux := NewMux(map[string]asynq.Handler{
		TypeUsageRecord: asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }),
	})

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TypeUsageRecord, nil))
	assert.ErrorIs(t, err, boom)
}

func TestNewMux_UnknownType(t *testing.T) {
	mux := NewMux(nil)
	err := mux.ProcessTask(context.Background(), asynq.NewTask("nope", nil))
	assert.Error(t, err)
}
