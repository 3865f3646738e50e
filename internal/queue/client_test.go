package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicerelay/internal/config"
)

func TestClient_EnqueueUsageRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Addr: mr.Addr()}

	c := NewClient(cfg)
	defer c.Close()

	payload := map[string]any{"provider": "gemini", "total_tokens": 12}
	require.NoError(t, c.EnqueueUsageRecord(context.Background(), payload))

	ids, err := mr.List("asynq:{" + QueueLow + "}:pending")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	msg := mr.HGet("asynq:{"+QueueLow+"}:t:"+ids[0], "msg")
	require.NotEmpty(t, msg)
	assert.Contains(t, msg, TypeUsageRecord)
	assert.Contains(t, msg, `"provider":"gemini"`)
}

func TestClient_MarshalError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewClient(config.RedisConfig{Addr: mr.Addr()})
	defer c.Close()

	err := c.EnqueueUsageRecord(context.Background(), make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}
