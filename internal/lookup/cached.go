package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Memo is the cache the lookup decorators store successful results in.
type Memo interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedWeather serves repeated questions about a city from the cache. Only
// real conditions are cached, never failure text.
type CachedWeather struct {
	client *WeatherClient
	memo   Memo
	ttl    time.Duration
}

func NewCachedWeather(client *WeatherClient, memo Memo, ttl time.Duration) *CachedWeather {
	return &CachedWeather{client: client, memo: memo, ttl: ttl}
}

func (w *CachedWeather) Current(ctx context.Context, city string) string {
	key := "weather:" + normalizeKey(city)
	var text string
	if ok, err := w.memo.Get(ctx, key, &text); err != nil {
		slog.Warn("weather cache read failed", "city", city, "error", err)
	} else if ok {
		return text
	}

	text, ok := w.client.Lookup(ctx, city)
	if ok {
		if err := w.memo.Set(ctx, key, text, w.ttl); err != nil {
			slog.Warn("weather cache write failed", "city", city, "error", err)
		}
	}
	return text
}

type CachedNews struct {
	client *NewsClient
	memo   Memo
	ttl    time.Duration
}

func NewCachedNews(client *NewsClient, memo Memo, ttl time.Duration) *CachedNews {
	return &CachedNews{client: client, memo: memo, ttl: ttl}
}

func (n *CachedNews) Headlines(ctx context.Context, topic string, limit int) string {
	key := fmt.Sprintf("news:%s:%d", normalizeKey(topic), limit)
	var text string
	if ok, err := n.memo.Get(ctx, key, &text); err != nil {
		slog.Warn("news cache read failed", "topic", topic, "error", err)
	} else if ok {
		return text
	}

	text, ok := n.client.Search(ctx, topic, limit)
	if ok {
		if err := n.memo.Set(ctx, key, text, n.ttl); err != nil {
			slog.Warn("news cache write failed", "topic", topic, "error", err)
		}
	}
	return text
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
