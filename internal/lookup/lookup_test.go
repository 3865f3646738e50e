package lookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherClient_Current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "new york", r.URL.Query().Get("q"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "k", r.URL.Query().Get("appid"))
		w.Write([]byte(`{"weather":[{"description":"light rain"}],"main":{"temp":18.5,"feels_like":17,"humidity":80}}`))
	}))
	defer srv.Close()

	got := NewWeatherClient("k", srv.URL, time.Second).Current(context.Background(), "new york")
	assert.Equal(t, "Weather in New York: light rain, temperature 18.5°C (feels like 17°C), humidity 80%.", got)
}

func TestWeatherClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, "Weather service API key is invalid or expired. Please update your WEATHER_API_KEY."},
		{"not found", http.StatusNotFound, `{}`, "City 'Atlantis' not found. Please check the city name."},
		{"server error", http.StatusBadGateway, `{}`, "Weather service error: 502"},
		{"bad body", http.StatusOK, `not json`, "Unexpected weather data format"},
		{"missing fields", http.StatusOK, `{"weather":[]}`, "Unexpected weather data format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got := NewWeatherClient("k", srv.URL, time.Second).Current(context.Background(), "Atlantis")
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestWeatherClient_NotConfigured(t *testing.T) {
	got := NewWeatherClient("", "", time.Second).Current(context.Background(), "Paris")
	assert.Contains(t, got, "Weather service is not configured")
}

func TestWeatherClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	got := NewWeatherClient("k", srv.URL, time.Second).Current(context.Background(), "Paris")
	assert.Contains(t, got, "Network error while fetching weather")
}

func TestNewsClient_Headlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tv", r.Header.Get("Authorization"))
		var req tavilySearchReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "news", req.Topic)
		assert.Equal(t, "space", req.Query)
		assert.Equal(t, 2, req.MaxResults)
		w.Write([]byte(`{"results":[{"title":"Rocket lands"},{"title":"Moon base"},{"title":"extra"}]}`))
	}))
	defer srv.Close()

	got := NewNewsClient("tv", srv.URL, time.Second).Headlines(context.Background(), "space", 2)
	assert.Equal(t, "1. Rocket lands\n2. Moon base", got)
}

func TestNewsClient_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	got := NewNewsClient("tv", srv.URL, time.Second).Headlines(context.Background(), "general", 5)
	assert.Equal(t, "No news found for this topic.", got)
}

func TestNewsClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got := NewNewsClient("tv", srv.URL, time.Second).Headlines(context.Background(), "general", 5)
	assert.Contains(t, got, "couldn't fetch the news")
}

type mapMemo struct {
	data map[string]string
	ttl  time.Duration
}

func (m *mapMemo) Get(_ context.Context, key string, dest any) (bool, error) {
	v, ok := m.data[key]
	if !ok {
		return false, nil
	}
	*dest.(*string) = v
	return true, nil
}

func (m *mapMemo) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = value.(string)
	m.ttl = ttl
	return nil
}

func TestCachedWeather(t *testing.T) {
	calls := 0
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
		w.Write([]byte(`{"weather":[{"description":"clear sky"}],"main":{"temp":20,"feels_like":19,"humidity":40}}`))
	}))
	defer srv.Close()

	memo := &mapMemo{data: map[string]string{}}
	wx := NewCachedWeather(NewWeatherClient("k", srv.URL, time.Second), memo, 5*time.Minute)

	first := wx.Current(context.Background(), "Paris")
	second := wx.Current(context.Background(), "  paris ")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 5*time.Minute, memo.ttl)
	assert.Contains(t, memo.data, "weather:paris")
}

func TestCachedWeather_FailuresAreNotCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	memo := &mapMemo{data: map[string]string{}}
	wx := NewCachedWeather(NewWeatherClient("k", srv.URL, time.Second), memo, time.Minute)

	wx.Current(context.Background(), "Atlantis")
	got := wx.Current(context.Background(), "Atlantis")
	assert.Contains(t, got, "not found")
	assert.Equal(t, 2, calls)
	assert.Empty(t, memo.data)
}

func TestCachedNews(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[{"title":"Rocket lands"}]}`))
	}))
	defer srv.Close()

	memo := &mapMemo{data: map[string]string{}}
	news := NewCachedNews(NewNewsClient("tv", srv.URL, time.Second), memo, time.Minute)

	assert.Equal(t, "1. Rocket lands", news.Headlines(context.Background(), "Space", 3))
	assert.Equal(t, "1. Rocket lands", news.Headlines(context.Background(), "space", 3))
	assert.Equal(t, 1, calls)
	assert.Contains(t, memo.data, "news:space:3")
}
