package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicerelay/internal/agent"
	"github.com/nikhilbhutani/voicerelay/internal/api"
	"github.com/nikhilbhutani/voicerelay/internal/api/handlers"
	"github.com/nikhilbhutani/voicerelay/internal/cache"
	"github.com/nikhilbhutani/voicerelay/internal/config"
	"github.com/nikhilbhutani/voicerelay/internal/database"
	"github.com/nikhilbhutani/voicerelay/internal/llm"
	"github.com/nikhilbhutani/voicerelay/internal/lookup"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/tts"
	"github.com/nikhilbhutani/voicerelay/internal/persona"
	"github.com/nikhilbhutani/voicerelay/internal/queue"
	"github.com/nikhilbhutani/voicerelay/internal/session"
	"github.com/nikhilbhutani/voicerelay/internal/storage"
	"github.com/nikhilbhutani/voicerelay/internal/usage"
	"github.com/nikhilbhutani/voicerelay/internal/voice"
	"github.com/nikhilbhutani/voicerelay/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := persona.Load(cfg.Persona.File)
	if err != nil {
		return err
	}

	checks := map[string]handlers.Pinger{}

	// Redis (sessions, async usage, lookup cache)
	cacheLookups := cfg.Lookup.CacheTTL > 0 && cfg.Redis.Addr != ""
	var rdb *redis.Client
	if cfg.Session.Backend == "redis" || cfg.Usage.Async || cacheLookups {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	// Usage ledger (optional)
	var recorder usage.Recorder = usage.Noop{}
	switch {
	case cfg.Usage.Async:
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		recorder = usage.NewQueueRecorder(qc)
		slog.Info("usage recording via queue")
	case cfg.Database.URL != "":
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, usage will not be recorded", "error", err)
			break
		}
		defer db.Close()
		if err := database.RunMigrations(ctx, db, migrations.FS); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
		recorder = usage.NewDBRecorder(db)
		checks["database"] = db
		slog.Info("usage recording to database")
	}

	sessions, err := newSessionStore(cfg.Session, rdb)
	if err != nil {
		return err
	}

	store, audioDir, err := newStorage(cfg.Storage)
	if err != nil {
		return err
	}

	weather, news := newLookups(cfg.Lookup, rdb, cacheLookups)
	gen := agent.NewGenerator(llm.NewGateway(cfg.LLM), p, agent.Config{
		Weather:   weather,
		News:      news,
		NewsLimit: cfg.Lookup.NewsLimit,
		Recorder:  recorder,
	})

	channel := voice.NewChannel(
		stt.NewAssemblyAIStreaming(cfg.STT.AssemblyAIKey, cfg.STT.StreamingURL),
		gen,
		tts.NewMurfStreamDialer(cfg.TTS.MurfKey, cfg.TTS.MurfStreamURL, cfg.Voice.TTSSampleRate),
		voice.ChannelConfig{
			IdleTimeout: cfg.Voice.CaptureIdleTimeout,
			SampleRate:  cfg.STT.SampleRate,
			Streamer: voice.StreamerConfig{
				VoiceID:         p.VoiceID,
				MinInterval:     cfg.Voice.TTSMinInterval,
				ConnectTimeout:  cfg.Voice.TTSConnectTimeout,
				ConnectAttempts: cfg.Voice.TTSConnectAttempts,
				RetryDelay:      cfg.Voice.TTSRetryDelay,
				ReadTimeout:     cfg.Voice.TTSReadTimeout,
				MaxReadTimeouts: cfg.Voice.TTSMaxReadTimeouts,
			},
		},
	)

	router := api.NewRouter(api.Deps{
		Voice:      handlers.NewVoiceHandler(channel),
		Chat:       handlers.NewChatHandler(newBatchSTT(cfg.STT), newBatchTTS(cfg.TTS), gen, sessions, store, p.ChatVoiceID),
		Health:     handlers.NewHealthHandler(checks),
		WebDir:     cfg.Server.WebDir,
		AudioDir:   audioDir,
		AudioRoute: cfg.Storage.PublicBase,
		ChatRPS:    cfg.Server.ChatRPS,
		ChatBurst:  cfg.Server.ChatBurst,
	})

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router.Setup(ctx),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "persona", p.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func newLookups(cfg config.LookupConfig, rdb *redis.Client, cached bool) (lookup.Weather, lookup.News) {
	wc := lookup.NewWeatherClient(cfg.WeatherKey, cfg.WeatherURL, cfg.RequestTimeout)
	var nc *lookup.NewsClient
	if cfg.TavilyKey != "" {
		nc = lookup.NewNewsClient(cfg.TavilyKey, cfg.TavilyURL, cfg.RequestTimeout)
	}

	if !cached {
		if nc == nil {
			return wc, nil
		}
		return wc, nc
	}

	memo := cache.NewCache(rdb)
	slog.Info("lookup cache enabled", "ttl", cfg.CacheTTL)
	var news lookup.News
	if nc != nil {
		news = lookup.NewCachedNews(nc, memo, cfg.CacheTTL)
	}
	return lookup.NewCachedWeather(wc, memo, cfg.CacheTTL), news
}

func newSessionStore(cfg config.SessionConfig, rdb *redis.Client) (session.Store, error) {
	retention := session.Retention{TTL: cfg.TTL, MaxSessions: cfg.MaxSessions, MaxMessages: cfg.MaxMessages}
	switch cfg.Backend {
	case "memory":
		return session.NewMemoryStore(retention), nil
	case "redis":
		return session.NewRedisStore(rdb, retention), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
}

// newStorage returns the audio store and, for local storage, the directory to serve.
func newStorage(cfg config.StorageConfig) (storage.Storage, string, error) {
	switch cfg.Backend {
	case "supabase":
		return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), "", nil
	case "local":
		s, err := storage.NewLocalStorage(cfg.LocalDir, cfg.PublicBase)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
	return nil, "", fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func newBatchSTT(cfg config.STTConfig) stt.Provider {
	if cfg.Backend == "openai" {
		return stt.NewOpenAISTT(stt.OpenAISTTConfig{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel})
	}
	return stt.NewAssemblyAI(stt.AssemblyAIConfig{APIKey: cfg.AssemblyAIKey, BaseURL: cfg.AssemblyAIURL, PollInterval: cfg.PollInterval})
}

func newBatchTTS(cfg config.TTSConfig) tts.Provider {
	if cfg.Backend == "openai" {
		return tts.NewOpenAITTS(tts.OpenAITTSConfig{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel})
	}
	return tts.NewMurf(tts.MurfConfig{APIKey: cfg.MurfKey, BaseURL: cfg.MurfBaseURL})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
