package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	STT      STTConfig
	TTS      TTSConfig
	Lookup   LookupConfig
	Session  SessionConfig
	Voice    VoiceConfig
	Storage  StorageConfig
	Usage    UsageConfig
	Persona  PersonaConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	WebDir    string
	LogLevel  string
	ChatRPS   float64 // per client IP on /agent/chat
	ChatBurst int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	GeminiKey        string
	GeminiBaseURL    string
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	FallbackModel    string
	MaxRetries       int
}

type STTConfig struct {
	Backend       string // "assemblyai" or "openai"
	AssemblyAIKey string
	AssemblyAIURL string
	StreamingURL  string
	SampleRate    int
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	PollInterval  time.Duration
}

type TTSConfig struct {
	Backend       string // "murf" or "openai"
	MurfKey       string
	MurfBaseURL   string
	MurfStreamURL string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
}

type LookupConfig struct {
	WeatherKey     string
	WeatherURL     string
	TavilyKey      string
	TavilyURL      string
	NewsLimit      int
	RequestTimeout time.Duration
	CacheTTL       time.Duration // 0 disables the Redis lookup cache
}

type SessionConfig struct {
	Backend     string // "memory" or "redis"
	TTL         time.Duration
	MaxSessions int
	MaxMessages int
}

type VoiceConfig struct {
	CaptureIdleTimeout time.Duration
	TTSMinInterval     time.Duration
	TTSConnectTimeout  time.Duration
	TTSConnectAttempts int
	TTSRetryDelay      time.Duration
	TTSReadTimeout     time.Duration
	TTSMaxReadTimeouts int
	TTSSampleRate      int
}

type StorageConfig struct {
	Backend     string // "local" or "supabase"
	LocalDir    string
	PublicBase  string
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

type UsageConfig struct {
	Async bool
}

type PersonaConfig struct {
	File string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	chatRPS, err := getEnvFloat("CHAT_RPS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_RPS: %w", err)
	}

	chatBurst, err := getEnvInt("CHAT_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	sampleRate, err := getEnvInt("STT_SAMPLE_RATE", 16000)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_SAMPLE_RATE: %w", err)
	}

	pollInterval, err := getEnvDuration("STT_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_POLL_INTERVAL: %w", err)
	}

	newsLimit, err := getEnvInt("NEWS_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid NEWS_LIMIT: %w", err)
	}

	lookupTimeout, err := getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LOOKUP_TIMEOUT: %w", err)
	}

	lookupCacheTTL, err := getEnvDuration("LOOKUP_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid LOOKUP_CACHE_TTL: %w", err)
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	maxSessions, err := getEnvInt("SESSION_MAX_SESSIONS", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_MAX_SESSIONS: %w", err)
	}

	maxMessages, err := getEnvInt("SESSION_MAX_MESSAGES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_MAX_MESSAGES: %w", err)
	}

	voice, err := loadVoice()
	if err != nil {
		return nil, err
	}

	usageAsync, err := getEnvBool("USAGE_ASYNC", false)
	if err != nil {
		return nil, fmt.Errorf("invalid USAGE_ASYNC: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "0.0.0.0"),
			Port:      port,
			WebDir:    getEnv("WEB_DIR", "web"),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			ChatRPS:   chatRPS,
			ChatBurst: chatBurst,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LLM: LLMConfig{
			GeminiKey:        getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:    getEnv("GEMINI_BASE_URL", ""),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "gemini"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gemini-2.0-flash"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
			MaxRetries:       maxRetries,
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "assemblyai"),
			AssemblyAIKey: getEnv("ASSEMBLYAI_API_KEY", ""),
			AssemblyAIURL: getEnv("ASSEMBLYAI_BASE_URL", ""),
			StreamingURL:  getEnv("ASSEMBLYAI_STREAMING_URL", ""),
			SampleRate:    sampleRate,
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", ""),
			PollInterval:  pollInterval,
		},
		TTS: TTSConfig{
			Backend:       getEnv("TTS_BACKEND", "murf"),
			MurfKey:       getEnv("MURF_API_KEY", ""),
			MurfBaseURL:   getEnv("MURF_BASE_URL", ""),
			MurfStreamURL: getEnv("MURF_STREAM_URL", ""),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("TTS_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("TTS_OPENAI_MODEL", ""),
		},
		Lookup: LookupConfig{
			WeatherKey:     getEnv("WEATHER_API_KEY", ""),
			WeatherURL:     getEnv("WEATHER_BASE_URL", ""),
			TavilyKey:      getEnv("TAVILY_API_KEY", ""),
			TavilyURL:      getEnv("TAVILY_BASE_URL", ""),
			NewsLimit:      newsLimit,
			RequestTimeout: lookupTimeout,
			CacheTTL:       lookupCacheTTL,
		},
		Session: SessionConfig{
			Backend:     getEnv("SESSION_BACKEND", "memory"),
			TTL:         sessionTTL,
			MaxSessions: maxSessions,
			MaxMessages: maxMessages,
		},
		Voice: voice,
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			LocalDir:    getEnv("STORAGE_LOCAL_DIR", "data/audio"),
			PublicBase:  getEnv("STORAGE_PUBLIC_BASE", "/audio"),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "audio"),
		},
		Usage: UsageConfig{
			Async: usageAsync,
		},
		Persona: PersonaConfig{
			File: getEnv("PERSONA_FILE", ""),
		},
	}

	return cfg, nil
}

func loadVoice() (VoiceConfig, error) {
	var v VoiceConfig
	var err error

	if v.CaptureIdleTimeout, err = getEnvDuration("WS_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return v, fmt.Errorf("invalid WS_IDLE_TIMEOUT: %w", err)
	}
	if v.TTSMinInterval, err = getEnvDuration("TTS_MIN_INTERVAL", time.Second); err != nil {
		return v, fmt.Errorf("invalid TTS_MIN_INTERVAL: %w", err)
	}
	if v.TTSConnectTimeout, err = getEnvDuration("TTS_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return v, fmt.Errorf("invalid TTS_CONNECT_TIMEOUT: %w", err)
	}
	if v.TTSConnectAttempts, err = getEnvInt("TTS_CONNECT_ATTEMPTS", 3); err != nil {
		return v, fmt.Errorf("invalid TTS_CONNECT_ATTEMPTS: %w", err)
	}
	if v.TTSRetryDelay, err = getEnvDuration("TTS_RETRY_DELAY", time.Second); err != nil {
		return v, fmt.Errorf("invalid TTS_RETRY_DELAY: %w", err)
	}
	if v.TTSReadTimeout, err = getEnvDuration("TTS_READ_TIMEOUT", 5*time.Second); err != nil {
		return v, fmt.Errorf("invalid TTS_READ_TIMEOUT: %w", err)
	}
	if v.TTSMaxReadTimeouts, err = getEnvInt("TTS_MAX_READ_TIMEOUTS", 10); err != nil {
		return v, fmt.Errorf("invalid TTS_MAX_READ_TIMEOUTS: %w", err)
	}
	if v.TTSSampleRate, err = getEnvInt("TTS_SAMPLE_RATE", 44100); err != nil {
		return v, fmt.Errorf("invalid TTS_SAMPLE_RATE: %w", err)
	}
	return v, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate fails when a provider the service is configured to use has no credential.
// Nothing falls back to a built-in key.
func (c *Config) Validate() error {
	var missing []string

	switch c.STT.Backend {
	case "assemblyai":
		if c.STT.AssemblyAIKey == "" {
			missing = append(missing, "ASSEMBLYAI_API_KEY")
		}
	case "openai":
		if c.STT.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown STT_BACKEND %q", c.STT.Backend)
	}
	// Live transcription always streams through AssemblyAI.
	if c.STT.Backend != "assemblyai" && c.STT.AssemblyAIKey == "" {
		missing = append(missing, "ASSEMBLYAI_API_KEY")
	}

	// Live synthesis always streams through Murf.
	if c.TTS.MurfKey == "" {
		missing = append(missing, "MURF_API_KEY")
	}
	switch c.TTS.Backend {
	case "murf":
	case "openai":
		if c.TTS.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown TTS_BACKEND %q", c.TTS.Backend)
	}

	if key := c.LLM.providerKey(c.LLM.DefaultProvider); key != "" {
		missing = append(missing, key)
	}
	if c.LLM.FallbackProvider != "" {
		if key := c.LLM.providerKey(c.LLM.FallbackProvider); key != "" {
			missing = append(missing, key)
		}
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend)
	}

	switch c.Storage.Backend {
	case "local":
	case "supabase":
		if c.Storage.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Storage.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_KEY")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Usage.Async && c.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(dedupe(missing), ", "))
	}
	return nil
}

// providerKey returns the env var that must be set for the named provider,
// or "" when the provider is satisfied.
func (l LLMConfig) providerKey(provider string) string {
	switch provider {
	case "gemini":
		if l.GeminiKey == "" {
			return "GEMINI_API_KEY"
		}
	case "openai":
		if l.OpenAIKey == "" {
			return "OPENAI_API_KEY"
		}
	case "anthropic":
		if l.AnthropicKey == "" {
			return "ANTHROPIC_API_KEY"
		}
	case "ollama":
		if l.OllamaURL == "" {
			return "OLLAMA_URL"
		}
	default:
		return "LLM_DEFAULT_PROVIDER"
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}
