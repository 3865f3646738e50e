package voice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nikhilbhutani/voicerelay/internal/metrics"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/tts"
)

type StreamerConfig struct {
	VoiceID         string
	MinInterval     time.Duration // between upstream requests
	ConnectTimeout  time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
	ReadTimeout     time.Duration
	MaxReadTimeouts int
}

func (c *StreamerConfig) setDefaults() {
	if c.VoiceID == "" {
		c.VoiceID = "en-US-carter"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.MaxReadTimeouts <= 0 {
		c.MaxReadTimeouts = 10
	}
}

// Streamer speaks replies for one client connection. At most one upstream
// synthesis connection is open at a time, and request starts are spaced by
// MinInterval.
type Streamer struct {
	dialer    tts.StreamDialer
	cfg       StreamerConfig
	contextID string
	connID    string

	permit  *semaphore.Weighted
	spacing *rate.Limiter

	mu          sync.Mutex
	lastRequest time.Time
}

func NewStreamer(dialer tts.StreamDialer, cfg StreamerConfig, connID string) *Streamer {
	cfg.setDefaults()
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Streamer{
		dialer:    dialer,
		cfg:       cfg,
		contextID: uuid.NewString(),
		connID:    connID,
		permit:    semaphore.NewWeighted(1),
		spacing:   rate.NewLimiter(limit, 1),
	}
}

// LastRequest is when the most recent upstream request started.
func (s *Streamer) LastRequest() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest
}

type voiceConfigMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	VoiceID   string `json:"voiceId"`
	Rate      int    `json:"rate"`
	Pitch     int    `json:"pitch"`
	Variation int    `json:"variation"`
	Style     string `json:"style"`
}

type textMessage struct {
	Text string `json:"text"`
	End  bool   `json:"end"`
}

type synthesisMessage struct {
	Audio string `json:"audio"`
	Final bool   `json:"final"`
	Error string `json:"error"`
}

// Stream synthesizes text and relays the audio to client as audio_chunk
// events. Failures are logged and end the stream.
func (s *Streamer) Stream(ctx context.Context, text string, client Client) {
	if err := s.permit.Acquire(ctx, 1); err != nil {
		metrics.RecordTTSStream("cancelled")
		return
	}
	defer s.permit.Release(1)

	if err := s.spacing.Wait(ctx); err != nil {
		metrics.RecordTTSStream("cancelled")
		return
	}
	s.mu.Lock()
	s.lastRequest = time.Now()
	s.mu.Unlock()

	conn, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			metrics.RecordTTSStream("cancelled")
			return
		}
		slog.Error("tts connect failed", "conn_id", s.connID, "attempts", s.cfg.ConnectAttempts, "error", err)
		metrics.RecordTTSStream("connect_failed")
		return
	}
	defer conn.Close()

	outcome := s.relay(ctx, conn, text, client)
	metrics.RecordTTSStream(outcome)
}

func (s *Streamer) connect(ctx context.Context) (tts.StreamConn, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ConnectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		conn, err := s.dialer.Dial(dialCtx, s.contextID)
		cancel()
		if err == nil {
			metrics.RecordTTSConnect("ok")
			return conn, nil
		}
		metrics.RecordTTSConnect("error")
		lastErr = err
		slog.Warn("tts connect attempt failed", "conn_id", s.connID, "attempt", attempt, "error", err)

		if attempt == s.cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.RetryDelay):
		}
	}
	return nil, lastErr
}

func (s *Streamer) relay(ctx context.Context, conn tts.StreamConn, text string, client Client) string {
	cfgMsg := voiceConfigMessage{VoiceConfig: voiceConfig{
		VoiceID:   s.cfg.VoiceID,
		Variation: 1,
		Style:     "Conversational",
	}}
	if err := conn.Send(cfgMsg); err != nil {
		slog.Error("send tts voice config", "conn_id", s.connID, "error", err)
		return "error"
	}
	if err := conn.Send(textMessage{Text: text, End: true}); err != nil {
		slog.Error("send tts text", "conn_id", s.connID, "error", err)
		return "error"
	}

	timeouts := 0
	for {
		if ctx.Err() != nil {
			return "cancelled"
		}

		data, err := conn.Receive(s.cfg.ReadTimeout)
		if errors.Is(err, tts.ErrReceiveTimeout) {
			timeouts++
			if timeouts >= s.cfg.MaxReadTimeouts {
				slog.Warn("tts stream stalled", "conn_id", s.connID, "timeouts", timeouts)
				return "timeout"
			}
			continue
		}
		if err != nil {
			slog.Warn("tts stream ended", "conn_id", s.connID, "error", err)
			return "error"
		}
		timeouts = 0

		var msg synthesisMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("decode tts message", "conn_id", s.connID, "error", err)
			return "error"
		}
		if msg.Error != "" {
			slog.Error("tts upstream error", "conn_id", s.connID, "error", msg.Error)
			return "error"
		}

		if msg.Audio != "" {
			if client.Closed() {
				return "client_closed"
			}
			if err := client.Send(ctx, audioChunkEvent(msg.Audio)); err != nil {
				if ctx.Err() != nil {
					return "cancelled"
				}
				return "client_closed"
			}
			metrics.RecordAudioChunk()
		}
		if msg.Final {
			return "completed"
		}
	}
}
