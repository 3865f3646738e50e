package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nikhilbhutani/voicerelay/internal/metrics"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/tts"
)

type ChannelConfig struct {
	IdleTimeout time.Duration // client silence before a ping
	SampleRate  int
	TurnQueue   int
	Streamer    StreamerConfig
}

// Channel serves live voice connections.
type Channel struct {
	transcriber stt.StreamingProvider
	generator   ReplyGenerator
	dialer      tts.StreamDialer
	cfg         ChannelConfig
}

func NewChannel(transcriber stt.StreamingProvider, gen ReplyGenerator, dialer tts.StreamDialer, cfg ChannelConfig) *Channel {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return &Channel{
		transcriber: transcriber,
		generator:   gen,
		dialer:      dialer,
		cfg:         cfg,
	}
}

// Serve runs the voice loop for conn until the client leaves, ctx is done, the
// transcription session ends or the client stops answering pings. conn is
// closed on return.
func (ch *Channel) Serve(ctx context.Context, conn *Conn) {
	connID := uuid.NewString()
	log := slog.With("conn_id", connID)

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamer := NewStreamer(ch.dialer, ch.cfg.Streamer, connID)
	orch := NewOrchestrator(ch.generator, streamer, conn, connID, ch.cfg.TurnQueue)
	agg := NewAggregator(ch.transcriber, ch.cfg.SampleRate, conn, orch.Submit, connID)

	var wg sync.WaitGroup
	defer func() {
		if err := agg.Close(); err != nil {
			log.Warn("close transcription session", "error", err)
		}
		cancel()
		_ = conn.Close(websocket.CloseNormalClosure)
		wg.Wait()
		log.Info("voice connection closed")
	}()

	if err := agg.Open(ctx); err != nil {
		log.Error("start transcription", "error", err)
		return
	}
	log.Info("voice connection opened")

	wg.Add(2)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-agg.Ended():
			log.Info("transcription unavailable, closing connection")
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		mt, data, err := conn.ReadFrame(ctx, ch.cfg.IdleTimeout)
		if errors.Is(err, ErrReadTimeout) {
			if err := conn.Send(ctx, pingEvent()); err != nil {
				log.Info("client unresponsive", "error", err)
				return
			}
			continue
		}
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("client read", "error", err)
			}
			return
		}

		if mt != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			log.Warn("empty audio frame")
			continue
		}
		agg.Stream(data)
	}
}
