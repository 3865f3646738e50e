package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultStreamingURL = "wss://streaming.assemblyai.com/v3/ws"

const (
	streamWriteTimeout = 5 * time.Second
	terminateWait      = 3 * time.Second
)

// AssemblyAIStreaming opens v3 universal-streaming sessions.
type AssemblyAIStreaming struct {
	apiKey string
	url    string
	dialer websocket.Dialer
}

func NewAssemblyAIStreaming(apiKey, streamURL string) *AssemblyAIStreaming {
	if streamURL == "" {
		streamURL = defaultStreamingURL
	}
	return &AssemblyAIStreaming{
		apiKey: apiKey,
		url:    streamURL,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type aaiStreamMessage struct {
	Type string `json:"type"`

	// Begin
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`

	// Turn
	TurnOrder           int     `json:"turn_order"`
	Transcript          string  `json:"transcript"`
	EndOfTurn           bool    `json:"end_of_turn"`
	TurnIsFormatted     bool    `json:"turn_is_formatted"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`

	// Termination
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`

	Error string `json:"error"`
}

func (a *AssemblyAIStreaming) Connect(ctx context.Context, params StreamingParams, h StreamingHandler) (StreamingSession, error) {
	u, err := url.Parse(a.url)
	if err != nil {
		return nil, fmt.Errorf("parse streaming URL: %w", err)
	}

	sampleRate := params.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	encoding := params.Encoding
	if encoding == "" {
		encoding = "pcm_s16le"
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("encoding", encoding)
	q.Set("format_turns", strconv.FormatBool(params.FormatTurns))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", a.apiKey)

	conn, resp, err := a.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("assemblyai connect (status %d): %s: %w", resp.StatusCode, string(body), err)
		}
		return nil, fmt.Errorf("assemblyai connect: %w", err)
	}

	s := &assemblyAISession{
		conn:    conn,
		handler: h,
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type assemblyAISession struct {
	conn      *websocket.Conn
	handler   StreamingHandler
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closing   bool // guarded by writeMu
}

// ErrSessionClosed marks errors after which the session delivers no more events.
var ErrSessionClosed = errors.New("transcription session closed")

func (s *assemblyAISession) Stream(audio []byte) error {
	return s.write(websocket.BinaryMessage, audio)
}

func (s *assemblyAISession) RequestFormatting() error {
	return s.writeJSON(map[string]any{"type": "UpdateConfiguration", "format_turns": true})
}

func (s *assemblyAISession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if werr := s.writeJSON(map[string]string{"type": "Terminate"}); werr == nil {
			select {
			case <-s.done:
			case <-time.After(terminateWait):
			}
		}
		s.writeMu.Lock()
		s.closing = true
		s.writeMu.Unlock()
		err = s.conn.Close()
		<-s.done
	})
	return err
}

func (s *assemblyAISession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

func (s *assemblyAISession) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closing {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return s.conn.WriteMessage(messageType, data)
}

func (s *assemblyAISession) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.writeMu.Lock()
			closing := s.closing
			s.writeMu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				readErr := fmt.Errorf("%w: %v", ErrSessionClosed, err)
				s.dispatch(func() { s.handler.OnError(readErr) })
			}
			return
		}

		var msg aaiStreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("assemblyai: undecodable message", "error", err)
			continue
		}

		switch msg.Type {
		case "Begin":
			ev := BeginEvent{ID: msg.ID}
			if msg.ExpiresAt > 0 {
				ev.ExpiresAt = time.Unix(msg.ExpiresAt, 0)
			}
			s.dispatch(func() { s.handler.OnBegin(ev) })
		case "Turn":
			ev := TurnEvent{
				TurnOrder:           msg.TurnOrder,
				Transcript:          msg.Transcript,
				EndOfTurn:           msg.EndOfTurn,
				TurnIsFormatted:     msg.TurnIsFormatted,
				EndOfTurnConfidence: msg.EndOfTurnConfidence,
			}
			s.dispatch(func() { s.handler.OnTurn(ev) })
		case "Termination":
			ev := TerminationEvent{
				AudioDurationSeconds:   msg.AudioDurationSeconds,
				SessionDurationSeconds: msg.SessionDurationSeconds,
			}
			s.dispatch(func() { s.handler.OnTermination(ev) })
			return
		default:
			if msg.Error != "" {
				streamErr := fmt.Errorf("assemblyai: %s", msg.Error)
				s.dispatch(func() { s.handler.OnError(streamErr) })
			}
		}
	}
}

// dispatch runs a handler callback; a panicking handler does not end the session.
func (s *assemblyAISession) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("transcription handler panicked", "panic", r)
		}
	}()
	fn()
}
