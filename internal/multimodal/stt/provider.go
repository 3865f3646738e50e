package stt

import (
	"context"
	"time"
)

// TranscriptionRequest holds the parameters for audio transcription.
type TranscriptionRequest struct {
	Audio       []byte `json:"-"`
	ContentType string `json:"content_type"`
	Language    string `json:"language,omitempty"`
}

// TranscriptionResponse holds the transcription result.
type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Provider is the interface for batch speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	Name() string
}

// StreamingParams configures a live transcription session.
type StreamingParams struct {
	SampleRate  int
	Encoding    string // default pcm_s16le
	FormatTurns bool
}

type BeginEvent struct {
	ID        string
	ExpiresAt time.Time
}

// TurnEvent is one update to the turn currently being spoken. The same
// TurnOrder repeats until the turn ends.
type TurnEvent struct {
	TurnOrder           int
	Transcript          string
	EndOfTurn           bool
	TurnIsFormatted     bool
	EndOfTurnConfidence float64
}

type TerminationEvent struct {
	AudioDurationSeconds   float64
	SessionDurationSeconds float64
}

// StreamingHandler receives session events on the session's read goroutine.
// Implementations must not block.
type StreamingHandler interface {
	OnBegin(BeginEvent)
	OnTurn(TurnEvent)
	OnTermination(TerminationEvent)
	OnError(error)
}

// StreamingSession is an open live transcription session.
type StreamingSession interface {
	Stream(audio []byte) error
	// RequestFormatting asks upstream to deliver a formatted version of the current turn.
	RequestFormatting() error
	// Close terminates the session upstream. Safe to call more than once.
	Close() error
}

// StreamingProvider opens live transcription sessions.
type StreamingProvider interface {
	Connect(ctx context.Context, params StreamingParams, h StreamingHandler) (StreamingSession, error)
}
