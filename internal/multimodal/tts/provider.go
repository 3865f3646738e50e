package tts

import "context"

// SynthesisRequest holds the parameters for text-to-speech generation.
type SynthesisRequest struct {
	Input string  `json:"input"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// SynthesisResult carries either hosted audio (URL) or raw bytes to be stored.
type SynthesisResult struct {
	Audio       []byte
	ContentType string // "audio/mpeg" (OpenAI) or "audio/wav" (Murf)
	URL         string
}

// Provider is the interface for batch text-to-speech backends.
type Provider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	Name() string
}
