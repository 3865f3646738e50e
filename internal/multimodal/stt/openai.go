package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISTTConfig holds configuration for the OpenAI STT backend.
type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAISTT transcribes audio with Whisper (or a compatible endpoint).
type OpenAISTT struct {
	client *openai.Client
	model  string
}

func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &OpenAISTT{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

func (o *OpenAISTT) Name() string { return "openai-whisper" }

func (o *OpenAISTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("empty audio")
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: "audio." + extensionFor(req.ContentType),
		Reader:   bytes.NewReader(req.Audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	return &TranscriptionResponse{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/mp3", "audio/mpeg":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/ogg":
		return "ogg"
	default:
		return "webm"
	}
}
