package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITTSConfig holds configuration for the OpenAI TTS backend.
type OpenAITTSConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "tts-1"
	Voice   string // default: "onyx"
}

// OpenAITTS returns raw MP3 bytes; callers store them to get a URL.
type OpenAITTS struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAITTS(cfg OpenAITTSConfig) *OpenAITTS {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceOnyx)
	}
	return &OpenAITTS{client: openai.NewClientWithConfig(oc), model: cfg.Model, voice: cfg.Voice}
}

func (o *OpenAITTS) Name() string { return "openai-tts" }

func (o *OpenAITTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	// Murf voice ids mean nothing to OpenAI, so only plain names pass through.
	voice := o.voice
	if req.Voice != "" && !strings.Contains(req.Voice, "-") {
		voice = req.Voice
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Input,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	return &SynthesisResult{
		Audio:       audio,
		ContentType: "audio/mpeg",
	}, nil
}
