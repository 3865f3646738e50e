package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultMurfURL = "https://api.murf.ai"

type MurfConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.murf.ai"
	Voice   string // default: "en-US-ken"
}

// Murf generates speech with Murf's REST API, which hosts the rendered file
// and returns its URL.
type Murf struct {
	cfg        MurfConfig
	httpClient *http.Client
}

func NewMurf(cfg MurfConfig) *Murf {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMurfURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Voice == "" {
		cfg.Voice = "en-US-ken"
	}
	return &Murf{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *Murf) Name() string { return "murf" }

func (m *Murf) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	voice := req.Voice
	if voice == "" {
		voice = m.cfg.Voice
	}

	data, err := json.Marshal(map[string]string{"text": req.Input, "voiceId": voice})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v1/speech/generate", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", m.cfg.APIKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("murf request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("murf API failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		AudioFile string `json:"audioFile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if out.AudioFile == "" {
		return nil, fmt.Errorf("murf API returned no audio file")
	}

	return &SynthesisResult{URL: out.AudioFile, ContentType: "audio/wav"}, nil
}
