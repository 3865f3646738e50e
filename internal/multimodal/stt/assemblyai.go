package stt

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

const defaultAssemblyAIURL = "https://api.assemblyai.com"

type AssemblyAIConfig struct {
	APIKey       string
	BaseURL      string        // default: "https://api.assemblyai.com"
	PollInterval time.Duration // default: 1s
}

// AssemblyAI transcribes uploaded audio with the pre-recorded transcript API:
// upload, create a transcript job, then poll it to completion.
type AssemblyAI struct {
	cfg        AssemblyAIConfig
	httpClient *http.Client
}

func NewAssemblyAI(cfg AssemblyAIConfig) *AssemblyAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAssemblyAIURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &AssemblyAI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *AssemblyAI) Name() string { return "assemblyai" }

type aaiTranscript struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"` // queued, processing, completed, error
	Text          string  `json:"text"`
	Error         string  `json:"error"`
	LanguageCode  string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
}

func (a *AssemblyAI) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("assemblyai: empty audio")
	}

	var upload struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(req.Audio), &upload); err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	create := map[string]any{"audio_url": upload.UploadURL}
	if req.Language != "" {
		create["language_code"] = req.Language
	}
	body, err := json.Marshal(create)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var t aaiTranscript
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &t); err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch t.Status {
		case "completed":
			return &TranscriptionResponse{
				Text:     t.Text,
				Language: t.LanguageCode,
				Duration: t.AudioDuration,
			}, nil
		case "error":
			return nil, fmt.Errorf("assemblyai error: %s", t.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+t.ID, "", nil, &t); err != nil {
			return nil, fmt.Errorf("poll transcript %s: %w", t.ID, err)
		}
	}
}

func (a *AssemblyAI) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", a.cfg.APIKey)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
