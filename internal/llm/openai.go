package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
// Gemini is served through Google's compatibility layer with the same client.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	models []string
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		name:   "openai",
		models: []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
	}
}

func NewGeminiProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	p := NewOpenAIProvider(apiKey, baseURL)
	p.name = "gemini"
	p.models = []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-1.5-flash", "gemini-1.5-pro"}
	return p
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Models() []string { return p.models }

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.models[0]
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	oReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.Temperature > 0 {
		oReq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		oReq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, oReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	return &ChatResponse{
		ID:           resp.ID,
		Provider:     p.name,
		Model:        respModel,
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		CostUSD:      CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}
