// Package agent turns a user utterance into an in-character reply, folding in
// live weather or news when the utterance asks for it.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/voicerelay/internal/llm"
	"github.com/nikhilbhutani/voicerelay/internal/lookup"
	"github.com/nikhilbhutani/voicerelay/internal/metrics"
	"github.com/nikhilbhutani/voicerelay/internal/persona"
	"github.com/nikhilbhutani/voicerelay/internal/session"
	"github.com/nikhilbhutani/voicerelay/internal/usage"
)

// Outcome classifies how a reply was produced.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeQuota   Outcome = "quota"
	OutcomeAuth    Outcome = "auth"
	OutcomeFailure Outcome = "failure"
)

// Reply is the generated assistant turn. Message is what callers append to
// their own history; Generate never touches the history it is given.
type Reply struct {
	Text    string
	Message session.Message
	Intent  Intent
	City    string
	Topic   string
	Outcome Outcome
	Usage   *llm.ChatResponse // nil unless the model answered
}

type Config struct {
	Weather     lookup.Weather
	News        lookup.News // nil disables the news branch
	NewsLimit   int
	Recorder    usage.Recorder
	Temperature float64
	MaxTokens   int
}

type Generator struct {
	gateway llm.Gateway
	persona persona.Persona
	cfg     Config
}

func NewGenerator(gw llm.Gateway, p persona.Persona, cfg Config) *Generator {
	if cfg.Recorder == nil {
		cfg.Recorder = usage.Noop{}
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = 5
	}
	return &Generator{gateway: gw, persona: p, cfg: cfg}
}

// Generate never returns an error: provider failures become persona text.
func (g *Generator) Generate(ctx context.Context, history []session.Message, current string) Reply {
	start := time.Now()
	query := strings.TrimSpace(current)
	if query == "" {
		query = lastUserText(history)
	}

	reply := Reply{Intent: IntentGeneral}
	var msgs []llm.Message

	if city, ok := DetectWeather(query); ok && g.cfg.Weather != nil {
		reply.Intent, reply.City = IntentWeather, city
		data := g.cfg.Weather.Current(ctx, city)
		msgs = []llm.Message{
			{Role: "system", Content: g.persona.WithWeather(data)},
			{Role: "user", Content: query},
		}
	} else if topic, ok := DetectNews(query); ok && g.cfg.News != nil {
		reply.Intent, reply.Topic = IntentNews, topic
		data := g.cfg.News.Headlines(ctx, topic, g.cfg.NewsLimit)
		msgs = []llm.Message{
			{Role: "system", Content: g.persona.WithNews(data)},
			{Role: "user", Content: query},
		}
	} else {
		msgs = g.generalMessages(history, query)
	}

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Messages:    msgs,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	switch {
	case err != nil:
		reply.Outcome = classify(err)
		reply.Text = g.cannedReply(reply.Outcome)
		if !errors.Is(err, context.Canceled) {
			slog.Error("reply generation failed", "intent", reply.Intent, "outcome", reply.Outcome, "error", err)
		}
	default:
		reply.Outcome = OutcomeOK
		reply.Usage = resp
		reply.Text = strings.TrimSpace(resp.Content)
		if reply.Text == "" {
			reply.Outcome = OutcomeFailure
			reply.Text = g.persona.FailureMessage
		}
		if rerr := g.cfg.Recorder.Record(ctx, usage.FromResponse(ctx, resp)); rerr != nil {
			slog.Warn("failed to record LLM usage", "error", rerr)
		}
	}

	reply.Message = session.Message{Role: session.RoleAssistant, Text: reply.Text}
	metrics.RecordReply(string(reply.Intent), string(reply.Outcome), time.Since(start).Seconds())
	return reply
}

func (g *Generator) generalMessages(history []session.Message, query string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: g.persona.Prompt})
	for _, m := range history {
		role := "assistant"
		if m.Role == session.RoleUser {
			role = "user"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	if query != "" {
		last := msgs[len(msgs)-1]
		if last.Role != "user" || strings.TrimSpace(last.Content) != query {
			msgs = append(msgs, llm.Message{Role: "user", Content: query})
		}
	}
	return msgs
}

func (g *Generator) cannedReply(o Outcome) string {
	switch o {
	case OutcomeQuota:
		return g.persona.QuotaMessage
	case OutcomeAuth:
		return g.persona.AuthMessage
	default:
		return g.persona.FailureMessage
	}
}

func classify(err error) Outcome {
	switch llm.StatusCode(err) {
	case http.StatusTooManyRequests:
		return OutcomeQuota
	case http.StatusUnauthorized:
		return OutcomeAuth
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota"):
		return OutcomeQuota
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return OutcomeAuth
	default:
		return OutcomeFailure
	}
}

func lastUserText(history []session.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			return strings.TrimSpace(history[i].Text)
		}
	}
	return ""
}
