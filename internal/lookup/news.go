package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// News returns a numbered list of current headlines for a topic.
type News interface {
	Headlines(ctx context.Context, topic string, limit int) string
}

type NewsClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewNewsClient(apiKey, endpoint string, timeout time.Duration) *NewsClient {
	if endpoint == "" {
		endpoint = defaultTavilyURL
	}
	return &NewsClient{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tavilySearchReq struct {
	Query      string `json:"query"`
	Topic      string `json:"topic"`
	MaxResults int    `json:"max_results"`
}

type tavilySearchResp struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"results"`
}

func (c *NewsClient) Headlines(ctx context.Context, topic string, limit int) string {
	text, _ := c.Search(ctx, topic, limit)
	return text
}

// Search is Headlines plus whether the lookup itself succeeded.
func (c *NewsClient) Search(ctx context.Context, topic string, limit int) (string, bool) {
	if limit <= 0 {
		limit = 5
	}
	query := topic
	if query == "" || query == "general" {
		query = "top headlines"
	}

	body, err := json.Marshal(tavilySearchReq{Query: query, Topic: "news", MaxResults: limit})
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch the news at the moment. (%v)", err), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch the news at the moment. (%v)", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("news lookup failed", "topic", topic, "error", err)
		return fmt.Sprintf("Sorry, I couldn't fetch the news at the moment. (%v)", err), false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Sprintf("Sorry, I couldn't fetch the news at the moment. (status %d)", resp.StatusCode), false
	}

	var r tavilySearchResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch the news at the moment. (%v)", err), false
	}
	if len(r.Results) == 0 {
		return "No news found for this topic.", true
	}

	var b strings.Builder
	for i, item := range r.Results {
		if i >= limit {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item.Title)
	}
	return b.String(), true
}
