// Package lookup fetches live data the reply generator folds into prompts.
// Clients never return errors: every failure becomes explanatory text.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// Weather returns a one-line description of current conditions in a city.
type Weather interface {
	Current(ctx context.Context, city string) string
}

type WeatherClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewWeatherClient(apiKey, endpoint string, timeout time.Duration) *WeatherClient {
	if endpoint == "" {
		endpoint = defaultWeatherURL
	}
	return &WeatherClient{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type weatherResp struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
}

var errWeatherFormat = errors.New("missing weather or main section")

func (c *WeatherClient) Current(ctx context.Context, city string) string {
	text, _ := c.Lookup(ctx, city)
	return text
}

// Lookup is Current plus whether the text describes real conditions rather
// than a failure.
func (c *WeatherClient) Lookup(ctx context.Context, city string) (string, bool) {
	if c == nil || c.apiKey == "" {
		return "Weather service is not configured. Please check the API key configuration.", false
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch the weather right now. Error: %v", err), false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("weather lookup failed", "city", city, "error", err)
		return fmt.Sprintf("Network error while fetching weather: %v", err), false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "Weather service API key is invalid or expired. Please update your WEATHER_API_KEY.", false
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Sprintf("City '%s' not found. Please check the city name.", city), false
	case resp.StatusCode >= 400:
		return fmt.Sprintf("Weather service error: %d", resp.StatusCode), false
	}

	var w weatherResp
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return fmt.Sprintf("Unexpected weather data format: %v", err), false
	}
	if len(w.Weather) == 0 || w.Main == nil {
		return fmt.Sprintf("Unexpected weather data format: %v", errWeatherFormat), false
	}

	return fmt.Sprintf("Weather in %s: %s, temperature %s°C (feels like %s°C), humidity %s%%.",
		titleCase(city),
		w.Weather[0].Description,
		formatNumber(w.Main.Temp),
		formatNumber(w.Main.FeelsLike),
		formatNumber(w.Main.Humidity),
	), true
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
