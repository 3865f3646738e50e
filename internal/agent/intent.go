package agent

import (
	"regexp"
	"strings"
)

// Intent names the branch a reply was produced by.
type Intent string

const (
	IntentGeneral Intent = "general"
	IntentWeather Intent = "weather"
	IntentNews    Intent = "news"
)

const defaultCity = "Tokyo"

var weatherKeywords = []string{
	"weather", "temperature", "temp", "hot", "cold", "rain", "sunny", "cloudy", "forecast",
}

// Tried in order; the first that yields a usable city wins.
var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)weather in ([a-z\s]+)`),
	regexp.MustCompile(`(?i)temperature in ([a-z\s]+)`),
	regexp.MustCompile(`(?i)how.*(?:hot|cold|warm).*in ([a-z\s]+)`),
	regexp.MustCompile(`(?i)what.*weather.*([a-z\s]+)`),
	regexp.MustCompile(`(?i)forecast.*([a-z\s]+)`),
}

var stopWords = regexp.MustCompile(`(?i)\b(?:the|is|like|for|today|tomorrow)\b`)

var newsKeywords = []string{"news", "headline"}

var topicPattern = regexp.MustCompile(`(?i)news (?:about|on) ([a-z\s]+)`)

// DetectWeather reports whether text asks about weather and, if so, which city.
func DetectWeather(text string) (string, bool) {
	lower := strings.ToLower(text)
	if !containsAny(lower, weatherKeywords) {
		return "", false
	}
	return extractCity(strings.TrimSpace(text)), true
}

func extractCity(text string) string {
	for _, re := range cityPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		city := strings.Join(strings.Fields(stopWords.ReplaceAllString(m[1], " ")), " ")
		if len(city) > 1 {
			return city
		}
	}
	return defaultCity
}

// DetectNews reports whether text asks for headlines and, if so, on what topic.
func DetectNews(text string) (string, bool) {
	lower := strings.ToLower(text)
	if !containsAny(lower, newsKeywords) {
		return "", false
	}
	if m := topicPattern.FindStringSubmatch(text); m != nil {
		if topic := strings.Join(strings.Fields(m[1]), " "); topic != "" {
			return topic, true
		}
	}
	return "general", true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
