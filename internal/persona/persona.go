// Package persona holds the character voice that shapes every generated reply.
package persona

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Persona is the fixed character prompt plus the in-character canned replies
// used when the language model cannot be reached.
type Persona struct {
	Name           string `toml:"name"`
	Prompt         string `toml:"prompt"`
	WeatherPrompt  string `toml:"weather_prompt"`
	NewsPrompt     string `toml:"news_prompt"`
	QuotaMessage   string `toml:"quota_message"`
	AuthMessage    string `toml:"auth_message"`
	FailureMessage string `toml:"failure_message"`
	VoiceID        string `toml:"voice_id"`
	ChatVoiceID    string `toml:"chat_voice_id"`
}

const defaultPrompt = `You are Roronoa Zoro from One Piece.
- Speak bluntly and directly, like a swordsman.
- Show loyalty to your crew but act tough.
- Occasionally reference swords, training, or getting lost.
- Tone: stoic, confident, sometimes sarcastic.
- Never break character.`

// Default returns the built-in swordsman persona.
func Default() Persona {
	return Persona{
		Name:   "Zoro",
		Prompt: defaultPrompt,
		WeatherPrompt: `The user asked about weather. Here's the actual weather data: {{data}}

Respond with the weather information but stay in character.
You can be dismissive about caring about weather while still providing the info.
Keep your response concise and in your speaking style.`,
		NewsPrompt: `The user asked about the news. Here are the current headlines: {{data}}

Summarize the headlines briefly but stay in character.
Keep your response concise and in your speaking style.`,
		QuotaMessage:   "Tch. Looks like I've used up my daily energy. The API quota is maxed out. Try again tomorrow, or get the crew to upgrade the API plan.",
		AuthMessage:    "Oi! The API key seems to be invalid. Someone needs to check the credentials.",
		FailureMessage: "Tch. Something went wrong with my response. Try asking again.",
		VoiceID:        "en-US-carter",
		ChatVoiceID:    "en-US-ken",
	}
}

// Load reads a TOML persona file. Fields missing from the file keep their
// Default values.
func Load(path string) (Persona, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read persona file: %w", err)
	}

	var override Persona
	if err := toml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	merge(&p.Name, override.Name)
	merge(&p.Prompt, override.Prompt)
	merge(&p.WeatherPrompt, override.WeatherPrompt)
	merge(&p.NewsPrompt, override.NewsPrompt)
	merge(&p.QuotaMessage, override.QuotaMessage)
	merge(&p.AuthMessage, override.AuthMessage)
	merge(&p.FailureMessage, override.FailureMessage)
	merge(&p.VoiceID, override.VoiceID)
	merge(&p.ChatVoiceID, override.ChatVoiceID)
	return p, nil
}

func merge(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// WithWeather renders the persona prompt followed by the weather instructions
// with the lookup result embedded verbatim.
func (p Persona) WithWeather(data string) string {
	return p.Prompt + "\n\n" + strings.ReplaceAll(p.WeatherPrompt, "{{data}}", data)
}

// WithNews renders the persona prompt followed by the news instructions.
func (p Persona) WithNews(data string) string {
	return p.Prompt + "\n\n" + strings.ReplaceAll(p.NewsPrompt, "{{data}}", data)
}
