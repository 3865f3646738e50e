package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestLoad_OverridesOnlyPresentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.toml")
	data := `
name = "Nami"
prompt = "You are a navigator."
voice_id = "en-US-natalie"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Nami", p.Name)
	assert.Equal(t, "You are a navigator.", p.Prompt)
	assert.Equal(t, "en-US-natalie", p.VoiceID)
	assert.Equal(t, Default().QuotaMessage, p.QuotaMessage)
	assert.Equal(t, Default().ChatVoiceID, p.ChatVoiceID)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = "), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWithWeather_EmbedsDataVerbatim(t *testing.T) {
	p := Default()
	out := p.WithWeather("Weather in Paris: clear sky, temperature 21°C")

	assert.Contains(t, out, p.Prompt)
	assert.Contains(t, out, "Weather in Paris: clear sky, temperature 21°C")
	assert.NotContains(t, out, "{{data}}")
}
