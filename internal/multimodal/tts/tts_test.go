package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMurf_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech/generate", r.URL.Path)
		assert.Equal(t, "murf-key", r.Header.Get("api-key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hmph.", body["text"])
		assert.Equal(t, "en-US-ken", body["voiceId"])
		w.Write([]byte(`{"audioFile":"https://murf.example/audio.wav","audioLengthInSeconds":1.2}`))
	}))
	defer srv.Close()

	m := NewMurf(MurfConfig{APIKey: "murf-key", BaseURL: srv.URL})
	res, err := m.Synthesize(context.Background(), SynthesisRequest{Input: "Hmph."})
	require.NoError(t, err)
	assert.Equal(t, "https://murf.example/audio.wav", res.URL)
	assert.Empty(t, res.Audio)
}

func TestMurf_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessage":"Invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewMurf(MurfConfig{APIKey: "bad", BaseURL: srv.URL}).Synthesize(context.Background(), SynthesisRequest{Input: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMurf_MissingAudioFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewMurf(MurfConfig{APIKey: "k", BaseURL: srv.URL}).Synthesize(context.Background(), SynthesisRequest{Input: "x"})
	assert.ErrorContains(t, err, "no audio file")
}

func TestOpenAITTS_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "onyx", body["voice"])
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	o := NewOpenAITTS(OpenAITTSConfig{APIKey: "sk", BaseURL: srv.URL})
	res, err := o.Synthesize(context.Background(), SynthesisRequest{Input: "hi", Voice: "en-US-ken"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fake"), res.Audio)
	assert.Equal(t, "audio/mpeg", res.ContentType)
	assert.Empty(t, res.URL)
}

func TestOpenAITTS_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAITTS(OpenAITTSConfig{APIKey: "sk", BaseURL: srv.URL}).
		Synthesize(context.Background(), SynthesisRequest{Input: "hi"})
	assert.ErrorContains(t, err, "bad key")
}
