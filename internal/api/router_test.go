package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicerelay/internal/agent"
	"github.com/nikhilbhutani/voicerelay/internal/api/handlers"
	"github.com/nikhilbhutani/voicerelay/internal/session"
	"github.com/nikhilbhutani/voicerelay/internal/voice"
)

type staticReply struct{}

func (staticReply) Generate(context.Context, []session.Message, string) agent.Reply {
	return agent.Reply{Text: "Hmph."}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	web := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(web, "index.html"), []byte("<h1>relay</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(web, "script.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(web, "style.css"), []byte("body{}"), 0o644))

	audio := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(audio, "clip.mp3"), []byte("ID3"), 0o644))

	sessions := session.NewMemoryStore(session.Retention{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rt := NewRouter(Deps{
		Voice:    handlers.NewVoiceHandler(voice.NewChannel(nil, staticReply{}, nil, voice.ChannelConfig{})),
		Chat:     handlers.NewChatHandler(nil, nil, staticReply{}, sessions, nil, "en-US-ken"),
		Health:   handlers.NewHealthHandler(nil),
		WebDir:   web,
		AudioDir: audio,
	})
	srv := httptest.NewServer(rt.Setup(ctx))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRouter_Endpoints(t *testing.T) {
	srv := newTestServer(t)

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "relay")

	code, body = get(t, srv.URL+"/script.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "console.log")

	code, body = get(t, srv.URL+"/audio/clip.mp3")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ID3", body)

	code, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "voicerelay_http_requests_total")
}

func TestRouter_ChatRejectsBadType(t *testing.T) {
	srv := newTestServer(t)

	body := "--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"x.txt\"\r\nContent-Type: text/plain\r\n\r\nhi\r\n--b--\r\n"
	resp, err := http.Post(srv.URL+"/agent/chat/abc", "multipart/form-data; boundary=b", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid file type"}`, string(data))
}

func TestRouter_ChatHistoryAndEvict(t *testing.T) {
	srv := newTestServer(t)

	code, body := get(t, srv.URL+"/agent/chat/abc")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"session_id":"abc","history":[]}`, body)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/agent/chat/abc", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
