package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/voicerelay/internal/agent"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/tts"
	"github.com/nikhilbhutani/voicerelay/internal/session"
	"github.com/nikhilbhutani/voicerelay/internal/storage"
	"github.com/nikhilbhutani/voicerelay/internal/usage"
)

const maxUploadSize = 32 << 20

var allowedAudioTypes = map[string]bool{
	"audio/mp3":  true,
	"audio/webm": true,
	"audio/wav":  true,
	"audio/ogg":  true,
}

// ReplyGenerator produces the assistant's answer from a session history.
type ReplyGenerator interface {
	Generate(ctx context.Context, history []session.Message, current string) agent.Reply
}

type ChatHandler struct {
	stt      stt.Provider
	tts      tts.Provider
	gen      ReplyGenerator
	sessions session.Store
	store    storage.Storage // holds synthesized audio that has no hosted URL
	voiceID  string
}

func NewChatHandler(sttProvider stt.Provider, ttsProvider tts.Provider, gen ReplyGenerator, sessions session.Store, store storage.Storage, voiceID string) *ChatHandler {
	return &ChatHandler{
		stt:      sttProvider,
		tts:      ttsProvider,
		gen:      gen,
		sessions: sessions,
		store:    store,
		voiceID:  voiceID,
	}
}

type chatResponse struct {
	AudioURL string            `json:"audio_url"`
	Text     string            `json:"text"`
	History  []session.Message `json:"history"`
}

// Chat transcribes an uploaded recording, answers it in the session's
// context and returns the spoken reply.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file required"})
		return
	}
	defer file.Close()

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if !allowedAudioTypes[contentType] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid file type"})
		return
	}

	resp, err := h.reply(r.Context(), sessionID, file, contentType)
	if err != nil {
		if errors.Is(err, session.ErrInvalidID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("chat request failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) reply(ctx context.Context, sessionID string, file io.Reader, contentType string) (*chatResponse, error) {
	audio, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	transcript, err := h.stt.Transcribe(ctx, stt.TranscriptionRequest{Audio: audio, ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	history, err := h.sessions.Append(ctx, sessionID, session.Message{Role: session.RoleUser, Text: transcript.Text})
	if err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	ctx = usage.WithSession(usage.WithEndpoint(ctx, usage.EndpointChat), sessionID)
	answer := h.gen.Generate(ctx, history, transcript.Text)

	history, err = h.sessions.Append(ctx, sessionID, answer.Message)
	if err != nil {
		return nil, fmt.Errorf("save reply: %w", err)
	}

	audioURL, err := h.speak(ctx, answer.Text)
	if err != nil {
		return nil, err
	}

	return &chatResponse{AudioURL: audioURL, Text: answer.Text, History: history}, nil
}

func (h *ChatHandler) speak(ctx context.Context, text string) (string, error) {
	result, err := h.tts.Synthesize(ctx, tts.SynthesisRequest{Input: text, Voice: h.voiceID})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if result.URL != "" {
		return result.URL, nil
	}
	if len(result.Audio) == 0 {
		return "", errors.New("synthesize: no audio returned")
	}
	if h.store == nil {
		return "", errors.New("synthesize: no storage configured for audio")
	}
	return storage.Save(ctx, h.store, bytes.NewReader(result.Audio), result.ContentType)
}

// Evict forgets a session's history.
func (h *ChatHandler) Evict(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.sessions.Evict(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrInvalidID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History returns a session's stored messages.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	history, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if history == nil {
		history = []session.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "history": history})
}
