package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nikhilbhutani/voicerelay/internal/voice"
)

type VoiceHandler struct {
	channel  *voice.Channel
	upgrader websocket.Upgrader
}

func NewVoiceHandler(ch *voice.Channel) *VoiceHandler {
	return &VoiceHandler{
		channel: ch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the live voice loop until the client leaves.
func (h *VoiceHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.channel.Serve(r.Context(), voice.NewConn(ws))
}
