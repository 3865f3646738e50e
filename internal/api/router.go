package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/voicerelay/internal/api/handlers"
	"github.com/nikhilbhutani/voicerelay/internal/api/middleware"
	"github.com/nikhilbhutani/voicerelay/internal/metrics"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Voice  *handlers.VoiceHandler
	Chat   *handlers.ChatHandler
	Health *handlers.HealthHandler

	WebDir     string
	AudioDir   string // serves locally stored audio when set
	AudioRoute string // default "/audio"

	ChatRPS   float64
	ChatBurst int
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	if deps.WebDir == "" {
		deps.WebDir = "web"
	}
	if deps.AudioRoute == "" {
		deps.AudioRoute = "/audio"
	}
	if deps.ChatRPS <= 0 {
		deps.ChatRPS = 2
	}
	if deps.ChatBurst <= 0 {
		deps.ChatBurst = 5
	}
	return &Router{mux: chi.NewRouter(), deps: deps}
}

// Setup builds the handler tree. Background upkeep stops when ctx is done.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health + metrics
	r.Get("/healthz", rt.deps.Health.Healthz)
	r.Get("/readyz", rt.deps.Health.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Browser client
	static := handlers.NewStatic(rt.deps.WebDir)
	r.Get("/", static.Index)
	r.Get("/style.css", static.File("style.css"))
	r.Get("/script.js", static.File("script.js"))

	if rt.deps.AudioDir != "" {
		prefix := rt.deps.AudioRoute + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(rt.deps.AudioDir))))
	}

	// Live voice
	r.Get("/ws", rt.deps.Voice.Serve)

	// Recorded chat
	rl := middleware.NewRateLimiter(rt.deps.ChatRPS, rt.deps.ChatBurst)
	go rl.Run(ctx.Done())
	r.Route("/agent/chat/{session_id}", func(r chi.Router) {
		r.Use(rl.Limit)
		r.Post("/", rt.deps.Chat.Chat)
		r.Get("/", rt.deps.Chat.History)
		r.Delete("/", rt.deps.Chat.Evict)
	})

	return r
}
