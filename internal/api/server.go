// Package api exposes the question-answering service as a JSON HTTP API.
package api

import (
	"errors"
	"net/http"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     log.Logger       // nil gets a nop logger
	Sessions   *session.Manager // required
	Articles   ArticleStats     // required
	TrustProxy bool             // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int              // rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Articles == nil {
		return nil, errors.New("article stats source is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{sessions: cfg.Sessions, logger: logger}
	sh := &sessionHandler{sessions: cfg.Sessions, logger: logger}
	st := &statsHandler{sessions: cfg.Sessions, articles: cfg.Articles, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat", ch.send)

	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/config", sh.getConfig)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/config", sh.patchConfig)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export", sh.export)
	mux.HandleFunc("POST /api/v1/sessions/{id}/import", sh.importSnapshot)
	mux.HandleFunc("POST /api/v1/sessions/{id}/reset", sh.reset)

	mux.HandleFunc("GET /api/v1/stats", st.getStats)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID sits before Logging so request_id appears in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", healthz)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
