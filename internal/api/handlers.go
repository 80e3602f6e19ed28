package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/pipeline"
	"github.com/finsight/finsight/internal/session"
)

// maxRequestBody caps request bodies; questions are at most 1000
// characters and snapshots are bounded by history length.
const maxRequestBody = 4 << 20

// ArticleStats reports document store contents for /stats.
type ArticleStats interface {
	Count(ctx context.Context) (news.Stats, error)
}

// statusFor maps an error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	if errors.Is(err, session.ErrBusy) {
		return http.StatusConflict, "busy"
	}
	switch pipeline.KindOf(err) {
	case pipeline.KindValidation:
		return http.StatusBadRequest, "invalid_question"
	case pipeline.KindConfiguration:
		return http.StatusBadRequest, "invalid_configuration"
	case pipeline.KindTransient:
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type chatHandler struct {
	sessions *session.Manager
	logger   log.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
}

type chatResponse struct {
	SessionID uuid.UUID    `json:"session_id"`
	Turn      session.Turn `json:"turn"`
}

// send handles POST /api/v1/chat. An omitted or unknown session_id
// starts a new session.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	var sessionID uuid.UUID
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "session_id is not a valid UUID", h.logger)
			return
		}
		sessionID = id
	}

	s := h.sessions.GetOrCreate(sessionID)
	turn, err := s.Submit(r.Context(), req.Question)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: s.ID, Turn: *turn}, h.logger)
}

type sessionHandler struct {
	sessions *session.Manager
	logger   log.Logger
}

// lookup resolves the {id} path value to a live session, writing the
// error response itself when that fails.
func (h *sessionHandler) lookup(w http.ResponseWriter, r *http.Request) *session.Session {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "session id is not a valid UUID", h.logger)
		return nil
	}
	s := h.sessions.Get(id)
	if s == nil {
		writeError(w, http.StatusNotFound, "not_found", "no such session", h.logger)
		return nil
	}
	return s
}

type sessionResponse struct {
	SessionID uuid.UUID       `json:"session_id"`
	Config    pipeline.Config `json:"config"`
	Turns     []session.Turn  `json:"turns"`
	Metrics   session.Metrics `json:"metrics"`
}

// create handles POST /api/v1/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: s.ID,
		Config:    s.Config(),
		Turns:     s.Turns(),
		Metrics:   s.Metrics(),
	}, h.logger)
}

// get handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: s.ID,
		Config:    s.Config(),
		Turns:     s.Turns(),
		Metrics:   s.Metrics(),
	}, h.logger)
}

// getConfig handles GET /api/v1/sessions/{id}/config.
func (h *sessionHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.Config(), h.logger)
}

// patchConfig handles PATCH /api/v1/sessions/{id}/config. Unknown keys
// are ignored; an invalid value rejects the whole patch.
func (h *sessionHandler) patchConfig(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	cfg, err := s.PatchConfig(patch)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, cfg, h.logger)
}

// export handles GET /api/v1/sessions/{id}/export.
func (h *sessionHandler) export(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="session.json"`)
	writeJSON(w, http.StatusOK, s.Export(), h.logger)
}

// importSnapshot handles POST /api/v1/sessions/{id}/import.
func (h *sessionHandler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "reading request body failed", h.logger)
		return
	}

	if err := s.Import(data); err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: s.ID,
		Config:    s.Config(),
		Turns:     s.Turns(),
		Metrics:   s.Metrics(),
	}, h.logger)
}

// reset handles POST /api/v1/sessions/{id}/reset. History and metrics
// are cleared and the default configuration is restored.
func (h *sessionHandler) reset(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	s.Reset()
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: s.ID,
		Config:    s.Config(),
		Turns:     s.Turns(),
		Metrics:   s.Metrics(),
	}, h.logger)
}

type statsHandler struct {
	sessions *session.Manager
	articles ArticleStats
	logger   log.Logger
}

type statsResponse struct {
	Articles news.Stats `json:"articles"`
	Sessions int        `json:"sessions"`
}

// getStats handles GET /api/v1/stats.
func (h *statsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.articles.Count(r.Context())
	if err != nil {
		h.logger.Error("counting articles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "stats unavailable", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Articles: stats,
		Sessions: h.sessions.Count(),
	}, h.logger)
}

// decodeBody decodes a JSON request body, rejecting unknown garbage and
// oversized payloads.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return errors.New("request body is not valid JSON")
	}
	return nil
}
