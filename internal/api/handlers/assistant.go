package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/booking-assistant/internal/assistant"
	"github.com/clinicflow/booking-assistant/pkg/logging"
)

// AssistantHandler exposes the conversation engine to the webhook layer.
type AssistantHandler struct {
	engine *assistant.Engine
	health *assistant.HealthChecker
	logger *logging.Logger
}

func NewAssistantHandler(engine *assistant.Engine, health *assistant.HealthChecker, logger *logging.Logger) *AssistantHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AssistantHandler{engine: engine, health: health, logger: logger}
}

type messageRequest struct {
	SessionKey string `json:"session_key"`
	Message    string `json:"message"`
}

// HandleMessage processes one inbound message and returns the reply plus
// the turn's tool-call log.
func (h *AssistantHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.SessionKey = strings.TrimSpace(req.SessionKey)
	if req.SessionKey == "" {
		writeError(w, http.StatusBadRequest, "session_key is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.engine.ProcessMessage(r.Context(), req.SessionKey, req.Message)
	if err != nil {
		h.logger.Error("turn processing failed", "session", req.SessionKey, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetSession returns the stored conversational state for a session key.
func (h *AssistantHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sess, err := h.engine.Session(r.Context(), key)
	if err != nil {
		if errors.Is(err, assistant.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("session lookup failed", "session", key, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteSession drops all stored state for a session key.
func (h *AssistantHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.engine.DeleteSession(r.Context(), key); err != nil {
		if errors.Is(err, assistant.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("session delete failed", "session", key, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportSession returns the full session as a downloadable JSON document,
// for data-portability requests.
func (h *AssistantHandler) ExportSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sess, err := h.engine.Session(r.Context(), key)
	if err != nil {
		if errors.Is(err, assistant.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("session export failed", "session", key, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to export session")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="session-`+key+`.json"`)
	writeJSON(w, http.StatusOK, sess)
}

// HealthCheck aggregates dependency health. Degraded still returns 200 so
// load balancers keep routing; only critical returns 503.
func (h *AssistantHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.State == assistant.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
