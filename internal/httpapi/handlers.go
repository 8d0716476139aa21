package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rubberbot/internal/domain"
)

// Chat is the engine surface the handlers need.
type Chat interface {
	Answer(ctx context.Context, query, sessionID string) domain.ChatResponse
	Welcome() domain.ChatResponse
	ListTopics() map[string][]string
	HealthStats() domain.HealthStats
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// ErrorResponse is the common error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves the chat endpoints.
type Handler struct {
	chat   Chat
	logger *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(chat Chat, logger *zap.Logger) *Handler {
	return &Handler{chat: chat, logger: logger}
}

// HandleChat handles POST /api/chat. The session id comes from the body,
// then the X-Session-Id header; a new one is issued when both are empty.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		respondError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(SessionHeader))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp := h.chat.Answer(r.Context(), message, sessionID)
	h.logger.Info("chat answered",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("session", shortID(sessionID)),
		zap.String("level", string(resp.ConfidenceLevel)),
		zap.Float64("confidence", resp.Confidence),
		zap.String("category", resp.Category))

	w.Header().Set(SessionHeader, sessionID)
	respondJSON(w, http.StatusOK, resp)
}

// HandleWelcome handles GET /api/chat/welcome.
func (h *Handler) HandleWelcome(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.chat.Welcome())
}

// HandleTopics handles GET /api/chat/topics.
func (h *Handler) HandleTopics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.chat.ListTopics())
}

// HandleHealth handles GET /api/chat/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.chat.HealthStats()
	status := http.StatusOK
	if !stats.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, stats)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, statusCode int, err, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: err, Message: message})
}
