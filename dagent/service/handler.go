package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/dialagent/dagent/agent"
	"github.com/ZanzyTHEbar/dialagent/dagent/config"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// ErrMissingAPIKey reports a request without the Api-Key header the
// agent needs to act on the caller's behalf upstream.
var ErrMissingAPIKey = errors.New("Api-Key header is required")

// Handler serves the chat-completions endpoint. The agent itself is
// assembled once, on the first request that needs it; remote tool
// backends are probed at that point, not at process start.
type Handler struct {
	cfg     *config.Config
	logger  zerolog.Logger
	factory *agent.Factory

	initOnce sync.Once
	orch     *agent.Orchestrator
	initErr  error
}

// NewHandler creates the handler over loaded configuration.
func NewHandler(cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		logger:  logger,
		factory: agent.NewFactory(cfg, logger),
	}
}

// Routes returns the HTTP surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /openai/deployments/{deployment}/chat/completions", h.handleChatCompletions)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

// Close releases the agent's resources.
func (h *Handler) Close() error {
	return h.factory.Close()
}

// orchestrator returns the process-wide agent, assembling it on first
// use. Assembly runs on a background context: it outlives the request
// that happened to arrive first, and a client that disconnects during
// startup must not leave the service permanently degraded.
func (h *Handler) orchestrator() (*agent.Orchestrator, error) {
	h.initOnce.Do(func() {
		h.orch, h.initErr = h.factory.CreateOrchestrator(context.Background())
	})
	return h.orch, h.initErr
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	deployment := r.PathValue("deployment")
	if deployment != h.cfg.Server.DeploymentName {
		writeError(w, http.StatusNotFound, "deployment_not_found", "deployment "+deployment+" not found")
		return
	}

	apiKey := r.Header.Get("Api-Key")
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "invalid_request_error", ErrMissingAPIKey.Error())
		return
	}

	conversationID := r.Header.Get("x-conversation-id")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	logger := h.logger.With().Str("conversation_id", conversationID).Logger()

	var req dial.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "messages is required")
		return
	}

	orch, err := h.orchestrator()
	if err != nil {
		logger.Error().Err(err).Msg("agent assembly failed")
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "agent is not available")
		return
	}

	runReq := agent.RunRequest{
		APIKey:         apiKey,
		ConversationID: conversationID,
		Messages:       req.Messages,
	}
	started := time.Now()

	if req.Stream {
		h.serveStream(w, r, logger, orch, runReq, started)
		return
	}
	h.serveBuffered(w, r, logger, orch, runReq, started)
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, orch *agent.Orchestrator, runReq agent.RunRequest, started time.Time) {
	emitter, err := newSSEEmitter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	choice := NewStreamingChoice(emitter, h.cfg.Server.DeploymentName)
	runReq.Choice = choice

	result, err := orch.Run(r.Context(), runReq)
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		choice.Fail(err)
		return
	}
	choice.Finish()
	logger.Info().
		Int("rounds", result.Rounds).
		Int("tool_calls", result.ToolCalls).
		Dur("duration", time.Since(started)).
		Msg("request completed")
}

func (h *Handler) serveBuffered(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, orch *agent.Orchestrator, runReq agent.RunRequest, started time.Time) {
	choice := NewBufferedChoice()
	runReq.Choice = choice

	result, err := orch.Run(r.Context(), runReq)
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "runtime_error", err.Error())
		return
	}
	logger.Info().
		Int("rounds", result.Rounds).
		Int("tool_calls", result.ToolCalls).
		Dur("duration", time.Since(started)).
		Msg("request completed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(choice.Response(h.cfg.Server.DeploymentName))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dial.ErrorResponse{Error: dial.ErrorDetail{
		Message: message,
		Type:    errType,
	}})
}
