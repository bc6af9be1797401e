// Package httphandler is the REST driving adapter for the simulation workflow.
package httphandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// maxRequestBody bounds the inbound JSON body.
const maxRequestBody = 1 << 10

// Simulator runs one end-to-end loan simulation.
type Simulator interface {
	Simulate(ctx context.Context, rawCPF string) (*model.SimulationOutcome, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	simulator Simulator
	metrics   http.Handler
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a Handler. metricsHandler may be nil, in which case
// /metrics answers 404.
func NewHandler(simulator Simulator, metricsHandler http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if metricsHandler == nil {
		metricsHandler = http.NotFoundHandler()
	}
	return &Handler{
		simulator: simulator,
		metrics:   metricsHandler,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		now:       time.Now,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /simular", h.Simulate)
	mux.HandleFunc("POST /api/v1/simulations", h.Simulate)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", h.metrics)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Simulate runs the simulation workflow for the CPF in the request body.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.KindValidation, "invalid request body")
		return
	}

	cpf, err := decodeCPF(req.CPF)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.KindValidation, err.Error())
		return
	}

	outcome, err := h.simulator.Simulate(r.Context(), cpf)
	if err != nil {
		h.writeSimulationError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSimulationResponse(*outcome))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// writeSimulationError maps a workflow error to its status and body. Only the
// error's message and sanitized detail reach the client.
func (h *Handler) writeSimulationError(w http.ResponseWriter, r *http.Request, err error) {
	log := h.logger.With("request_id", RequestIDFromContext(r.Context()))

	switch {
	case errors.Is(err, context.Canceled):
		log.Info("simulation canceled by client")
		writeError(w, http.StatusServiceUnavailable, model.KindTimeout, "request canceled")
		return
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("simulation deadline exceeded", "error", err)
		writeError(w, http.StatusGatewayTimeout, model.KindTimeout, "request deadline exceeded")
		return
	}

	kind := model.KindOf(err)
	status := statusForKind(kind)

	message := "internal server error"
	var merr *model.Error
	if errors.As(err, &merr) && kind != model.KindInternal {
		message = merr.Message
	}

	if status >= http.StatusInternalServerError {
		log.Error("simulation failed", "kind", string(kind), "error", err)
	} else {
		log.Info("simulation unsuccessful", "kind", string(kind), "error", err)
	}

	writeJSON(w, status, ErrorResponse{
		Error:  message,
		Kind:   string(kind),
		Detail: h.sanitizer.Sanitize(model.DetailOf(err)),
	})
}

// decodeCPF accepts the cpf field as a JSON string or an integer.
func decodeCPF(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("cpf is required")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.New("cpf must be a string or number")
		}
		if s == "" {
			return "", errors.New("cpf is required")
		}
		return s, nil
	}

	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return "", errors.New("cpf must be a string or number")
	}
	return strconv.FormatUint(n, 10), nil
}
