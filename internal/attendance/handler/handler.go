// Package handler exposes the clock endpoints over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/attendance/service"
	"fieldwatch/internal/geo"
	dErrors "fieldwatch/pkg/domain-errors"
	"fieldwatch/pkg/platform/httputil"
	"fieldwatch/pkg/platform/middleware/auth"
	"fieldwatch/pkg/requestcontext"
)

// Service defines the attendance operations the handlers need.
type Service interface {
	Validate(ctx context.Context, req service.ClockRequest) (*service.ValidationResult, error)
	History(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ClockEvent, error)
	ResetDevice(ctx context.Context, agentID uuid.UUID) error
}

// Handler handles clock-in/clock-out, history, and admin device resets.
type Handler struct {
	logger  *slog.Logger
	service Service
	auth    *auth.Validator
}

// New creates an attendance Handler.
func New(service Service, authValidator *auth.Validator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		auth:    authValidator,
	}
}

// Register mounts the attendance routes on the router. The shared request
// middleware (request ID, request time, client metadata) is applied at the
// server level.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAgent)
		r.Post("/clock/in", h.handleClock(models.EventArrival))
		r.Post("/clock/out", h.handleClock(models.EventDeparture))
		r.Get("/clock/history", h.handleHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAdmin)
		r.Post("/agents/{agentID}/device/reset", h.handleResetDevice)
	})
}

func (h *Handler) handleClock(kind models.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		deviceID := requestcontext.DeviceID(ctx)
		if deviceID == "" {
			h.logger.WarnContext(ctx, "clock attempt without device header",
				"request_id", requestID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Device-ID header is required"))
			return
		}

		req, ok := httputil.DecodeAndPrepare[clockRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		ts, err := req.validate()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		result, err := h.service.Validate(ctx, service.ClockRequest{
			AgentID:     requestcontext.AgentID(ctx),
			Kind:        kind,
			Coordinate:  geo.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude},
			DeviceID:    deviceID,
			Fingerprint: req.Fingerprint,
			Timestamp:   ts,
		})
		if err != nil {
			if dErrors.CodeOf(err) == dErrors.CodeInternal {
				h.logger.ErrorContext(ctx, "clock validation failed",
					"request_id", requestID,
					"kind", kind,
					"error", err.Error(),
				)
			}
			httputil.WriteError(w, err)
			return
		}

		status := http.StatusOK
		if !result.Accepted {
			// rejection is a completed decision, not a client error
			status = http.StatusUnprocessableEntity
		}
		httputil.WriteJSON(w, status, toClockResponse(result))
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := h.service.History(ctx, requestcontext.AgentID(ctx), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load clock history",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(events))
}

func (h *Handler) handleResetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "agent ID must be a UUID"))
		return
	}

	if err := h.service.ResetDevice(ctx, agentID); err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to reset device binding",
				"request_id", requestID,
				"agent_id", agentID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
