package location

import (
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"fieldwatch/internal/geo"
	dErrors "fieldwatch/pkg/domain-errors"
	"fieldwatch/pkg/platform/httputil"
	"fieldwatch/pkg/platform/middleware/auth"
	"fieldwatch/pkg/requestcontext"
)

// Handler accepts periodic position reports from agent devices.
type Handler struct {
	logger *slog.Logger
	store  Store
	auth   *auth.Validator
}

// NewHandler creates a location Handler.
func NewHandler(store Store, authValidator *auth.Validator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, store: store, auth: authValidator}
}

// Register mounts the location routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAgent)
		r.Post("/location", h.handleReport)
	})
}

type reportRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[reportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if !govalidator.InRangeFloat64(req.Latitude, -90, 90) ||
		!govalidator.InRangeFloat64(req.Longitude, -180, 180) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "coordinates out of range"))
		return
	}

	report := Report{
		AgentID:    requestcontext.AgentID(ctx),
		Coordinate: geo.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude},
		RecordedAt: requestcontext.Now(ctx),
	}
	if err := h.store.SetLatest(ctx, report); err != nil {
		h.logger.ErrorContext(ctx, "failed to store location report",
			"request_id", requestID,
			"agent_id", report.AgentID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to store location report"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
