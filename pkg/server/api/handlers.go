package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
	"github.com/StrathCole/fee-oracle/pkg/server/aggregator"
)

const (
	healthTimeout   = 2 * time.Second
	defaultRange    = time.Hour
	maxRange        = 7 * 24 * time.Hour
	maxObservations = 10_000
)

// StatusProvider reports engine status.
type StatusProvider interface {
	Status() aggregator.Status
}

// RecordReader reads persisted records.
type RecordReader interface {
	GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error)
	GetRange(ctx context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error)
}

// WeightManager reads and updates source weights.
type WeightManager interface {
	Snapshot() map[string]float64
	SetWeight(source string, weight float64) error
}

// ObservationStore accepts and serves raw observations.
type ObservationStore interface {
	Append(ctx context.Context, obs fees.Observation) error
	GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error)
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the REST endpoints.
type Handler struct {
	status       StatusProvider
	records      RecordReader
	weights      WeightManager
	observations ObservationStore
	hub          *Hub
	checks       map[string]HealthCheck
	logger       *logging.Logger
	now          func() time.Time
}

// NewHandler creates a handler. hub may be nil to disable streaming.
func NewHandler(status StatusProvider, records RecordReader, weights WeightManager, observations ObservationStore, hub *Hub, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Handler{
		status:       status,
		records:      records,
		weights:      weights,
		observations: observations,
		hub:          hub,
		checks:       make(map[string]HealthCheck),
		logger:       logger,
		now:          time.Now,
	}
}

// AddHealthCheck registers a dependency check for /health. It must be
// called before the server starts.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// RegisterRoutes mounts every route on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	v1 := e.Group("/v1")
	v1.GET("/status", h.Status)
	v1.GET("/records/:base/:quote/latest", h.LatestRecord)
	v1.GET("/records/:base/:quote", h.RecordRange)
	v1.GET("/weights", h.Weights)
	v1.PUT("/weights/:source", h.SetWeight)
	v1.POST("/observations", h.SubmitObservation)
	v1.GET("/observations", h.FreshObservations)

	if h.hub != nil {
		e.GET("/ws", h.hub.HandleWebSocket)
	}
}

type symbolRequest struct {
	Base  string `param:"base" validate:"required"`
	Quote string `param:"quote" validate:"required"`
}

func (r symbolRequest) symbol() string {
	return fees.NormalizeSymbol(r.Base + "/" + r.Quote)
}

type rangeRequest struct {
	Base  string `param:"base" validate:"required"`
	Quote string `param:"quote" validate:"required"`
	From  string `query:"from"`
	To    string `query:"to"`
}

func (r rangeRequest) symbol() string {
	return fees.NormalizeSymbol(r.Base + "/" + r.Quote)
}

type weightRequest struct {
	Source string   `param:"source" validate:"required"`
	Weight *float64 `json:"weight" validate:"required"`
}

type observationsRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	MaxAge string `query:"max_age" default:"5m"`
}

// Health reports liveness and, when checks are registered, the state of
// each dependency. A failing check answers 503.
func (h *Handler) Health(c echo.Context) error {
	if len(h.checks) == 0 {
		return successResponse(c, map[string]string{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := "ok"
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", "check", name, "error", err)
			status = "degraded"
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{"status": status, "checks": results}
	if status != "ok" {
		return dataResponse(c, http.StatusServiceUnavailable, body)
	}
	return successResponse(c, body)
}

// Status returns the engine status.
func (h *Handler) Status(c echo.Context) error {
	return successResponse(c, h.status.Status())
}

// LatestRecord returns the newest record of a symbol.
func (h *Handler) LatestRecord(c echo.Context) error {
	req := &symbolRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	rec, err := h.records.GetLatest(c.Request().Context(), req.symbol())
	if err != nil {
		h.logger.Debug("Latest record lookup failed", "symbol", req.symbol(), "error", err)
		return errorResponse(c, err)
	}
	return successResponse(c, rec)
}

// RecordRange returns the records of a symbol in [from, to]. Both bounds
// are RFC3339; the default window is the last hour.
func (h *Handler) RecordRange(c echo.Context) error {
	req := &rangeRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}

	to := h.now().UTC()
	if req.To != "" {
		t, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return badRequestResponse(c, []ValidationError{{Code: "ERR_FORMAT", Field: "to", Message: "to must be RFC3339"}})
		}
		to = t
	}
	from := to.Add(-defaultRange)
	if req.From != "" {
		t, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return badRequestResponse(c, []ValidationError{{Code: "ERR_FORMAT", Field: "from", Message: "from must be RFC3339"}})
		}
		from = t
	}
	if from.After(to) || to.Sub(from) > maxRange {
		return badRequestResponse(c, []ValidationError{{
			Code:    "ERR_RANGE",
			Message: fmt.Sprintf("from must precede to by at most %s", maxRange),
		}})
	}

	records, err := h.records.GetRange(c.Request().Context(), req.symbol(), from, to)
	if err != nil {
		h.logger.Error("Record range lookup failed", "symbol", req.symbol(), "error", err)
		return errorResponse(c, err)
	}
	if records == nil {
		records = []fees.AggregatedRecord{}
	}
	return successResponse(c, records)
}

// Weights returns the current source weights.
func (h *Handler) Weights(c echo.Context) error {
	return successResponse(c, h.weights.Snapshot())
}

// SetWeight updates one source weight.
func (h *Handler) SetWeight(c echo.Context) error {
	req := &weightRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	if err := h.weights.SetWeight(req.Source, *req.Weight); err != nil {
		return errorResponse(c, err)
	}
	h.logger.Info("Source weight updated", "source", req.Source, "weight", *req.Weight)
	return successResponse(c, map[string]float64{req.Source: *req.Weight})
}

// SubmitObservation ingests one observation.
func (h *Handler) SubmitObservation(c echo.Context) error {
	req := &fees.RawObservation{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	obs, err := fees.ParseObservation(*req)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := h.observations.Append(c.Request().Context(), obs); err != nil {
		h.logger.Error("Failed to store observation", "source", obs.Source, "symbol", obs.Symbol, "error", err)
		return errorResponse(c, err)
	}
	metrics.RecordObservation(obs.Source, string(obs.Kind()))
	return createdResponse(c, obs.ToRaw())
}

// FreshObservations lists the observations of a symbol inside max_age.
func (h *Handler) FreshObservations(c echo.Context) error {
	req := &observationsRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	maxAge, err := time.ParseDuration(req.MaxAge)
	if err != nil || maxAge <= 0 {
		return badRequestResponse(c, []ValidationError{{Code: "ERR_FORMAT", Field: "max_age", Message: "max_age must be a positive duration"}})
	}

	symbol := fees.NormalizeSymbol(req.Symbol)
	observations, err := h.observations.GetFreshObservations(c.Request().Context(), symbol, maxAge)
	if err != nil {
		h.logger.Error("Failed to read observations", "symbol", symbol, "error", err)
		return errorResponse(c, err)
	}
	if len(observations) > maxObservations {
		observations = observations[len(observations)-maxObservations:]
	}

	out := make([]fees.RawObservation, 0, len(observations))
	for _, obs := range observations {
		out = append(out, obs.ToRaw())
	}
	return successResponse(c, out)
}

