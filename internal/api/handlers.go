package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/download"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/pipeline"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/raster"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

// Calculator is the on-demand index pipeline; satisfied by pipeline.Pipeline.
type Calculator interface {
	CalculateNDVI(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	CalculateMoisture(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	calc         Calculator
	observations store.ObservationStore
	logger       *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(calc Calculator, observations store.ObservationStore, logger *slog.Logger) *Handlers {
	return &Handlers{
		calc:         calc,
		observations: observations,
		logger:       logger,
	}
}

// calculateRequest is the request body of the calculate endpoints. Dates are
// date-only strings; full RFC 3339 timestamps are also accepted.
type calculateRequest struct {
	FarmID    string    `json:"farmId,omitempty"`
	BBox      []float64 `json:"bbox"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (h *Handlers) decodeCalculate(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var body calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return pipeline.Request{}, false
	}

	from, err := parseDate(body.StartDate)
	if err != nil {
		WriteBadRequest(w, "invalid startDate: expected YYYY-MM-DD")
		return pipeline.Request{}, false
	}
	to, err := parseDate(body.EndDate)
	if err != nil {
		WriteBadRequest(w, "invalid endDate: expected YYYY-MM-DD")
		return pipeline.Request{}, false
	}
	if to.Before(from) {
		WriteBadRequest(w, "endDate precedes startDate")
		return pipeline.Request{}, false
	}
	// The catalog range is inclusive; push the end date to the end of its day
	// so same-day acquisitions are not excluded.
	to = to.Add(24*time.Hour - time.Millisecond)

	return pipeline.Request{
		FarmID: body.FarmID,
		BBox:   body.BBox,
		From:   from,
		To:     to,
	}, true
}

// CalculateNDVI handles POST /api/v1/ndvi/calculate.
func (h *Handlers) CalculateNDVI(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCalculate(w, r)
	if !ok {
		return
	}

	res, err := h.calc.CalculateNDVI(r.Context(), req)
	if err != nil {
		h.writeCalculateError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// CalculateSoilMoisture handles POST /api/v1/soil-moisture/calculate.
func (h *Handlers) CalculateSoilMoisture(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCalculate(w, r)
	if !ok {
		return
	}

	res, err := h.calc.CalculateMoisture(r.Context(), req)
	if err != nil {
		h.writeCalculateError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// writeCalculateError maps pipeline failures to HTTP statuses: bad geometry is
// the caller's fault, an empty catalog window or unusable product is a 404,
// and upstream transfer or auth failures are a 502.
func (h *Handlers) writeCalculateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidBBox):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, catalog.ErrNoProducts), errors.Is(err, raster.ErrBandNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, download.ErrAttemptsExhausted), errors.Is(err, catalog.ErrMissingCredentials):
		WriteUpstreamError(w, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "calculation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "calculation failed")
	}
}

// observationsResponse is the body of the history endpoint.
type observationsResponse struct {
	FarmID       string                    `json:"farmId"`
	Metric       store.Metric              `json:"metricType"`
	Observations []store.ObservationRecord `json:"observations"`
}

// Observations handles GET /api/v1/observations/{farmID}. Optional query
// parameters: metricType (NDVI, default, or SOIL_MOISTURE), startDate and
// endDate (date-only, defaulting to the trailing year).
func (h *Handlers) Observations(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmID")

	metric := store.MetricNDVI
	if s := r.URL.Query().Get("metricType"); s != "" {
		switch store.Metric(s) {
		case store.MetricNDVI, store.MetricSoilMoisture:
			metric = store.Metric(s)
		default:
			WriteBadRequest(w, "unknown metricType: "+s)
			return
		}
	}

	to := time.Now().UTC()
	from := to.AddDate(-1, 0, 0)
	var err error
	if s := r.URL.Query().Get("startDate"); s != "" {
		if from, err = parseDate(s); err != nil {
			WriteBadRequest(w, "invalid startDate: expected YYYY-MM-DD")
			return
		}
	}
	if s := r.URL.Query().Get("endDate"); s != "" {
		if to, err = parseDate(s); err != nil {
			WriteBadRequest(w, "invalid endDate: expected YYYY-MM-DD")
			return
		}
		to = to.Add(24*time.Hour - time.Millisecond)
	}

	records, err := h.observations.Query(r.Context(), farmID, metric, from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "observation query failed",
			slog.String("farm_id", farmID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "observation query failed")
		return
	}
	if records == nil {
		records = []store.ObservationRecord{}
	}

	WriteJSON(w, http.StatusOK, observationsResponse{
		FarmID:       farmID,
		Metric:       metric,
		Observations: records,
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
