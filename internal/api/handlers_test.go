package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/download"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/pipeline"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

type fakeCalculator struct {
	lastReq pipeline.Request
	result  pipeline.Result
	err     error
}

func (f *fakeCalculator) CalculateNDVI(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeCalculator) CalculateMoisture(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServer(t *testing.T, calc Calculator, obs store.ObservationStore) *httptest.Server {
	t.Helper()
	h := NewHandlers(calc, obs, testLogger())
	srv := httptest.NewServer(NewRouter(h, testLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCalculateNDVIEndpoint(t *testing.T) {
	cloud := 12.0
	calc := &fakeCalculator{result: pipeline.Result{
		Metric:          store.MetricNDVI,
		Mean:            0.52,
		Min:             0.1,
		Max:             0.9,
		AcquisitionDate: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		CloudCover:      &cloud,
	}}
	srv := testServer(t, calc, store.NewMemoryObservations())

	resp := postJSON(t, srv.URL+"/api/v1/ndvi/calculate", `{
		"farmId": "farm-1",
		"bbox": [105, 21, 106, 22],
		"startDate": "2026-08-01",
		"endDate": "2026-08-15"
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body pipeline.Result
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Mean != 0.52 {
		t.Errorf("mean = %v", body.Mean)
	}
	if body.Metric != store.MetricNDVI {
		t.Errorf("metric = %s", body.Metric)
	}

	if calc.lastReq.FarmID != "farm-1" {
		t.Errorf("farm id = %s", calc.lastReq.FarmID)
	}
	if !calc.lastReq.From.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", calc.lastReq.From)
	}
	// End date is pushed to the end of its day so same-day scenes match.
	if calc.lastReq.To.Before(time.Date(2026, 8, 15, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v, want end of Aug 15", calc.lastReq.To)
	}
}

func TestCalculateRejectsBadBody(t *testing.T) {
	srv := testServer(t, &fakeCalculator{}, store.NewMemoryObservations())

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{`},
		{name: "bad start date", body: `{"bbox":[105,21,106,22],"startDate":"soon","endDate":"2026-08-15"}`},
		{name: "bad end date", body: `{"bbox":[105,21,106,22],"startDate":"2026-08-01","endDate":"later"}`},
		{name: "reversed range", body: `{"bbox":[105,21,106,22],"startDate":"2026-08-15","endDate":"2026-08-01"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/v1/ndvi/calculate", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCalculateErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid bbox", err: geo.ErrInvalidBBox, want: http.StatusBadRequest},
		{name: "no products", err: catalog.ErrNoProducts, want: http.StatusNotFound},
		{name: "exhausted", err: download.ErrAttemptsExhausted, want: http.StatusBadGateway},
		{name: "unexpected", err: io.ErrUnexpectedEOF, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &fakeCalculator{err: tt.err}, store.NewMemoryObservations())
			resp := postJSON(t, srv.URL+"/api/v1/soil-moisture/calculate",
				`{"bbox":[105,21,106,22],"startDate":"2026-08-01","endDate":"2026-08-15"}`)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}

			var apiErr APIError
			if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if apiErr.Code == "" {
				t.Error("error body has no code")
			}
		})
	}
}

func TestObservationsEndpoint(t *testing.T) {
	obs := store.NewMemoryObservations()
	ctx := context.Background()
	for _, d := range []int{5, 10, 15} {
		if _, err := obs.Save(ctx, store.ObservationRecord{
			FarmID:          "farm-1",
			AcquisitionDate: time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC),
			Metric:          store.MetricNDVI,
			MeanValue:       0.4,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := obs.Save(ctx, store.ObservationRecord{
		FarmID:          "farm-1",
		AcquisitionDate: time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC),
		Metric:          store.MetricSoilMoisture,
		MeanValue:       0.3,
	}); err != nil {
		t.Fatal(err)
	}

	srv := testServer(t, &fakeCalculator{}, obs)

	resp, err := http.Get(srv.URL + "/api/v1/observations/farm-1?startDate=2026-08-01&endDate=2026-08-12")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Defaults to NDVI; the moisture record and the out-of-range NDVI record
	// are excluded.
	if len(body.Observations) != 2 {
		t.Fatalf("got %d observations, want 2", len(body.Observations))
	}
	if !body.Observations[0].AcquisitionDate.Before(body.Observations[1].AcquisitionDate) {
		t.Error("observations not ordered by date")
	}
}

func TestObservationsMetricFilter(t *testing.T) {
	obs := store.NewMemoryObservations()
	if _, err := obs.Save(context.Background(), store.ObservationRecord{
		FarmID:          "farm-1",
		AcquisitionDate: time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC),
		Metric:          store.MetricSoilMoisture,
		MeanValue:       0.3,
	}); err != nil {
		t.Fatal(err)
	}

	srv := testServer(t, &fakeCalculator{}, obs)

	resp, err := http.Get(srv.URL + "/api/v1/observations/farm-1?metricType=SOIL_MOISTURE")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Observations) != 1 {
		t.Errorf("got %d observations, want 1", len(body.Observations))
	}

	resp2, err := http.Get(srv.URL + "/api/v1/observations/farm-1?metricType=BIOMASS")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown metric status = %d, want 400", resp2.StatusCode)
	}
}

func TestObservationsEmptyIsArray(t *testing.T) {
	srv := testServer(t, &fakeCalculator{}, store.NewMemoryObservations())

	resp, err := http.Get(srv.URL + "/api/v1/observations/farm-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"observations":[]`) {
		t.Errorf("empty history must serialize as [], got %s", raw)
	}
}

func TestHealthAndNotFound(t *testing.T) {
	srv := testServer(t, &fakeCalculator{}, store.NewMemoryObservations())

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("response missing request id header")
	}

	resp2, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route status = %d", resp2.StatusCode)
	}
}
