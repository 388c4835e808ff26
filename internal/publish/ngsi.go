// Package publish forwards computed observations to an external NGSI-LD
// context broker. Publishing is a fire-and-forget side effect of a successful
// sync: failures are logged by callers and never fail the pipeline.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/config"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/store"
)

// ldContext is the JSON-LD context for the agri-food smart data models.
var ldContext = []string{
	"https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld",
	"https://raw.githubusercontent.com/smart-data-models/dataModel.Agrifood/master/context.jsonld",
}

// Publisher forwards one computed observation to an external graph store.
type Publisher interface {
	PublishObservation(ctx context.Context, rec store.ObservationRecord) error
}

// Noop discards all publishes; used when no broker is configured.
type Noop struct{}

func (Noop) PublishObservation(context.Context, store.ObservationRecord) error { return nil }

// NGSI publishes observations as greenhouse/parcel operation entities to an
// NGSI-LD context broker (FIWARE Orion).
type NGSI struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNGSI creates an NGSI-LD publisher.
func NewNGSI(cfg config.PublishConfig, logger *slog.Logger) *NGSI {
	return &NGSI{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// PublishObservation upserts one observation entity. A 409 from the broker
// means the entity exists already; that counts as success since observations
// are immutable.
func (p *NGSI) PublishObservation(ctx context.Context, rec store.ObservationRecord) error {
	entity := map[string]any{
		"@context": ldContext,
		"id": fmt.Sprintf("urn:ngsi-ld:AgriParcelRecord:%s:%s:%s",
			rec.FarmID, strings.ToLower(string(rec.Metric)), rec.AcquisitionDate.Format("2006-01-02")),
		"type": "AgriParcelRecord",
		"hasAgriParcel": map[string]any{
			"type":   "Relationship",
			"object": "urn:ngsi-ld:AgriParcel:" + rec.FarmID,
		},
		"observedAt": map[string]any{
			"type":  "Property",
			"value": rec.AcquisitionDate.Format(time.RFC3339),
		},
		strings.ToLower(string(rec.Metric)): map[string]any{
			"type":  "Property",
			"value": rec.MeanValue,
		},
	}

	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/ngsi-ld/v1/entities", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ld+json")
	req.Header.Set("Accept", "application/ld+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		p.logger.DebugContext(ctx, "observation entity already published",
			slog.String("farm_id", rec.FarmID),
			slog.String("metric", string(rec.Metric)),
		)
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("broker rejected entity: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}
