// Package catalog queries the Copernicus Data Space Ecosystem (CDSE) OData
// catalog for satellite products intersecting a bounding box and date range.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/config"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

// ErrNoProducts is returned when the catalog has no product for the requested
// area and date range. Retrying an unchanged query yields the same empty
// result, so callers surface this as a not-found condition.
var ErrNoProducts = errors.New("no catalog product for bbox/date range")

// ErrMissingCredentials marks an authentication configuration error. It is
// raised at construction time, never retried.
var ErrMissingCredentials = errors.New("copernicus credentials not configured")

// Client handles communication with the CDSE catalog and identity provider.
// Catalog queries are idempotent and cheap to simply fail, so this layer does
// not retry; retry policy lives in the download manager.
type Client struct {
	cfg        config.CopernicusConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a CDSE catalog client. Missing credentials are a startup
// failure: every catalog and download call needs a token exchange.
func NewClient(cfg config.CopernicusConfig) (*Client, error) {
	if !cfg.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}, nil
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// AccessToken exchanges the stored credentials for a short-lived bearer token
// via the OAuth2 password grant. A token is fetched fresh for each catalog
// query and each download attempt; tokens are cheap to mint and short-lived,
// so none are cached across calls.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", "cdse-public")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("authentication failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}
	return payload.AccessToken, nil
}

// Search queries the catalog for products intersecting bbox within
// [from, to], newest first. Results are returned in catalog order (ingestion
// time descending) so "first seen" is well defined for selection fallbacks.
func (c *Client) Search(ctx context.Context, bbox geo.BoundingBox, from, to time.Time, platform Platform) ([]ProductRecord, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("$filter", buildFilter(bbox, from, to, platform))
	params.Set("$top", strconv.Itoa(c.cfg.MaxProducts))
	params.Set("$orderby", "ContentDate/Start desc")
	params.Set("$expand", "Attributes")

	searchURL := c.cfg.CatalogURL + "/Products?" + params.Encode()

	c.logger.DebugContext(ctx, "searching CDSE catalog",
		slog.String("platform", string(platform)),
		slog.String("url", searchURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw odataResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	products := make([]ProductRecord, 0, len(raw.Value))
	for _, item := range raw.Value {
		rec := ProductRecord{
			ID:         item.ID,
			Title:      item.Name,
			IngestedAt: item.ContentDate.Start,
		}
		if platform == PlatformOptical {
			rec.CloudCover = 100
			for _, attr := range item.Attributes {
				if attr.Name == "cloudCover" {
					if v, ok := attr.floatValue(); ok {
						rec.CloudCover = v
					}
					break
				}
			}
		}
		products = append(products, rec)
	}

	c.logger.DebugContext(ctx, "catalog search completed",
		slog.String("platform", string(platform)),
		slog.Int("product_count", len(products)),
	)

	return products, nil
}

// DownloadURL returns the streamed archive endpoint for a product id.
func (c *Client) DownloadURL(productID string) string {
	return fmt.Sprintf("%s/Products(%s)/$value", c.cfg.DownloadURL, productID)
}
