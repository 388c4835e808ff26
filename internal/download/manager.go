// Package download streams product archives from the CDSE zipper service to
// local storage, with retry under rate limiting, partial-download salvage and
// off-path extraction.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/catalog"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/config"
)

// ErrAttemptsExhausted is returned once every download attempt for a product
// has failed. The wrapped cause is the last attempt's error.
var ErrAttemptsExhausted = errors.New("download attempts exhausted")

// TokenSource mints a fresh bearer token. Each download attempt fetches its
// own token; product downloads routinely outlive a token's lifetime.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Manager downloads and unpacks product archives. Archives are keyed by
// product title, so near-simultaneous requests for the same product converge
// on one idempotent unpacked directory. Cleanup of both archive and directory
// is explicitly the caller's responsibility.
type Manager struct {
	cfg        config.DownloadConfig
	tokens     TokenSource
	urlFor     func(productID string) string
	httpClient *http.Client
	extractors *semaphore.Weighted
	sleep      func(context.Context, time.Duration) error
	logger     *slog.Logger
}

// NewManager creates a download manager. urlFor maps a product id to its
// streamed archive endpoint (catalog.Client.DownloadURL in production).
func NewManager(cfg config.DownloadConfig, tokens TokenSource, urlFor func(string) string) *Manager {
	return &Manager{
		cfg:    cfg,
		tokens: tokens,
		urlFor: urlFor,
		httpClient: &http.Client{
			// No overall client timeout: archives are multi-hundred-MB and
			// stream for minutes. Stalls are bounded by the response read
			// deadline set per attempt.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		extractors: semaphore.NewWeighted(cfg.MaxExtractors),
		sleep:      sleepCtx,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the manager.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// ArchivePath returns where the product's zip archive lives on disk.
func (m *Manager) ArchivePath(title string) string {
	return filepath.Join(m.cfg.OutputDir, title+".zip")
}

// ProductDir returns where the product unpacks to.
func (m *Manager) ProductDir(title string) string {
	return filepath.Join(m.cfg.OutputDir, title+".SAFE")
}

// Fetch returns a local directory containing the unpacked product. If the
// directory already exists the call returns immediately without touching the
// network.
func (m *Manager) Fetch(ctx context.Context, product catalog.ProductRecord) (string, error) {
	if err := os.MkdirAll(m.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	extractPath := m.ProductDir(product.Title)
	if dirExists(extractPath) {
		m.logger.InfoContext(ctx, "product already unpacked",
			slog.String("title", product.Title),
			slog.String("path", extractPath),
		)
		return extractPath, nil
	}

	zipPath := m.ArchivePath(product.Title)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		// A partial archive from an earlier run may already be complete;
		// try to salvage it before spending bandwidth.
		if m.salvagePartial(ctx, zipPath, extractPath) {
			return extractPath, nil
		}

		m.logger.InfoContext(ctx, "downloading product",
			slog.String("title", product.Title),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.cfg.MaxAttempts),
		)

		delay, err := m.attempt(ctx, product.ID, zipPath)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		removeQuietly(zipPath)

		if attempt == m.cfg.MaxAttempts {
			break
		}

		if delay == 0 {
			delay = Backoff(attempt, m.cfg.BaseDelay)
		}
		m.logger.WarnContext(ctx, "download attempt failed",
			slog.String("title", product.Title),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		if err := m.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, m.cfg.MaxAttempts, lastErr)
	}

	if err := m.extract(ctx, zipPath, m.cfg.OutputDir); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", product.Title, err)
	}

	if dirExists(extractPath) {
		return extractPath, nil
	}
	// Some products unpack under a slightly different directory name; scan
	// for one carrying the title.
	if found := findProductDir(m.cfg.OutputDir, product.Title); found != "" {
		return found, nil
	}
	return extractPath, nil
}

// attempt performs one streamed download. It returns a non-zero delay when
// the server dictated the retry pace (rate limiting); zero means the caller
// applies exponential backoff.
func (m *Manager) attempt(ctx context.Context, productID, zipPath string) (time.Duration, error) {
	token, err := m.tokens.AccessToken(ctx)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.urlFor(productID), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return RateLimitDelay(resp.Header, m.cfg.RateLimitDelay), fmt.Errorf("rate limited: status 429")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", zipPath, err)
	}

	written, err := io.Copy(out, readDeadline(resp.Body, m.cfg.ReadTimeout))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("download stream failed: %w", err)
	}

	// Integrity check: a short read is a failed attempt, not a success.
	if resp.ContentLength > 0 && written < resp.ContentLength {
		return 0, fmt.Errorf("incomplete download: %d/%d bytes", written, resp.ContentLength)
	}

	m.logger.InfoContext(ctx, "download complete",
		slog.String("path", zipPath),
		slog.Int64("bytes", written),
	)
	return 0, nil
}

// salvagePartial inspects a leftover archive. Large enough to plausibly be
// complete, it is unpacked in place; corrupt or small, it is discarded so the
// next attempt restarts from zero. There is no byte-range resume against the
// remote.
func (m *Manager) salvagePartial(ctx context.Context, zipPath, extractPath string) bool {
	info, err := os.Stat(zipPath)
	if err != nil {
		return false
	}

	if info.Size() < m.cfg.SalvageThreshold {
		removeQuietly(zipPath)
		return false
	}

	if err := m.extract(ctx, zipPath, m.cfg.OutputDir); err != nil {
		m.logger.WarnContext(ctx, "salvage of partial archive failed, discarding",
			slog.String("path", zipPath),
			slog.String("error", err.Error()),
		)
		removeQuietly(zipPath)
		return false
	}
	if dirExists(extractPath) {
		m.logger.InfoContext(ctx, "salvaged partial archive",
			slog.String("path", zipPath),
		)
		return true
	}
	removeQuietly(zipPath)
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove file", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func findProductDir(outDir, title string) string {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".SAFE") && strings.Contains(e.Name(), title) {
			return filepath.Join(outDir, e.Name())
		}
	}
	return ""
}
