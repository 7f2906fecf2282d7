// Package places fetches the point-of-interest directory.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
)

// Place is one point of interest. The scoring core only requires id and
// coordinates; the rest is passed through to the presentation layer.
type Place struct {
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	Lat            float64        `json:"lat"`
	Lon            float64        `json:"lon"`
	OrientationDeg float64        `json:"orientationDeg"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Directory supplies the list of points. An empty list is a valid,
// degenerate result rather than an error.
type Directory interface {
	Places(ctx context.Context) ([]Place, error)
}

type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL string, hc *http.Client, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse places url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: u, http: hc, timeout: timeout, logger: logger}, nil
}

func (c *Client) Places(ctx context.Context) ([]Place, error) {
	ctxReq, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxReq, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build places request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency("places", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("places fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("places status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out []Place
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode places response: %w", err)
	}

	// points without an id or with out-of-range coordinates are dropped
	kept := out[:0]
	for _, p := range out {
		if strings.TrimSpace(p.ID) == "" {
			continue
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			c.logger.Debug("drop place with invalid coordinates", "id", p.ID, "lat", p.Lat, "lon", p.Lon)
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}
