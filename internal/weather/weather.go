// Package weather fetches per-hour cloud cover and direct radiation for the
// reference location.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
)

// Hour is one hourly forecast sample.
type Hour struct {
	Timestamp          time.Time `json:"timestamp"`
	CloudCoverPct      float64   `json:"cloudCoverPercent"`
	DirectRadiationWm2 float64   `json:"directRadiationWm2"`
}

// Provider supplies an ordered hourly forecast. An empty sequence means "no
// data"; the orchestrator treats that as a hard failure.
type Provider interface {
	Hourly(ctx context.Context, lat, lon float64, ref time.Time, hours int) ([]Hour, error)
}

// Client fetches from an Open-Meteo style endpoint.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL string, hc *http.Client, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse weather url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: u, http: hc, timeout: timeout, logger: logger}, nil
}

type apiResponse struct {
	Hourly struct {
		Time            []string  `json:"time"`
		CloudCover      []float64 `json:"cloud_cover"`
		DirectRadiation []float64 `json:"direct_radiation"`
	} `json:"hourly"`
}

func (c *Client) Hourly(ctx context.Context, lat, lon float64, ref time.Time, hours int) ([]Hour, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", "cloud_cover,direct_radiation")
	q.Set("timezone", "UTC")
	q.Set("forecast_days", strconv.Itoa(forecastDays(ref, hours)))

	u := *c.base
	u.RawQuery = q.Encode()

	ctxReq, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxReq, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency("weather", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("weather fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("weather status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	return c.window(api, ref, hours), nil
}

// window filters the raw series to [hour-aligned ref, ref+hours).
func (c *Client) window(api apiResponse, ref time.Time, hours int) []Hour {
	from := ref.UTC().Truncate(time.Hour)
	to := from.Add(time.Duration(hours) * time.Hour)

	n := len(api.Hourly.Time)
	out := make([]Hour, 0, hours)
	for i := 0; i < n; i++ {
		ts, err := parseHour(api.Hourly.Time[i])
		if err != nil {
			c.logger.Debug("skip unparseable weather timestamp", "value", api.Hourly.Time[i], "err", err)
			continue
		}
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		h := Hour{Timestamp: ts}
		if i < len(api.Hourly.CloudCover) {
			h.CloudCoverPct = api.Hourly.CloudCover[i]
		}
		if i < len(api.Hourly.DirectRadiation) {
			h.DirectRadiationWm2 = api.Hourly.DirectRadiation[i]
		}
		out = append(out, h)
	}
	return out
}

// parseHour accepts full RFC 3339 as well as the offset-less minute form
// Open-Meteo emits for a fixed timezone.
func parseHour(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func forecastDays(ref time.Time, hours int) int {
	end := ref.UTC().Add(time.Duration(hours) * time.Hour)
	days := int(end.Sub(ref.UTC().Truncate(24*time.Hour)).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	if days > 7 {
		days = 7
	}
	return days
}
