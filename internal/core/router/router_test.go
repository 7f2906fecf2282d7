package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/core/config"
	"github.com/Tslilon/kinspariscoffeeshades/internal/scores"
)

type fakeComputer struct {
	gotHours     int
	gotPrecision bool
	gotRef       time.Time
	agg          *scores.Aggregate
	err          error
}

func (f *fakeComputer) ComputeWindow(_ context.Context, ref time.Time, hours int, precision bool) (*scores.Aggregate, error) {
	f.gotRef, f.gotHours, f.gotPrecision = ref, hours, precision
	if f.err != nil {
		return nil, f.err
	}
	return f.agg, nil
}

func testConfig() config.Config {
	return config.Config{HoursDefault: 12, HoursMax: 48}
}

func serve(t *testing.T, target string, h *fakeComputer) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	HandleScores(slog.Default(), testConfig(), h)(rr, req)
	return rr
}

func TestHandleScores_Defaults(t *testing.T) {
	h := &fakeComputer{agg: &scores.Aggregate{UpdatedAt: time.Now()}}
	rr := serve(t, "/scores", h)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200, body=%s", rr.Code, rr.Body.String())
	}
	if h.gotHours != 12 {
		t.Fatalf("hours=%d want default 12", h.gotHours)
	}
	if h.gotPrecision {
		t.Fatal("precision should default to false")
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q want application/json", ct)
	}
}

func TestHandleScores_ExplicitParams(t *testing.T) {
	h := &fakeComputer{agg: &scores.Aggregate{}}
	rr := serve(t, "/scores?hours=6&precision=true&at=2024-06-15T12:00:00%2B02:00", h)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	if h.gotHours != 6 || !h.gotPrecision {
		t.Fatalf("got hours=%d precision=%v", h.gotHours, h.gotPrecision)
	}
	want := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	if !h.gotRef.Equal(want) {
		t.Fatalf("ref=%v want %v", h.gotRef, want)
	}
	// the +02:00 offset is kept so downstream slot selection sees hour 12
	if h.gotRef.Hour() != 12 {
		t.Fatalf("local hour=%d want 12", h.gotRef.Hour())
	}
}

func TestHandleScores_BadParams(t *testing.T) {
	cases := []struct {
		name   string
		target string
	}{
		{"non-integer hours", "/scores?hours=abc"},
		{"zero hours", "/scores?hours=0"},
		{"negative hours", "/scores?hours=-3"},
		{"hours above max", "/scores?hours=120"},
		{"bad precision", "/scores?precision=maybe"},
		{"bad at", "/scores?at=yesterday"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &fakeComputer{agg: &scores.Aggregate{}}
			rr := serve(t, tc.target, h)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d want 400", rr.Code)
			}
			var body struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("error body is not json: %v", err)
			}
			if body.Code != "bad_request" {
				t.Fatalf("code=%q want bad_request", body.Code)
			}
		})
	}
}

func TestHandleScores_WeatherUnavailable(t *testing.T) {
	h := &fakeComputer{err: scores.ErrNoWeatherData}
	rr := serve(t, "/scores", h)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", rr.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not json: %v", err)
	}
	if body.Code != "weather_unavailable" {
		t.Fatalf("code=%q want weather_unavailable", body.Code)
	}
}

func TestHandleScores_InternalError(t *testing.T) {
	h := &fakeComputer{err: errors.New("boom")}
	rr := serve(t, "/scores", h)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatal("internal error details must not leak to the client")
	}
}

func TestHandleScores_EncodesAggregate(t *testing.T) {
	h := &fakeComputer{agg: &scores.Aggregate{
		Points: []scores.Point{{ID: "p-1", Lat: 48.85, Lon: 2.35, ScoreByHour: []float64{0.5}, LabelByHour: []string{"partial"}}},
		Meta:   scores.Meta{TotalPoints: 1, HoursComputed: 1},
	}}
	rr := serve(t, "/scores?hours=1", h)

	var got scores.Aggregate
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Points) != 1 || got.Points[0].ID != "p-1" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
	if got.Meta.TotalPoints != 1 {
		t.Fatalf("meta=%+v", got.Meta)
	}
}
