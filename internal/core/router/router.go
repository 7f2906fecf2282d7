// Package router validates incoming score requests and shapes responses.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/core/config"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
	"github.com/Tslilon/kinspariscoffeeshades/internal/scores"
)

// ScoreRequest is a validated query for one scoring window.
type ScoreRequest struct {
	Ref       time.Time
	Hours     int
	Precision bool
}

// WindowComputer produces the aggregate for a validated request.
type WindowComputer interface {
	ComputeWindow(ctx context.Context, ref time.Time, hours int, precision bool) (*scores.Aggregate, error)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleScores validates query params, runs the computation and writes the
// aggregate. An unavailable weather upstream maps to 502; everything else
// unexpected maps to 500.
func HandleScores(logger *slog.Logger, cfg config.Config, h WindowComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		req, err := ParseScoreRequest(r, cfg)
		if err != nil {
			writeError(sw, http.StatusBadRequest, "bad_request", err.Error())
			observability.ObserveHTTP(r.Method, "/scores", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		agg, err := h.ComputeWindow(r.Context(), req.Ref, req.Hours, req.Precision)
		if err != nil {
			var se *scores.Error
			switch {
			case errors.As(err, &se):
				writeError(sw, http.StatusBadGateway, se.Code, se.Message)
			default:
				logger.Error("score computation failed", "err", err)
				writeError(sw, http.StatusInternalServerError, "internal_error", "score computation failed")
			}
			observability.ObserveHTTP(r.Method, "/scores", sw.code, time.Since(start).Seconds())
			return
		}

		sw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(sw).Encode(agg); err != nil {
			logger.Warn("encode response", "err", err)
		}
		observability.ObserveHTTP(r.Method, "/scores", sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Message: msg})
}

// ParseScoreRequest reads hours, precision and an optional RFC 3339 "at"
// reference instant. Absent params fall back to configured defaults and the
// current time. The offset of "at" is kept: mask slots and months follow the
// local clock of the request.
func ParseScoreRequest(r *http.Request, cfg config.Config) (ScoreRequest, error) {
	q := r.URL.Query()

	hours := cfg.HoursDefault
	if raw := strings.TrimSpace(q.Get("hours")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ScoreRequest{}, fmt.Errorf("invalid hours %q: must be an integer", raw)
		}
		if n < 1 {
			return ScoreRequest{}, errors.New("hours must be at least 1")
		}
		if n > cfg.HoursMax {
			return ScoreRequest{}, fmt.Errorf("hours must be at most %d", cfg.HoursMax)
		}
		hours = n
	}

	precision := false
	if raw := strings.TrimSpace(q.Get("precision")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return ScoreRequest{}, fmt.Errorf("invalid precision %q: must be a boolean", raw)
		}
		precision = b
	}

	ref := time.Now()
	if raw := strings.TrimSpace(q.Get("at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ScoreRequest{}, fmt.Errorf("invalid at %q: must be RFC 3339", raw)
		}
		ref = t
	}

	return ScoreRequest{Ref: ref, Hours: hours, Precision: precision}, nil
}
