// Package score combines shadow, orientation, elevation and cloud-cover
// factors into one normalized sun exposure score.
//
// The factors multiply rather than add: a point facing away from the sun,
// or under total cloud cover, or in deep shadow scores near zero no matter
// how favorable the other factors are.
package score

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
	"github.com/Tslilon/kinspariscoffeeshades/internal/tiles"
)

const (
	// sun below this elevation is unusable regardless of method
	minElevationDeg = 5

	// elevation score ramps in above this and saturates 20 degrees later
	elevationRampStartDeg = 8
	elevationRampSpanDeg  = 20

	radiationBonusThresholdWm2 = 100
	radiationBonus             = 1.1

	heuristicConfidence = 0.6

	// resolution 7 cells are roughly district-sized (~5 km2)
	densityRes = 7
)

// Input is everything needed to score one point at one instant.
// Azimuth and orientation share the same convention: south = 0, positive
// towards west.
type Input struct {
	SunAzimuthRad      float64
	SunElevationRad    float64
	OrientationDeg     float64
	CloudCoverPct      float64
	DirectRadiationWm2 float64
	Lat                float64
	Lon                float64
	At                 time.Time
	UsePrecision       bool
}

// Result is the outcome of hybrid scoring for one point at one instant.
type Result struct {
	Score      float64         `json:"score"`
	Method     tiles.Precision `json:"method"`
	Confidence float64         `json:"confidence"`
}

// ShadowResolver is the precomputed-shadow lookup the scorer consults in
// precision mode.
type ShadowResolver interface {
	Resolve(ctx context.Context, lat, lon float64, t time.Time) tiles.ShadowResult
}

type Scorer struct {
	resolver ShadowResolver
	refCell  h3.Cell
	logger   *slog.Logger
}

// New builds a scorer. The reference location anchors the density heuristic:
// points close to it (the dense city center) are assumed more built-up and
// more likely shadowed.
func New(resolver ShadowResolver, refLat, refLon float64, logger *slog.Logger) (*Scorer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: refLat, Lng: refLon}, densityRes)
	if err != nil {
		return nil, fmt.Errorf("reference cell: %w", err)
	}
	return &Scorer{resolver: resolver, refCell: cell, logger: logger}, nil
}

// Score computes the hybrid sun exposure score.
func (s *Scorer) Score(ctx context.Context, in Input) Result {
	elevDeg := in.SunElevationRad * 180 / math.Pi

	// sun below the usable threshold: zero with full confidence
	if elevDeg < minElevationDeg {
		observability.IncScore(string(tiles.PrecisionHeuristic))
		return Result{Score: 0, Method: tiles.PrecisionHeuristic, Confidence: 1}
	}

	shadowFactor := 0.0
	method := tiles.PrecisionHeuristic
	confidence := heuristicConfidence

	resolved := false
	if in.UsePrecision && s.resolver != nil {
		if sr := s.resolver.Resolve(ctx, in.Lat, in.Lon, in.At); sr.Precision == tiles.PrecisionPrecomputed {
			shadowFactor = sr.ShadowValue
			method = tiles.PrecisionPrecomputed
			confidence = sr.Confidence
			resolved = true
		}
	}
	if !resolved {
		shadowFactor = s.heuristicShadowFactor(in, elevDeg)
	}

	facing := facingScore(in.SunAzimuthRad, in.OrientationDeg)
	elevation := clamp((elevDeg-elevationRampStartDeg)/elevationRampSpanDeg, 0, 1)
	cloudPenalty := clamp(1-in.CloudCoverPct/100, 0, 1)
	bonus := 1.0
	if in.DirectRadiationWm2 > radiationBonusThresholdWm2 {
		bonus = radiationBonus
	}

	final := clamp(shadowFactor*facing*elevation*cloudPenalty*bonus, 0, 1)

	observability.IncScore(string(method))
	return Result{Score: final, Method: method, Confidence: confidence}
}

// heuristicShadowFactor is the deliberately coarse fallback when no
// precomputed tile covers the point. It collapses a rough
// density/sun-angle/facing estimate into a binary-ish factor.
func (s *Scorer) heuristicShadowFactor(in Input, elevDeg float64) float64 {
	est := 1.0
	est -= s.densityPenalty(in.Lat, in.Lon)
	if elevDeg < 15 {
		// low sun throws long shadows in any built-up area
		est -= 0.3
	}
	if facingNorth(in.OrientationDeg) {
		est -= 0.3
	}
	if est > 0 {
		return 0.8
	}
	return 0.2
}

// densityPenalty buckets the location into a district-scale cell and
// penalizes by grid distance from the dense reference center.
func (s *Scorer) densityPenalty(lat, lon float64) float64 {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, densityRes)
	if err != nil {
		return 0.3
	}
	dist, err := h3.GridDistance(s.refCell, cell)
	if err != nil {
		return 0.3
	}
	switch {
	case dist <= 2:
		return 0.5
	case dist <= 5:
		return 0.3
	default:
		return 0.1
	}
}

// facingScore measures how directly the point's orientation aligns with the
// sun. Both angles are south-referenced; the smaller of the two angular
// differences is used.
func facingScore(sunAzimuthRad, orientationDeg float64) float64 {
	sunDeg := sunAzimuthRad * 180 / math.Pi
	diff := math.Mod(math.Abs(sunDeg-orientationDeg), 360)
	if diff > 180 {
		diff = 360 - diff
	}
	return math.Max(0, math.Cos(diff*math.Pi/180))
}

// facingNorth reports whether the orientation points within 45 degrees of
// due north (180 in the south-referenced convention).
func facingNorth(orientationDeg float64) bool {
	diff := math.Mod(math.Abs(orientationDeg-180), 360)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff <= 45
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Label buckets a score for the presentation layer.
func Label(score float64) string {
	switch {
	case score >= 0.65:
		return "sunny"
	case score >= 0.3:
		return "partial"
	default:
		return "shade"
	}
}
