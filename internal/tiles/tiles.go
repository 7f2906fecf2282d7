// Package tiles resolves precomputed shadow values for geographic points.
//
// A tile is a fixed-size rectangular cell on a grid anchored at a reference
// origin. Each tile carries per-month, per-time-slot masks of shadow samples
// (0 = full shadow, 255 = full sun) generated offline and read-only at
// runtime.
package tiles

import "time"

// Slot is a coarse time-of-day band the masks are generated for.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotNoon      Slot = "noon"
	SlotAfternoon Slot = "afternoon"
)

// SlotForHour maps a local hour to a mask slot. Hours 8-10 are morning,
// 11-13 noon, 14-16 afternoon; hours outside the bands snap to the nearest
// band by threshold. Coverage is therefore restricted to daylight operating
// hours; callers short-circuit very early/late hours upstream.
func SlotForHour(hour int) Slot {
	switch {
	case hour >= 8 && hour <= 10:
		return SlotMorning
	case hour >= 11 && hour <= 13:
		return SlotNoon
	case hour >= 14 && hour <= 16:
		return SlotAfternoon
	case hour < 11:
		return SlotMorning
	case hour < 14:
		return SlotNoon
	default:
		return SlotAfternoon
	}
}

type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat <= b.North && lat >= b.South && lon <= b.East && lon >= b.West
}

type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TileDescriptor is one geospatial cell of precomputed data.
type TileDescriptor struct {
	TileID           string  `json:"tileId"`
	Bounds           Bounds  `json:"bounds"`
	ResolutionMeters float64 `json:"resolutionMeters"`
	PixelWidth       int     `json:"pixelWidth"`
	PixelHeight      int     `json:"pixelHeight"`
	Center           Center  `json:"center"`
}

// ShadowMaskRef points at one precomputed mask blob for a tile, month and slot.
type ShadowMaskRef struct {
	TileID      string    `json:"tileId"`
	Month       int       `json:"month"` // 1-12
	Slot        Slot      `json:"slot"`
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Metadata is the tile/mask directory document, versioned by its generation
// timestamp.
type Metadata struct {
	Generated time.Time        `json:"generated"`
	Tiles     []TileDescriptor `json:"tiles"`
	Masks     []ShadowMaskRef  `json:"masks"`
}

// Precision tags how a shadow value was obtained.
type Precision string

const (
	PrecisionPrecomputed Precision = "precomputed"
	PrecisionHeuristic   Precision = "heuristic"
)

// ShadowResult is the outcome of one shadow lookup. ShadowValue is in [0,1]
// with 0 = full shadow and 1 = full sun.
type ShadowResult struct {
	Precision   Precision
	ShadowValue float64
	Confidence  float64
	TileID      string
	PixelX      int
	PixelY      int
}

// heuristicSentinel is returned whenever precomputed data cannot serve the
// lookup; the scorer falls back to its own estimate.
func heuristicSentinel() ShadowResult {
	return ShadowResult{Precision: PrecisionHeuristic, ShadowValue: 0, Confidence: 0}
}
