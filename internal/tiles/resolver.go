package tiles

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/keys"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
)

const precomputedConfidence = 0.95

// Resolver turns (lat, lon, instant) into a shadow value using the
// precomputed masks, degrading to a heuristic sentinel whenever any piece of
// data is missing.
type Resolver struct {
	idx     *Index
	store   *cache.Store
	maskTTL time.Duration
	logger  *slog.Logger
}

func NewResolver(idx *Index, store *cache.Store, maskTTL time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if maskTTL <= 0 {
		maskTTL = 10 * time.Minute
	}
	return &Resolver{idx: idx, store: store, maskTTL: maskTTL, logger: logger}
}

// Resolve locates the covering tile, computes the pixel coordinate, loads
// the matching mask and returns the normalized shadow value. Identical
// inputs against an unchanged tile index yield identical results.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, t time.Time) ShadowResult {
	md := r.idx.Load(ctx)
	if len(md.Tiles) == 0 {
		return heuristicSentinel()
	}

	tile := r.idx.FindTile(md, lat, lon)
	if tile == nil {
		return heuristicSentinel()
	}

	// the grid mapping should guarantee containment, but rounding can place
	// a point on a tile edge
	if !tile.Bounds.Contains(lat, lon) {
		return heuristicSentinel()
	}

	x, y := pixelFor(tile, lat, lon)

	month := int(t.Month())
	slot := SlotForHour(t.Hour())

	ref := r.idx.FindMask(md, tile.TileID, month, slot)
	if ref == nil {
		return heuristicSentinel()
	}

	mask, ok := r.loadMask(ctx, ref)
	if !ok {
		return heuristicSentinel()
	}

	idx := y*mask.Width + x
	if idx < 0 || idx >= len(mask.Samples) {
		return heuristicSentinel()
	}

	return ShadowResult{
		Precision:   PrecisionPrecomputed,
		ShadowValue: float64(mask.Samples[idx]) / 255.0,
		Confidence:  precomputedConfidence,
		TileID:      tile.TileID,
		PixelX:      x,
		PixelY:      y,
	}
}

// pixelFor maps coordinates inside the tile bounds to a pixel, (0,0) at the
// geographic north-west corner, clamped so the exact south-east corner lands
// on the last pixel rather than one past it.
func pixelFor(tile *TileDescriptor, lat, lon float64) (int, int) {
	b := tile.Bounds
	x := int(math.Floor((lon - b.West) / (b.East - b.West) * float64(tile.PixelWidth)))
	y := int(math.Floor((b.North - lat) / (b.North - b.South) * float64(tile.PixelHeight)))

	x = clampInt(x, 0, tile.PixelWidth-1)
	y = clampInt(y, 0, tile.PixelHeight-1)
	return x, y
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// loadMask fetches and decodes a mask blob, caching the decoded grid: the
// backing data is immutable, so a multi-minute TTL saves repeated durable
// reads across many points and hours.
func (r *Resolver) loadMask(ctx context.Context, ref *ShadowMaskRef) (Mask, bool) {
	key := keys.Mask(ref.TileID, ref.Month, string(ref.Slot))

	if m, lk := cache.GetJSON[Mask](ctx, r.store, key); lk.Found && len(m.Samples) > 0 {
		return m, true
	}

	start := time.Now()
	raw, err := r.idx.source.Get(ctx, ref.Path)
	observability.ObserveUpstreamLatency("mask_source", time.Since(start).Seconds())
	if err != nil {
		r.logger.Debug("mask blob unavailable", "path", ref.Path, "err", err)
		return Mask{}, false
	}

	m, err := DecodeMask(raw)
	if err != nil {
		r.logger.Warn("mask blob malformed", "path", ref.Path, "err", err)
		return Mask{}, false
	}

	if err := cache.SetJSON(ctx, r.store, key, m, r.maskTTL, r.maskTTL); err != nil {
		r.logger.Debug("cache decoded mask", "key", key, "err", err)
	}
	return m, true
}
