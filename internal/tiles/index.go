package tiles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/keys"
)

// MetadataPath is the durable key of the tile directory document.
const MetadataPath = "tiles/metadata.json"

// Grid is the fixed tile grid anchored at a reference origin.
type Grid struct {
	OriginLat float64
	OriginLon float64
	SizeDeg   float64
}

// TileIDFor maps coordinates to a tile id on the grid.
func (g Grid) TileIDFor(lat, lon float64) string {
	x := int(math.Round((lon - g.OriginLon) / g.SizeDeg))
	y := int(math.Round((lat - g.OriginLat) / g.SizeDeg))
	return fmt.Sprintf("%d_%d", x, y)
}

// Index is the in-memory directory of tile descriptors and mask references.
// The backing document lives in the read-only tile source; a recent snapshot
// is served from the cache store to avoid repeated durable reads under load.
type Index struct {
	source blobstore.Store
	store  *cache.Store
	grid   Grid
	ttl    time.Duration
	logger *slog.Logger
}

func NewIndex(source blobstore.Store, store *cache.Store, grid Grid, ttl time.Duration, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Index{source: source, store: store, grid: grid, ttl: ttl, logger: logger}
}

// Load returns the current metadata snapshot. A missing or malformed source
// degrades to empty metadata so every lookup falls back to the heuristic
// path rather than failing the request.
func (i *Index) Load(ctx context.Context) Metadata {
	key := keys.TileMetadata()

	md, lk := cache.GetJSON[Metadata](ctx, i.store, key)
	if lk.Found && !lk.IsStale {
		return md
	}

	raw, err := i.source.Get(ctx, MetadataPath)
	if err != nil {
		if lk.Found {
			// stale snapshot beats no snapshot
			return md
		}
		i.logger.Warn("tile metadata unavailable, serving empty directory", "err", err)
		return Metadata{}
	}

	var fresh Metadata
	if err := json.Unmarshal(raw, &fresh); err != nil {
		if lk.Found {
			return md
		}
		i.logger.Warn("tile metadata malformed, serving empty directory", "err", err)
		return Metadata{}
	}

	if err := cache.SetJSON(ctx, i.store, key, fresh, i.ttl, i.ttl); err != nil {
		i.logger.Debug("republish tile metadata", "err", err)
	}
	return fresh
}

// FindTile maps coordinates to the covering descriptor, or nil when the grid
// cell has no precomputed data.
func (i *Index) FindTile(md Metadata, lat, lon float64) *TileDescriptor {
	id := i.grid.TileIDFor(lat, lon)
	for n := range md.Tiles {
		if md.Tiles[n].TileID == id {
			return &md.Tiles[n]
		}
	}
	return nil
}

// FindMask returns the mask reference for an exact (tile, month, slot) match.
func (i *Index) FindMask(md Metadata, tileID string, month int, slot Slot) *ShadowMaskRef {
	for n := range md.Masks {
		m := &md.Masks[n]
		if m.TileID == tileID && m.Month == month && m.Slot == slot {
			return m
		}
	}
	return nil
}
