// Package scores computes windowed sun exposure scores for a set of points
// and manages the aggregate-result cache, including stale-while-revalidate
// background refreshes and golden-hour-sensitive TTLs.
package scores

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tslilon/kinspariscoffeeshades/internal/astro"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/keys"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
	"github.com/Tslilon/kinspariscoffeeshades/internal/places"
	"github.com/Tslilon/kinspariscoffeeshades/internal/score"
	"github.com/Tslilon/kinspariscoffeeshades/internal/tiles"
	"github.com/Tslilon/kinspariscoffeeshades/internal/weather"
)

// Error is a stable, user-visible failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// ErrNoWeatherData is returned when the weather provider yields nothing for
// the requested window; no score is meaningful without weather.
var ErrNoWeatherData = &Error{Code: "weather_unavailable", Message: "no weather data for the requested window"}

// Point is one scored point of interest in the aggregate.
type Point struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	ScoreByHour []float64 `json:"scoreByHour"`
	LabelByHour []string  `json:"labelByHour"`
}

type Meta struct {
	TotalPoints                int     `json:"totalPoints"`
	HoursComputed              int     `json:"hoursComputed"`
	PrecomputedCount           int     `json:"precomputedCount"`
	HeuristicCount             int     `json:"heuristicCount"`
	PrecomputedCoveragePercent float64 `json:"precomputedCoveragePercent"`
}

// Aggregate is the cached, presentation-ready result for one window.
type Aggregate struct {
	UpdatedAt time.Time   `json:"updatedAt"`
	Hours     []time.Time `json:"hours"`
	Points    []Point     `json:"points"`
	Meta      Meta        `json:"meta"`
}

type Config struct {
	RefLat float64
	RefLon float64

	ScoreTTL       time.Duration
	ScoreTTLGolden time.Duration
	ScoreSWR       time.Duration
	WeatherTTL     time.Duration
	PlacesTTL      time.Duration
	AstroTTL       time.Duration
	GoldenWindow   time.Duration

	Workers  int
	HoursMax int

	// RefreshTimeout bounds one background recompute.
	RefreshTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ScoreTTL <= 0 {
		c.ScoreTTL = 30 * time.Minute
	}
	if c.ScoreTTLGolden <= 0 {
		c.ScoreTTLGolden = 5 * time.Minute
	}
	if c.ScoreSWR <= 0 {
		c.ScoreSWR = 15 * time.Minute
	}
	if c.WeatherTTL <= 0 {
		c.WeatherTTL = 15 * time.Minute
	}
	if c.PlacesTTL <= 0 {
		c.PlacesTTL = 6 * time.Hour
	}
	if c.AstroTTL <= 0 {
		c.AstroTTL = 24 * time.Hour
	}
	if c.GoldenWindow <= 0 {
		c.GoldenWindow = 45 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.HoursMax <= 0 {
		c.HoursMax = 48
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = time.Minute
	}
}

type Orchestrator struct {
	cfg     Config
	store   *cache.Store
	weather weather.Provider
	places  places.Directory
	scorer  *score.Scorer
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	// solar position hook, for tests
	position func(t time.Time, lat, lon float64) astro.Position
}

func New(cfg Config, store *cache.Store, wx weather.Provider, dir places.Directory, scorer *score.Scorer, logger *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		weather:  wx,
		places:   dir,
		scorer:   scorer,
		logger:   logger,
		inflight: make(map[string]struct{}),
		position: astro.At,
	}
}

// ComputeWindow returns the aggregate for the window, serving from the cache
// when possible. A stale-but-usable hit is returned immediately while a
// background recompute refreshes the entry.
func (o *Orchestrator) ComputeWindow(ctx context.Context, ref time.Time, hours int, precision bool) (*Aggregate, error) {
	if hours < 1 {
		hours = 1
	}
	if hours > o.cfg.HoursMax {
		hours = o.cfg.HoursMax
	}

	key := keys.Scores(modeLabel(precision), hours, ref)

	agg, lk := cache.GetJSON[Aggregate](ctx, o.store, key)
	if lk.Found && !lk.IsStale {
		return &agg, nil
	}
	if lk.Found && lk.ShouldRefresh {
		o.scheduleRefresh(key, ref, hours, precision)
		return &agg, nil
	}

	fresh, err := o.compute(ctx, ref, hours, precision)
	if err != nil {
		return nil, err
	}
	o.storeAggregate(ctx, key, fresh, ref)
	return fresh, nil
}

// scheduleRefresh starts at most one background recompute per key. The task
// re-derives its own weather and point data rather than sharing in-flight
// state with the triggering request; failures only log, leaving the stale
// entry in place for the next read to retry.
func (o *Orchestrator) scheduleRefresh(key string, ref time.Time, hours int, precision bool) {
	o.mu.Lock()
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		return
	}
	o.inflight[key] = struct{}{}
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.inflight, key)
			o.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RefreshTimeout)
		defer cancel()

		fresh, err := o.compute(ctx, ref, hours, precision)
		if err != nil {
			observability.IncRefresh("error")
			o.logger.Warn("background refresh failed, stale entry retained", "key", key, "err", err)
			return
		}
		o.storeAggregate(ctx, key, fresh, ref)
		observability.IncRefresh("ok")
		o.logger.Debug("background refresh completed", "key", key, "points", len(fresh.Points))
	}()
}

type pointResult struct {
	idx         int
	point       Point
	precomputed int
	heuristic   int
}

func (o *Orchestrator) compute(ctx context.Context, ref time.Time, hours int, precision bool) (*Aggregate, error) {
	start := time.Now()

	var (
		wx  []weather.Hour
		pts []places.Place
	)

	// weather and points fetch concurrently; both complete before scoring
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wx, err = o.fetchWeather(gctx, ref, hours)
		return err
	})
	g.Go(func() error {
		pts = o.fetchPlaces(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(wx) == 0 {
		return nil, ErrNoWeatherData
	}

	wxByHour := make(map[int64]weather.Hour, len(wx))
	for _, h := range wx {
		wxByHour[h.Timestamp.UTC().Truncate(time.Hour).Unix()] = h
	}

	// hour instants keep the reference zone: the mask slot and month are a
	// local-time concept. Hours the forecast does not cover are dropped
	// rather than scored against invented weather.
	from := ref.Truncate(time.Hour)
	hourList := make([]time.Time, 0, hours)
	for i := 0; i < hours; i++ {
		h := from.Add(time.Duration(i) * time.Hour)
		if _, ok := wxByHour[h.Unix()]; ok {
			hourList = append(hourList, h)
		}
	}
	if len(hourList) == 0 {
		return nil, ErrNoWeatherData
	}
	if len(hourList) < hours {
		o.logger.Warn("forecast covers part of the window",
			"requested", hours, "covered", len(hourList))
	}

	agg := &Aggregate{
		UpdatedAt: time.Now().UTC(),
		Hours:     hourList,
		Points:    make([]Point, len(pts)),
		Meta:      Meta{TotalPoints: len(pts), HoursComputed: len(hourList)},
	}

	jobs := make(chan int, len(pts))
	results := make(chan pointResult, len(pts))

	workerN := o.cfg.Workers
	var wg sync.WaitGroup
	wg.Add(workerN)
	for range workerN {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results <- o.scorePoint(ctx, pts[idx], idx, hourList, wxByHour, precision)
			}
		}()
	}

	for i := range pts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		agg.Points[r.idx] = r.point
		agg.Meta.PrecomputedCount += r.precomputed
		agg.Meta.HeuristicCount += r.heuristic
	}

	// a canceled scoring pass leaves unfilled points; never hand that back
	// for callers to cache
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if total := agg.Meta.PrecomputedCount + agg.Meta.HeuristicCount; total > 0 {
		agg.Meta.PrecomputedCoveragePercent = 100 * float64(agg.Meta.PrecomputedCount) / float64(total)
	}

	o.logger.Info("window computed",
		"points", len(pts), "hours", len(hourList), "precision", precision,
		"coverage_pct", agg.Meta.PrecomputedCoveragePercent,
		"dur", time.Since(start).String())
	return agg, nil
}

// scorePoint computes one point across all requested hours. Each point is
// independent: inputs are already fetched and sub-results are cached, so
// points run concurrently without ordering guarantees.
func (o *Orchestrator) scorePoint(ctx context.Context, p places.Place, idx int, hourList []time.Time, wxByHour map[int64]weather.Hour, precision bool) pointResult {
	out := pointResult{
		idx: idx,
		point: Point{
			ID: p.ID, Name: p.Name, Lat: p.Lat, Lon: p.Lon,
			ScoreByHour: make([]float64, len(hourList)),
			LabelByHour: make([]string, len(hourList)),
		},
	}

	for i, hour := range hourList {
		pos := o.solarPosition(ctx, p.Lat, p.Lon, hour)

		wh := wxByHour[hour.Unix()]

		res := o.scorer.Score(ctx, score.Input{
			SunAzimuthRad:      pos.AzimuthRad,
			SunElevationRad:    pos.ElevationRad,
			OrientationDeg:     p.OrientationDeg,
			CloudCoverPct:      wh.CloudCoverPct,
			DirectRadiationWm2: wh.DirectRadiationWm2,
			Lat:                p.Lat,
			Lon:                p.Lon,
			At:                 hour,
			UsePrecision:       precision,
		})

		out.point.ScoreByHour[i] = res.Score
		out.point.LabelByHour[i] = score.Label(res.Score)
		if res.Method == tiles.PrecisionPrecomputed {
			out.precomputed++
		} else {
			out.heuristic++
		}
	}
	return out
}

// solarPosition caches per point+hour with a day-scale TTL: astronomy is
// deterministic, so the same hour can be reused across requests.
func (o *Orchestrator) solarPosition(ctx context.Context, lat, lon float64, hour time.Time) astro.Position {
	key := keys.Astro(lat, lon, hour)
	if pos, lk := cache.GetJSON[astro.Position](ctx, o.store, key); lk.Found && !lk.IsStale {
		return pos
	}
	pos := o.position(hour, lat, lon)
	if err := cache.SetJSON(ctx, o.store, key, pos, o.cfg.AstroTTL, 0); err != nil {
		o.logger.Debug("cache solar position", "key", key, "err", err)
	}
	return pos
}

// fetchWeather serves the hourly forecast through its own cache entry with a
// golden-hour-sensitive TTL. A provider failure falls back to a stale cached
// series when one exists.
func (o *Orchestrator) fetchWeather(ctx context.Context, ref time.Time, hours int) ([]weather.Hour, error) {
	key := keys.Weather(o.cfg.RefLat, o.cfg.RefLon, hours, ref)

	cached, lk := cache.GetJSON[[]weather.Hour](ctx, o.store, key)
	if lk.Found && !lk.IsStale {
		return cached, nil
	}

	wx, err := o.weather.Hourly(ctx, o.cfg.RefLat, o.cfg.RefLon, ref, hours)
	if err != nil || len(wx) == 0 {
		if lk.Found && len(cached) > 0 {
			o.logger.Warn("weather fetch failed, serving stale forecast", "err", err)
			return cached, nil
		}
		if err != nil {
			o.logger.Error("weather fetch failed", "err", err)
		}
		return nil, ErrNoWeatherData
	}

	ttl := o.cfg.WeatherTTL
	if astro.InGoldenHour(ref, o.cfg.RefLat, o.cfg.RefLon, o.cfg.GoldenWindow) {
		ttl = o.cfg.ScoreTTLGolden
	}
	if err := cache.SetJSON(ctx, o.store, key, wx, ttl, ttl); err != nil {
		o.logger.Debug("cache weather", "key", key, "err", err)
	}
	return wx, nil
}

// fetchPlaces returns the cached directory, refreshing on miss. Provider
// failures degrade to an empty point set: an empty directory is a valid,
// degenerate result.
func (o *Orchestrator) fetchPlaces(ctx context.Context) []places.Place {
	key := keys.Places()

	cached, lk := cache.GetJSON[[]places.Place](ctx, o.store, key)
	if lk.Found && !lk.IsStale {
		return cached
	}

	pts, err := o.places.Places(ctx)
	if err != nil {
		if lk.Found {
			o.logger.Warn("places fetch failed, serving stale directory", "err", err)
			return cached
		}
		o.logger.Error("places fetch failed, proceeding with empty set", "err", err)
		return nil
	}
	if err := cache.SetJSON(ctx, o.store, key, pts, o.cfg.PlacesTTL, o.cfg.PlacesTTL); err != nil {
		o.logger.Debug("cache places", "key", key, "err", err)
	}
	return pts
}

// storeAggregate writes the aggregate under a TTL that shortens near
// sunrise, sunset and solar noon, when scores swing faster.
func (o *Orchestrator) storeAggregate(ctx context.Context, key string, agg *Aggregate, ref time.Time) {
	ttl := o.cfg.ScoreTTL
	if astro.InGoldenHour(ref, o.cfg.RefLat, o.cfg.RefLon, o.cfg.GoldenWindow) {
		ttl = o.cfg.ScoreTTLGolden
	}
	if err := cache.SetJSON(ctx, o.store, key, *agg, ttl, o.cfg.ScoreSWR); err != nil {
		o.logger.Warn("store aggregate", "key", key, "err", err)
	}
}

func modeLabel(precision bool) string {
	if precision {
		return "precision"
	}
	return "heuristic"
}
