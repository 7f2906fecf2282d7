package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore/fsstore"
	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore/redisstore"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/config"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/httpclient"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/server"
	"github.com/Tslilon/kinspariscoffeeshades/internal/invalidation/kafkaconsumer"
	"github.com/Tslilon/kinspariscoffeeshades/internal/logger"
	"github.com/Tslilon/kinspariscoffeeshades/internal/places"
	"github.com/Tslilon/kinspariscoffeeshades/internal/score"
	"github.com/Tslilon/kinspariscoffeeshades/internal/scores"
	"github.com/Tslilon/kinspariscoffeeshades/internal/tiles"
	"github.com/Tslilon/kinspariscoffeeshades/internal/weather"
)

var Version = "dev"

const cleanupInterval = time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "sunscore",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting sunscore-server",
		"addr", cfg.Addr,
		"version", Version,
		"cache_backend", cfg.CacheBackend,
		"weather", cfg.WeatherURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	durable, err := newBlobStore(ctx, cfg)
	if err != nil {
		appLog.Error("durable cache tier setup failed", "err", err)
		return 1
	}

	store := cache.New(durable, appLog, cache.WithOpTimeout(cfg.CacheOpTimeout))

	grid := tiles.Grid{
		OriginLat: cfg.TileOriginLat,
		OriginLon: cfg.TileOriginLon,
		SizeDeg:   cfg.TileSizeDeg,
	}
	index := tiles.NewIndex(durable, store, grid, cfg.MetadataTTL, appLog)
	resolver := tiles.NewResolver(index, store, cfg.MaskTTL, appLog)

	scorer, err := score.New(resolver, cfg.RefLat, cfg.RefLon, appLog)
	if err != nil {
		appLog.Error("scorer setup failed", "err", err)
		return 1
	}

	httpClient := httpclient.NewOutbound(cfg.ProviderTimeout)
	weatherClient, err := weather.NewClient(cfg.WeatherURL, httpClient, cfg.ProviderTimeout, appLog)
	if err != nil {
		appLog.Error("weather client setup failed", "err", err)
		return 1
	}
	placesClient, err := places.NewClient(cfg.PlacesURL, httpClient, cfg.ProviderTimeout, appLog)
	if err != nil {
		appLog.Error("places client setup failed", "err", err)
		return 1
	}

	orchestrator := scores.New(scores.Config{
		RefLat:         cfg.RefLat,
		RefLon:         cfg.RefLon,
		ScoreTTL:       cfg.ScoreTTL,
		ScoreTTLGolden: cfg.ScoreTTLGolden,
		ScoreSWR:       cfg.ScoreSWR,
		WeatherTTL:     cfg.WeatherTTL,
		PlacesTTL:      cfg.PlacesTTL,
		AstroTTL:       cfg.AstroTTL,
		GoldenWindow:   cfg.GoldenWindow,
		Workers:        cfg.ScoreWorkers,
		HoursMax:       cfg.HoursMax,
	}, store, weatherClient, placesClient, scorer, appLog)

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers:             splitCSV(cfg.Invalidation.Brokers),
			Topic:               cfg.Invalidation.Topic,
			GroupID:             cfg.Invalidation.GroupID,
			SessionTimeout:      30 * time.Second,
			Heartbeat:           3 * time.Second,
			RebalanceTimeout:    30 * time.Second,
			InitialOffsetOldest: true,
		}, appLog, store)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	// periodic eviction of entries past their stale window
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Cleanup(ctx)
			}
		}
	}()

	if err := server.Run(ctx, cfg, appLog, orchestrator, durable); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func newBlobStore(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	if strings.EqualFold(cfg.CacheBackend, "redis") {
		return redisstore.New(ctx, cfg.RedisAddr)
	}
	return fsstore.New(cfg.CacheDir)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
