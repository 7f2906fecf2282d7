package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool

	WeatherURL string
	PlacesURL  string

	// reference location for weather and golden-hour windows
	RefLat float64
	RefLon float64

	CacheBackend string // "fs" or "redis"
	CacheDir     string
	RedisAddr    string

	TileOriginLat float64
	TileOriginLon float64
	TileSizeDeg   float64

	ScoreTTL        time.Duration
	ScoreTTLGolden  time.Duration
	ScoreSWR        time.Duration
	WeatherTTL      time.Duration
	PlacesTTL       time.Duration
	AstroTTL        time.Duration
	MaskTTL         time.Duration
	MetadataTTL     time.Duration
	GoldenWindow    time.Duration
	ProviderTimeout time.Duration
	CacheOpTimeout  time.Duration

	ScoreWorkers int
	HoursDefault int
	HoursMax     int

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	scoreTTL := getduration("SCORE_TTL", 30*time.Minute)

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),

		WeatherURL: getenv("WEATHER_URL", "https://api.open-meteo.com/v1/forecast"),
		PlacesURL:  getenv("PLACES_URL", "http://localhost:8091/places"),

		RefLat: getfloat("REF_LAT", 48.8566),
		RefLon: getfloat("REF_LON", 2.3522),

		CacheBackend: getenv("CACHE_BACKEND", "fs"),
		CacheDir:     getenv("CACHE_DIR", "./data/cache"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),

		TileOriginLat: getfloat("TILE_ORIGIN_LAT", 48.8566),
		TileOriginLon: getfloat("TILE_ORIGIN_LON", 2.3522),
		TileSizeDeg:   getfloat("TILE_SIZE_DEG", 0.008),

		ScoreTTL:        scoreTTL,
		ScoreTTLGolden:  getduration("SCORE_TTL_GOLDEN", 5*time.Minute),
		ScoreSWR:        getduration("SCORE_SWR", 15*time.Minute),
		WeatherTTL:      getduration("WEATHER_TTL", 15*time.Minute),
		PlacesTTL:       getduration("PLACES_TTL", 6*time.Hour),
		AstroTTL:        getduration("ASTRO_TTL", 24*time.Hour),
		MaskTTL:         getduration("MASK_TTL", 10*time.Minute),
		MetadataTTL:     getduration("METADATA_TTL", 5*time.Minute),
		GoldenWindow:    getduration("GOLDEN_WINDOW", 45*time.Minute),
		ProviderTimeout: getduration("PROVIDER_TIMEOUT", 10*time.Second),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		ScoreWorkers: getint("SCORE_WORKERS", 8),
		HoursDefault: getint("HOURS_DEFAULT", 12),
		HoursMax:     getint("HOURS_MAX", 48),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "mask-invalidation"),
			GroupID: getenv("KAFKA_GROUP_ID", "mask-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
