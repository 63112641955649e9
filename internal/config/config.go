package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize int

	// Authoritative GIS service configuration.
	ArcGISBaseURL string
	ArcGISTimeout time.Duration

	// Overpass API configuration.
	OverpassURL            string
	OverpassTimeout        time.Duration
	OverpassMaxAttempts    int
	OverpassInitialBackoff time.Duration

	// Politeness delays between upstream requests.
	IntraAreaDelay time.Duration
	InterAreaDelay time.Duration

	// Optional Kafka publishing of catalog updates.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Link validation configuration.
	LinkCheckConcurrency int
	LinkCheckBatchSize   int
	LinkCheckBatchDelay  time.Duration
	LinkCheckTimeout     time.Duration
	ProgressDir          string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	arcgisTimeout, err := envDuration("ARCGIS_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	overpassTimeout, err := envDuration("OVERPASS_TIMEOUT", 180*time.Second)
	if err != nil {
		return nil, err
	}
	overpassBackoff, err := envDuration("OVERPASS_INITIAL_BACKOFF", 5*time.Second)
	if err != nil {
		return nil, err
	}
	intraDelay, err := envDuration("INTRA_AREA_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}
	interDelay, err := envDuration("INTER_AREA_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}
	linkDelay, err := envDuration("LINKCHECK_BATCH_DELAY", 1*time.Second)
	if err != nil {
		return nil, err
	}
	linkTimeout, err := envDuration("LINKCHECK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	batchSize, err := envInt("BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	overpassAttempts, err := envInt("OVERPASS_MAX_ATTEMPTS", 4)
	if err != nil {
		return nil, err
	}
	linkConcurrency, err := envInt("LINKCHECK_CONCURRENCY", 5)
	if err != nil {
		return nil, err
	}
	linkBatch, err := envInt("LINKCHECK_BATCH_SIZE", 20)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		BatchSize:       batchSize,

		ArcGISBaseURL: envOrDefault("ARCGIS_BASE_URL", "https://services.arcgis.com/trails/FeatureServer/0"),
		ArcGISTimeout: arcgisTimeout,

		OverpassURL:            envOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout:        overpassTimeout,
		OverpassMaxAttempts:    overpassAttempts,
		OverpassInitialBackoff: overpassBackoff,

		IntraAreaDelay: intraDelay,
		InterAreaDelay: interDelay,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "trail-catalog-updates"),

		LinkCheckConcurrency: linkConcurrency,
		LinkCheckBatchSize:   linkBatch,
		LinkCheckBatchDelay:  linkDelay,
		LinkCheckTimeout:     linkTimeout,
		ProgressDir:          envOrDefault("PROGRESS_DIR", "."),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
