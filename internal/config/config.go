package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"squad-reconciler/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// empty means the local SQL regenerator is used
	RegeneratorURL    string
	RegeneratorAPIKey string

	ValidatorWorkers       int
	RetryBackoff           time.Duration
	RevalidateDelay        time.Duration
	AggregateFallbackBatch int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:            getEnv("DB_PATH", "squad.db"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		RegeneratorURL:    getEnv("REGENERATOR_URL", ""),
		RegeneratorAPIKey: getEnv("REGENERATOR_API_KEY", ""),
	}

	var err error
	if cfg.ValidatorWorkers, err = getEnvInt("VALIDATOR_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.AggregateFallbackBatch, err = getEnvInt("AGGREGATE_FALLBACK_BATCH", constants.DefaultAggregateFallbackBatch); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = getEnvDuration("RETRY_BACKOFF", constants.DefaultRetryBackoff); err != nil {
		return nil, err
	}
	if cfg.RevalidateDelay, err = getEnvDuration("REVALIDATE_DELAY", constants.DefaultRevalidateDelay); err != nil {
		return nil, err
	}

	if cfg.ValidatorWorkers < 1 {
		return nil, fmt.Errorf("VALIDATOR_WORKERS must be positive, got %d", cfg.ValidatorWorkers)
	}
	if cfg.AggregateFallbackBatch < 1 {
		return nil, fmt.Errorf("AGGREGATE_FALLBACK_BATCH must be positive, got %d", cfg.AggregateFallbackBatch)
	}
	if cfg.RegeneratorURL != "" && cfg.RegeneratorAPIKey == "" {
		logger.Warn().Str("regenerator_url", cfg.RegeneratorURL).Msg("remote regenerator configured without API key")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("remote_regenerator", cfg.RegeneratorURL != "").
		Int("validator_workers", cfg.ValidatorWorkers).
		Dur("retry_backoff", cfg.RetryBackoff).
		Dur("revalidate_delay", cfg.RevalidateDelay).
		Int("aggregate_fallback_batch", cfg.AggregateFallbackBatch).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

var Module = fx.Provide(Load)
