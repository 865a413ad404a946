package constants

import "time"

// fixed policy, deliberately not configurable
const (
	MinutesTolerance = 5
)

const (
	DatabaseTimeout    = 5 * time.Second
	RegeneratorTimeout = 2 * time.Minute
	CheckTimeout       = 2 * time.Minute
	RepairTimeout      = 10 * time.Minute
)

const (
	DefaultRetryBackoff           = 250 * time.Millisecond
	DefaultRevalidateDelay        = 500 * time.Millisecond
	DefaultAggregateFallbackBatch = 25
	MaxRetries                    = 1
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)
