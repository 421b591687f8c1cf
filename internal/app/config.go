package app

import (
	"time"

	"github.com/yungbote/neurobridge-prereq/internal/modules/prereq"
	"github.com/yungbote/neurobridge-prereq/internal/platform/envutil"
)

type Config struct {
	ServiceName       string
	LogMode           string
	Port              string
	MaxDepth          int
	OwnerLockTTL      time.Duration
	WorkerConcurrency int
}

func LoadConfig() Config {
	return Config{
		ServiceName:       envutil.String("SERVICE_NAME", "neurobridge-prereq"),
		LogMode:           envutil.String("LOG_MODE", "development"),
		Port:              envutil.String("PORT", "8080"),
		MaxDepth:          envutil.Int("EXPAND_MAX_DEPTH", prereq.DefaultMaxDepth),
		OwnerLockTTL:      envutil.Seconds("OWNER_LOCK_TTL_SECONDS", 2*time.Minute),
		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
	}
}
