package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-prereq/internal/platform/envutil"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type Config struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
}

// ConfigFromEnv reads RECORD_STORE_DRIVER (postgres|sqlite) plus the
// POSTGRES_* connection settings or SQLITE_PATH.
func ConfigFromEnv() Config {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		envutil.String("POSTGRES_USER", "postgres"),
		os.Getenv("POSTGRES_PASSWORD"),
		envutil.String("POSTGRES_HOST", "localhost"),
		envutil.String("POSTGRES_PORT", "5432"),
		envutil.String("POSTGRES_NAME", "neurobridge"),
		envutil.String("POSTGRES_SSLMODE", "disable"),
	)
	return Config{
		Driver:      strings.ToLower(envutil.String("RECORD_STORE_DRIVER", "postgres")),
		PostgresDSN: dsn,
		SQLitePath:  envutil.String("SQLITE_PATH", "file:neurobridge.db?_foreign_keys=on"),
	}
}

type RecordStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func Open(cfg Config, logg *logger.Logger) (*RecordStore, error) {
	serviceLog := logg.With("service", "RecordStore", "driver", cfg.Driver)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.PostgresDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown RECORD_STORE_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	serviceLog.Info("Record store connected")
	return &RecordStore{db: db, log: serviceLog}, nil
}

func (s *RecordStore) DB() *gorm.DB { return s.db }

func (s *RecordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
