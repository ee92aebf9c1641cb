package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
)

// Boot reads .env when present, loads config and returns the process logger.
// On a config error the returned logger is a bootstrap logger without config
// applied, so the caller can still report it.
func Boot(service string) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	}), nil
}

// Infra holds the shared infrastructure clients a process opened.
type Infra struct {
	DB    *db.Client
	Redis *redis.Client
	GCS   *gcs.Client

	logg    *logger.Logger
	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// InfraNeeds selects which optional clients OpenInfra dials. The database is
// always opened.
type InfraNeeds struct {
	Redis bool
	GCS   bool
}

// OpenInfra dials the database, applies dev migrations and then opens the
// requested optional clients. On error everything opened so far is closed.
func OpenInfra(ctx context.Context, cfg *config.Config, logg *logger.Logger, needs InfraNeeds) (infra *Infra, err error) {
	infra = &Infra{logg: logg}
	defer func() {
		if err != nil {
			infra.Close()
			infra = nil
		}
	}()

	if infra.DB, err = db.New(ctx, cfg.DB, logg); err != nil {
		return infra, fmt.Errorf("bootstrap database: %w", err)
	}
	infra.track("database", infra.DB.Close)
	if err = migrate.MaybeRunDev(ctx, cfg, logg, infra.DB); err != nil {
		return infra, fmt.Errorf("dev migrations: %w", err)
	}

	if needs.Redis {
		if infra.Redis, err = redis.New(ctx, cfg.Redis, logg); err != nil {
			return infra, fmt.Errorf("bootstrap redis: %w", err)
		}
		infra.track("redis", infra.Redis.Close)
	}
	if needs.GCS {
		if infra.GCS, err = gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg); err != nil {
			return infra, fmt.Errorf("bootstrap gcs: %w", err)
		}
		infra.track("gcs", infra.GCS.Close)
	}
	return infra, nil
}

// Track registers an extra client to be closed with the rest.
func (i *Infra) Track(name string, close func() error) {
	i.track(name, close)
}

func (i *Infra) track(name string, close func() error) {
	i.closers = append(i.closers, closer{name: name, close: close})
}

// Close releases clients in reverse order of opening, logging failures.
func (i *Infra) Close() {
	if i == nil {
		return
	}
	for n := len(i.closers) - 1; n >= 0; n-- {
		c := i.closers[n]
		if err := c.close(); err != nil && i.logg != nil {
			i.logg.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	i.closers = nil
}
