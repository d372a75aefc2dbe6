package bootstrap

import (
	"context"
	"fmt"

	"github.com/nodewave/flowrunner/common/config"
	"github.com/nodewave/flowrunner/common/db"
	"github.com/nodewave/flowrunner/common/logger"
	"github.com/nodewave/flowrunner/common/redis"
)

// Components holds the shared infrastructure of a service. DB is nil when no
// DATABASE_URL is configured (runs stay in memory); Redis is nil unless event
// fan-out is enabled.
type Components struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.DB
	Redis  *redis.Client

	cleanup []func()
}

// Opts selects which components Setup wires
type Opts struct {
	SkipDB    bool
	SkipRedis bool
}

// Setup loads config and connects the selected components. On error,
// everything already connected is torn down.
func Setup(ctx context.Context, serviceName string, opts Opts) (*Components, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	c := &Components{Config: cfg, Logger: log}

	if !opts.SkipDB && cfg.Persistent() {
		database, err := db.New(ctx, cfg, log)
		if err != nil {
			c.Shutdown()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.DB = database
		c.addCleanup(database.Close)
	}

	if !opts.SkipRedis && cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg, log)
		if err != nil {
			c.Shutdown()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.Redis = client
		c.addCleanup(func() {
			if err := client.Close(); err != nil {
				log.Warn("close redis", "error", err)
			}
		})
	}

	log.Info("components ready",
		"service", serviceName,
		"persistent", c.DB != nil,
		"events", c.Redis != nil,
	)
	return c, nil
}

func (c *Components) addCleanup(fn func()) {
	c.cleanup = append(c.cleanup, fn)
}

// Shutdown tears components down in reverse setup order
func (c *Components) Shutdown() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil
}

// Health pings every connected component
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.GetUnderlying().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
