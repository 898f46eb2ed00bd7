package feed

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Driver identifies a concrete change feed implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Config selects and parameterizes the feed backend.
type Config struct {
	Driver   Driver `env:"VIVARIUM_FEED_DRIVER" envDefault:"memory"`
	RedisURL string `env:"VIVARIUM_REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

// OpenBus selects a bus implementation from environment variables.
func OpenBus() (Bus, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse feed env: %w", err)
	}
	return OpenBusWithConfig(cfg)
}

// OpenBusWithConfig builds a bus from explicit configuration.
func OpenBusWithConfig(cfg Config) (Bus, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryBus(), nil
	case DriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedisBus(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unknown feed driver %s", cfg.Driver)
	}
}
