package config

import (
	"fmt"
	"time"
)

// CacheConfig tunes the two-level shop settings cache.
type CacheConfig struct {
	// L1Capacity is the maximum number of shops held in process memory.
	L1Capacity int           `envconfig:"L1_CAPACITY" default:"10000" validate:"min=1"`
	L1TTL      time.Duration `envconfig:"L1_TTL" default:"30s"`

	// L2TTL is how long serialized settings live in Redis.
	L2TTL time.Duration `envconfig:"L2_TTL" default:"5m"`

	// KeyPrefix namespaces settings keys in a shared Redis.
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"pawmatch:settings:"`
}

// Validate checks CacheConfig fields for correctness.
func (c *CacheConfig) Validate() error {
	if c.L1TTL <= 0 || c.L2TTL <= 0 {
		return fmt.Errorf("settings cache TTLs must be positive")
	}
	if c.L1TTL > c.L2TTL {
		return fmt.Errorf("settings L1 TTL (%s) cannot exceed L2 TTL (%s)", c.L1TTL, c.L2TTL)
	}
	if err := validateNoWhitespace(c.KeyPrefix, "settings cache key prefix"); err != nil {
		return err
	}
	return nil
}

// DispatchConfig bounds the background side effects fired after a match.
type DispatchConfig struct {
	MaxInFlight int           `envconfig:"MAX_IN_FLIGHT" default:"256" validate:"min=1"`
	TaskTimeout time.Duration `envconfig:"TASK_TIMEOUT" default:"5s" validate:"min=100ms"`
}
