package cache

import (
	"context"
	"fmt"
)

// HealthChecker reports Redis reachability to the readiness probe.
type HealthChecker struct {
	cache Service
}

// NewHealthChecker creates a checker over the L2 cache.
func NewHealthChecker(cache Service) *HealthChecker {
	return &HealthChecker{cache: cache}
}

func (h *HealthChecker) Name() string {
	return "redis"
}

func (h *HealthChecker) Check(ctx context.Context) error {
	if h.cache == nil {
		return fmt.Errorf("redis cache is not configured")
	}
	return h.cache.HealthCheck(ctx)
}
