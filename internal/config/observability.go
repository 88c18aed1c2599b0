package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig configures the admin server that serves probes and
// Prometheus metrics next to the public API.
type ObservabilityConfig struct {
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout applies to reads, writes and idle connections of the admin server.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	// ProbeTimeout is how long readiness waits for Postgres and Redis before
	// reporting them down. Must fit inside Timeout.
	ProbeTimeout time.Duration `envconfig:"PROBE_TIMEOUT" default:"2s" validate:"min=10ms"`

	// DrainDelay keeps the API serving after readiness flips to 503, so load
	// balancers stop routing storefront traffic before connections close.
	DrainDelay time.Duration `envconfig:"DRAIN_DELAY" default:"5s" validate:"min=0"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}
	if o.ProbeTimeout >= o.Timeout {
		return fmt.Errorf("observability probe timeout (%s) must be shorter than the server timeout (%s)", o.ProbeTimeout, o.Timeout)
	}

	seen := make(map[string]string, 3)
	for name, path := range map[string]string{
		"liveness":  o.LivenessPath,
		"readiness": o.ReadinessPath,
		"metrics":   o.MetricsPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("observability %s path must start with '/', got %q", name, path)
		}
		if other, dup := seen[path]; dup {
			return fmt.Errorf("observability %s and %s paths are both %q", other, name, path)
		}
		seen[path] = name
	}
	return nil
}
