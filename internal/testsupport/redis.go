package testsupport

import (
	"context"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/pawmatch/internal/cache"
	"github.com/rafaeljc/pawmatch/internal/config"
)

// RedisContainer is an ephemeral Redis with a client built the same way the
// service builds its own.
type RedisContainer struct {
	Container testcontainers.Container
	Client    *goredis.Client

	// Endpoint is host:port, for side-channel clients in tests.
	Endpoint string
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer runs redis:7-alpine and connects to it.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("unexpected redis endpoint %q: %w", endpoint, err)
	}

	client, err := cache.NewRedisClient(ctx, &config.RedisConfig{
		Host:           host,
		Port:           port,
		PoolSize:       5,
		DialTimeout:    2 * time.Second,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   2 * time.Second,
		PoolTimeout:    2 * time.Second,
		PingMaxRetries: 5,
		PingBackoff:    500 * time.Millisecond,
	})
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{Container: ctr, Client: client, Endpoint: endpoint}, nil
}
