//go:build integration

package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisContainer wraps a Redis server used as the shared cooldown gate.
type RedisContainer struct {
	container testcontainers.Container
	addr      string
}

// RedisConfig holds configuration for Redis container creation.
type RedisConfig struct {
	// Image tag (default: "7-alpine")
	ImageTag string
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{ImageTag: "7-alpine"}
}

// NewRedisContainer starts a Redis server without persistence.
// If config is nil, uses DefaultRedisConfig().
func NewRedisContainer(ctx context.Context, config *RedisConfig) (*RedisContainer, error) {
	if config == nil {
		defaultCfg := DefaultRedisConfig()
		config = &defaultCfg
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("redis:%s", config.ImageTag),
		ExposedPorts: []string{"6379/tcp"},
		Cmd:          []string{"redis-server", "--save", "", "--appendonly", "no"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, port, err := endpoint(ctx, container, "6379")
	if err != nil {
		terminate(container)
		return nil, err
	}

	rc := &RedisContainer{
		container: container,
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
	}
	if err := rc.HealthCheck(ctx); err != nil {
		terminate(container)
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return rc, nil
}

// Addr returns the host:port the server listens on.
func (c *RedisContainer) Addr() string {
	return c.addr
}

// NewClient returns a client for this server. The caller closes it.
func (c *RedisContainer) NewClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: c.addr})
}

// HealthCheck pings the server.
func (c *RedisContainer) HealthCheck(ctx context.Context) error {
	client := c.NewClient()
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Flush removes every key so tests start from an empty gate.
func (c *RedisContainer) Flush(ctx context.Context) error {
	client := c.NewClient()
	defer func() { _ = client.Close() }()
	return client.FlushAll(ctx).Err()
}

// Terminate stops and removes the Redis container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
