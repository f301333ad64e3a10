//go:build integration

package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// endpoint resolves the host address of a container port.
func endpoint(ctx context.Context, c testcontainers.Container, port string) (host string, mapped int, err error) {
	host, err = c.Host(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get container host: %w", err)
	}
	p, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get mapped port %s: %w", port, err)
	}
	return host, p.Int(), nil
}

// WaitForTCP waits until host:port accepts connections.
// It retries every 500ms until the port is open or the timeout is reached.
func WaitForTCP(ctx context.Context, host string, port int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for TCP port %s: %w", address, ctx.Err())
		case <-ticker.C:
		}
	}
}

// terminate removes a container that failed to become ready.
func terminate(c testcontainers.Container) {
	if c != nil {
		_ = c.Terminate(context.Background())
	}
}
