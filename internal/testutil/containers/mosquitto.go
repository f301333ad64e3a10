//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mosquittoConfig lets anonymous clients connect; the 2.x image refuses them
// by default.
const mosquittoConfig = `listener 1883
allow_anonymous true
`

// MosquittoContainer wraps a testcontainers Eclipse Mosquitto MQTT broker instance.
type MosquittoContainer struct {
	container testcontainers.Container
	brokerURL string
}

// MosquittoConfig holds configuration for Mosquitto container creation.
type MosquittoConfig struct {
	// Image tag (default: "2.0")
	ImageTag string
}

// DefaultMosquittoConfig returns a MosquittoConfig with sensible defaults.
func DefaultMosquittoConfig() MosquittoConfig {
	return MosquittoConfig{ImageTag: "2.0"}
}

// NewMosquittoContainer creates and starts a Mosquitto MQTT broker container.
// If config is nil, uses DefaultMosquittoConfig().
func NewMosquittoContainer(ctx context.Context, config *MosquittoConfig) (*MosquittoContainer, error) {
	if config == nil {
		defaultCfg := DefaultMosquittoConfig()
		config = &defaultCfg
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("eclipse-mosquitto:%s", config.ImageTag),
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            strings.NewReader(mosquittoConfig),
				ContainerFilePath: "/mosquitto-no-auth.conf",
				FileMode:          0o644,
			},
		},
		WaitingFor: wait.ForLog("mosquitto version").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	host, port, err := endpoint(ctx, container, "1883")
	if err != nil {
		terminate(container)
		return nil, err
	}
	if err := WaitForTCP(ctx, host, port, 10*time.Second); err != nil {
		terminate(container)
		return nil, err
	}

	mc := &MosquittoContainer{
		container: container,
		brokerURL: "tcp://" + net.JoinHostPort(host, strconv.Itoa(port)),
	}
	if err := mc.HealthCheck(); err != nil {
		terminate(container)
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return mc, nil
}

// BrokerURL returns the MQTT broker URL (e.g., "tcp://localhost:1883").
func (c *MosquittoContainer) BrokerURL() string {
	return c.brokerURL
}

// HealthCheck connects and disconnects a throwaway client.
func (c *MosquittoContainer) HealthCheck() error {
	client, err := c.CreateClient("healthcheck", func(o *mqtt.ClientOptions) {
		o.SetAutoReconnect(false)
	})
	if err != nil {
		return err
	}
	client.Disconnect(250)
	return nil
}

// CreateClient creates a new MQTT client connected to this broker.
// The caller is responsible for disconnecting the client when done.
func (c *MosquittoContainer) CreateClient(clientID string, opts ...func(*mqtt.ClientOptions)) (mqtt.Client, error) {
	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(c.brokerURL)
	mqttOpts.SetClientID(clientID)
	mqttOpts.SetConnectTimeout(10 * time.Second)
	mqttOpts.SetAutoReconnect(true)
	for _, opt := range opts {
		opt(mqttOpts)
	}

	client := mqtt.NewClient(mqttOpts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect client %s: %w", clientID, token.Error())
	}
	return client, nil
}

// Terminate stops and removes the Mosquitto container.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
