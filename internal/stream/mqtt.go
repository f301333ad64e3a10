package stream

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// MQTTConfig configures the broker connection shared by MQTTSource and
// MQTTSink.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// ConnectMQTT opens an auto-reconnecting client session.
func ConnectMQTT(ctx context.Context, cfg MQTTConfig, log logger.Logger) (paho.Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	log = log.With(logger.String("component", "mqtt"), logger.String("broker", cfg.Broker))

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("connected to mqtt broker")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", logger.Error(err))
		})

	client := paho.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, errors.Newf("connect to mqtt broker %s: %w", cfg.Broker, err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}
	return client, nil
}

// waitToken waits for token to complete or ctx to end.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mqttClient is the subset of paho.Client used here.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// MQTTSource subscribes to position messages published directly by devices.
// The paho callback must not block, so a full shard queue drops the message.
type MQTTSource struct {
	client  mqttClient
	topic   string
	qos     byte
	pool    Submitter
	metrics *Metrics
	log     logger.Logger
}

// NewMQTTSource creates a source subscribing to topic.
func NewMQTTSource(client mqttClient, topic string, qos byte, pool Submitter, metrics *Metrics, log logger.Logger) *MQTTSource {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &MQTTSource{
		client:  client,
		topic:   topic,
		qos:     qos,
		pool:    pool,
		metrics: metrics,
		log:     log.With(logger.String("component", "mqtt_source"), logger.String("topic", topic)),
	}
}

// Run subscribes and blocks until ctx is cancelled.
func (s *MQTTSource) Run(ctx context.Context) error {
	if err := waitToken(ctx, s.client.Subscribe(s.topic, s.qos, s.onMessage)); err != nil {
		return errors.Newf("subscribe to %s: %w", s.topic, err).
			Component("mqtt_source").
			Category(errors.CategoryStream).
			Build()
	}
	s.log.Info("subscribed to position topic")

	<-ctx.Done()

	unsubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := waitToken(unsubCtx, s.client.Unsubscribe(s.topic)); err != nil {
		s.log.Warn("unsubscribe failed", logger.Error(err))
	}
	return nil
}

func (s *MQTTSource) onMessage(_ paho.Client, msg paho.Message) {
	s.metrics.MessagesReceived.WithLabelValues("mqtt").Inc()
	payload := msg.Payload()
	if !s.pool.TrySubmit(truckKey(nil, payload), payload, nil) {
		s.log.Warn("position message dropped",
			logger.String("topic", msg.Topic()))
	}
}

// MQTTSink publishes each alert to "<topic>/<truck id>".
type MQTTSink struct {
	client  mqttClient
	topic   string
	qos     byte
	metrics *Metrics
}

// NewMQTTSink creates a sink publishing under topic.
func NewMQTTSink(client mqttClient, topic string, qos byte, metrics *Metrics) *MQTTSink {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &MQTTSink{client: client, topic: topic, qos: qos, metrics: metrics}
}

// Name implements alerting.Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Publish implements alerting.Sink.
func (s *MQTTSink) Publish(ctx context.Context, key string, payload []byte) error {
	topic := s.topic + "/" + key
	if err := waitToken(ctx, s.client.Publish(topic, s.qos, false, payload)); err != nil {
		s.metrics.SinkMessages.WithLabelValues("mqtt", "error").Inc()
		return errors.Newf("publish to %s: %w", topic, err).
			Component("mqtt_sink").
			Category(errors.CategoryStream).
			Build()
	}
	s.metrics.SinkMessages.WithLabelValues("mqtt", "ok").Inc()
	return nil
}
