package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

const commitTimeout = 10 * time.Second

// KafkaSourceConfig configures the position consumer.
type KafkaSourceConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	BatchSize    int
	BatchTimeout time.Duration
}

// messageReader is the subset of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads positions from a consumer group and feeds them to a
// Submitter. Offsets are committed per batch, after every message of the
// batch has been evaluated, so a crash replays at most one batch.
type KafkaSource struct {
	reader       messageReader
	pool         Submitter
	batchSize    int
	batchTimeout time.Duration
	metrics      *Metrics
	log          logger.Logger
}

// NewKafkaSource creates a source reading cfg.Topic as cfg.GroupID.
func NewKafkaSource(cfg KafkaSourceConfig, pool Submitter, metrics *Metrics, log logger.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})
	return newKafkaSource(reader, cfg, pool, metrics, log)
}

func newKafkaSource(reader messageReader, cfg KafkaSourceConfig, pool Submitter, metrics *Metrics, log logger.Logger) *KafkaSource {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &KafkaSource{
		reader:       reader,
		pool:         pool,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		metrics:      metrics,
		log:          log.With(logger.String("component", "kafka_source"), logger.String("topic", cfg.Topic)),
	}
}

// Run consumes until ctx is cancelled. The batch in progress at cancellation
// is still evaluated and committed.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.log.Info("starting kafka consumer")
	for {
		batch, err := s.fetchBatch(ctx)
		if len(batch) > 0 {
			s.process(ctx, batch)
		}
		if ctx.Err() != nil {
			s.log.Info("kafka consumer stopped")
			return nil
		}
		if errors.Is(err, io.EOF) {
			s.log.Info("kafka reader closed")
			return nil
		}
		if err != nil {
			s.log.Error("fetch message failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// fetchBatch blocks for the first message, then collects more until the
// batch is full or batchTimeout has passed since the first one arrived.
func (s *KafkaSource) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	fillCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()
	for len(batch) < s.batchSize {
		msg, err := s.reader.FetchMessage(fillCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func (s *KafkaSource) process(ctx context.Context, batch []kafka.Message) {
	s.metrics.MessagesReceived.WithLabelValues("kafka").Add(float64(len(batch)))

	var wg sync.WaitGroup
	for i := range batch {
		msg := &batch[i]
		wg.Add(1)
		// Shutdown must not strand fetched messages, so submission ignores ctx.
		if err := s.pool.Submit(context.WithoutCancel(ctx), truckKey(msg.Key, msg.Value), msg.Value, wg.Done); err != nil {
			wg.Done()
			s.log.Warn("message not queued",
				logger.Int64("offset", msg.Offset),
				logger.Int("partition", msg.Partition),
				logger.Error(err))
		}
	}
	wg.Wait()

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := s.reader.CommitMessages(commitCtx, batch...); err != nil {
		s.metrics.CommitFailures.Inc()
		s.log.Error("offset commit failed",
			logger.Int("messages", len(batch)),
			logger.Error(err))
	}
}

// Close closes the reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// KafkaSinkConfig configures the alert producer.
type KafkaSinkConfig struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes alerts keyed by truck id, so one truck's alerts land on one
// partition in order. Writes are asynchronous; delivery failures are logged
// and counted from the writer's completion callback.
type KafkaSink struct {
	writer  messageWriter
	metrics *Metrics
	log     logger.Logger
}

// NewKafkaSink creates a sink producing to cfg.Topic.
func NewKafkaSink(cfg KafkaSinkConfig, metrics *Metrics, log logger.Logger) *KafkaSink {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	s := &KafkaSink{
		metrics: metrics,
		log:     log.With(logger.String("component", "kafka_sink"), logger.String("topic", cfg.Topic)),
	}
	s.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireAll,
		Completion:   s.completed,
	}
	return s
}

func (s *KafkaSink) completed(messages []kafka.Message, err error) {
	if err == nil {
		s.metrics.SinkMessages.WithLabelValues("kafka", "ok").Add(float64(len(messages)))
		return
	}
	s.metrics.SinkMessages.WithLabelValues("kafka", "error").Add(float64(len(messages)))
	for i := range messages {
		s.log.Error("alert delivery failed",
			logger.String("truck_id", string(messages[i].Key)),
			logger.Error(err))
	}
}

// Name implements alerting.Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Publish implements alerting.Sink.
func (s *KafkaSink) Publish(ctx context.Context, key string, payload []byte) error {
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		return errors.Wrap(err).Component("kafka_sink").Category(errors.CategoryStream).Build()
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
