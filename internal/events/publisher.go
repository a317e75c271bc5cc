// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-dialog-analysis-service/internal/observability/metrics"
)

// Event kinds, used as metric labels and sink routing keys.
const (
	KindPartial = "partial"
	KindDialog  = "dialog"
)

// Sink receives every published event alongside Kafka.
type Sink interface {
	Name() string
	Publish(ctx context.Context, kind, key string, payload []byte) error
	Close() error
}

// Publisher publishes analysis events to separate Kafka topics and to any
// attached sinks.
type Publisher struct {
	writerPartial *kafka.Writer
	writerDialog  *kafka.Writer
	principal     string
	topicPartial  string
	topicDialog   string
	enabled       bool
	metrics       *metrics.Metrics

	mu    sync.RWMutex
	sinks []Sink
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicDialog  string
	Principal    string
	Enabled      bool
}

// New creates a new Kafka event publisher with separate topics for partial
// transcripts and completed dialogs.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicPartial: cfg.TopicPartial,
			topicDialog:  cfg.TopicDialog,
			enabled:      false,
			metrics:      m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerPartial := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicPartial,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	// Dialogs are keyed by analysis ID; hashing keeps one analysis on one partition.
	writerDialog := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicDialog,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicDialog", cfg.TopicDialog).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerPartial: writerPartial,
		writerDialog:  writerDialog,
		principal:     cfg.Principal,
		topicPartial:  cfg.TopicPartial,
		topicDialog:   cfg.TopicDialog,
		enabled:       true,
		metrics:       m,
	}
}

// AddSink attaches an additional destination for every event.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// PublishPartial publishes a partial transcript event.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, KindPartial, key, event)
}

// PublishDialog publishes a completed dialog event.
func (p *Publisher) PublishDialog(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerDialog, p.topicDialog, KindDialog, key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, kind, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	var errs []error
	if err := p.writeKafka(ctx, writer, topic, kind, key, payload); err != nil {
		errs = append(errs, err)
	}

	p.mu.RLock()
	sinks := p.sinks
	p.mu.RUnlock()
	for _, s := range sinks {
		start := time.Now()
		err := s.Publish(ctx, kind, key, payload)
		p.metrics.RecordPublish(s.Name(), topic, kind, err, time.Since(start).Seconds())
		if err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Str("key", key).Msg("Failed to publish to sink")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) writeKafka(ctx context.Context, writer *kafka.Writer, topic, kind, key string, payload []byte) error {
	start := time.Now()

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordPublish("log", topic, kind, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordPublish("kafka", topic, kind, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordPublish("kafka", topic, kind, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers and every attached sink.
func (p *Publisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing partial writer")
			err = e
		}
	}
	if p.writerDialog != nil {
		if e := p.writerDialog.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing dialog writer")
			err = e
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sinks {
		if e := s.Close(); e != nil {
			log.Error().Err(e).Str("sink", s.Name()).Msg("Error closing sink")
			err = e
		}
	}
	p.sinks = nil
	return err
}
