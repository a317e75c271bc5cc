package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"ai-dialog-analysis-service/internal/observability/logging"
)

// NATSConfig holds NATS sink configuration.
type NATSConfig struct {
	Servers        []string
	SubjectPrefix  string
	ConnectTimeout time.Duration
	Principal      string
}

// NATSSink publishes events as core NATS messages on
// <prefix>.partial and <prefix>.dialog subjects.
type NATSSink struct {
	conn      *nats.Conn
	prefix    string
	principal string
	logger    zerolog.Logger
}

// ConnectNATS dials the configured servers.
func ConnectNATS(cfg NATSConfig) (*NATSSink, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{nats.Name("dialog-analysis")}
	if cfg.ConnectTimeout > 0 {
		options = append(options, nats.Timeout(cfg.ConnectTimeout))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "dialog"
	}

	logger := logging.WithComponent("nats")
	logger.Info().Str("servers", url).Str("subjectPrefix", prefix).Msg("Connected to NATS")
	return &NATSSink{conn: conn, prefix: prefix, principal: cfg.Principal, logger: logger}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string {
	return "nats"
}

// Subject returns the subject used for events of kind.
func (s *NATSSink) Subject(kind string) string {
	return s.prefix + "." + kind
}

// Publish implements Sink.
func (s *NATSSink) Publish(_ context.Context, kind, key string, payload []byte) error {
	msg := &nats.Msg{
		Subject: s.Subject(kind),
		Data:    payload,
		Header:  nats.Header{},
	}
	msg.Header.Set("key", key)
	msg.Header.Set("principal", s.principal)
	return s.conn.PublishMsg(msg)
}

// Healthy reports whether the connection is up.
func (s *NATSSink) Healthy() bool {
	return s != nil && s.conn != nil && s.conn.Status() == nats.CONNECTED
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.logger.Info().Msg("Closing NATS connection")
	err := s.conn.Drain()
	s.conn.Close()
	return err
}
