package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil {
				t.Error("expected nil partial writer when disabled")
			}
			if p.writerDialog != nil {
				t.Error("expected nil dialog writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "test.partial",
		TopicDialog:  "test.dialog",
		Principal:    "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicPartial != "test.partial" {
		t.Errorf("expected topic partial 'test.partial', got %s", p.topicPartial)
	}
	if p.topicDialog != "test.dialog" {
		t.Errorf("expected topic dialog 'test.dialog', got %s", p.topicDialog)
	}
}

func TestPublisher_PublishPartial_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := map[string]string{"text": "test partial"}
	err := p.PublishPartial(context.Background(), "test-key", event)

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishDialog_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := map[string]string{"text": "test dialog"}
	err := p.PublishDialog(context.Background(), "test-key", event)

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishPartial_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Create an unmarshalable value (channel)
	event := make(chan int)
	err := p.PublishPartial(context.Background(), "test-key", event)

	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_PublishDialog_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Create an unmarshalable value (channel)
	event := make(chan int)
	err := p.PublishDialog(context.Background(), "test-key", event)

	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{
		writerPartial: nil,
		writerDialog:  nil,
	}

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}

type testEvent struct {
	EventType  string `json:"eventType"`
	AnalysisID string `json:"analysisId"`
	Text       string `json:"text"`
}

func TestPublisher_PublishPartial_ValidEvent(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		TopicPartial: "test.partial",
		Principal:    "test-svc",
	})

	event := testEvent{
		EventType:  "interaction.transcript.partial",
		AnalysisID: "an-123",
		Text:       "hello world",
	}

	err := p.PublishPartial(context.Background(), "an-123", event)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestPublisher_PublishDialog_ValidEvent(t *testing.T) {
	p := New(&Config{
		Enabled:     false,
		TopicDialog: "test.dialog",
		Principal:   "test-svc",
	})

	event := testEvent{
		EventType:  "interaction.dialog.completed",
		AnalysisID: "an-123",
		Text:       "hello world",
	}

	err := p.PublishDialog(context.Background(), "an-123", event)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

type recordingSink struct {
	mu       sync.Mutex
	kinds    []string
	keys     []string
	payloads []string
	err      error
	closed   bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, kind, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.keys = append(s.keys, key)
	s.payloads = append(s.payloads, string(payload))
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestPublisher_FansOutToSinks(t *testing.T) {
	p := New(&Config{Enabled: false, TopicPartial: "p", TopicDialog: "d"})
	sink := &recordingSink{}
	p.AddSink(sink)

	ctx := context.Background()
	if err := p.PublishPartial(ctx, "an-1", testEvent{Text: "hel"}); err != nil {
		t.Fatalf("publish partial: %v", err)
	}
	if err := p.PublishDialog(ctx, "an-1", testEvent{Text: "hello"}); err != nil {
		t.Fatalf("publish dialog: %v", err)
	}

	if len(sink.kinds) != 2 || sink.kinds[0] != KindPartial || sink.kinds[1] != KindDialog {
		t.Errorf("unexpected kinds: %v", sink.kinds)
	}
	if sink.keys[1] != "an-1" {
		t.Errorf("expected key an-1, got %s", sink.keys[1])
	}
	if sink.payloads[1] != `{"eventType":"","analysisId":"","text":"hello"}` {
		t.Errorf("unexpected payload: %s", sink.payloads[1])
	}

	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if !sink.closed {
		t.Error("expected sink to be closed with the publisher")
	}
}

func TestPublisher_SinkErrorReturned(t *testing.T) {
	p := New(nil)
	boom := errors.New("sink down")
	p.AddSink(&recordingSink{err: boom})

	err := p.PublishDialog(context.Background(), "an-1", testEvent{})
	if !errors.Is(err, boom) {
		t.Errorf("expected sink error, got %v", err)
	}
}
