package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/events"
	"ai-dialog-analysis-service/internal/service/stt"
)

// testAdapter implements stt.Adapter for testing
type testAdapter struct {
	started  bool
	closed   int
	audio    [][]byte
	cb       stt.Callback
	sendErr  error
	onClose  func(cb stt.Callback)
	startErr error
}

func (m *testAdapter) Start(ctx context.Context, cb stt.Callback) error {
	m.started = true
	m.cb = cb
	return m.startErr
}

func (m *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	m.audio = append(m.audio, audio)
	return m.sendErr
}

func (m *testAdapter) Close() error {
	m.closed++
	if m.onClose != nil {
		m.onClose(m.cb)
	} else if m.cb != nil {
		m.cb.OnResult(stt.RecognitionResult{Final: true})
	}
	return nil
}

// recordingSink captures published events.
type recordingSink struct {
	mu       sync.Mutex
	kinds    []string
	payloads []string
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, kind, _ string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.payloads = append(s.payloads, string(payload))
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

// newMockPublisher returns a log-only publisher
func newMockPublisher() *events.Publisher {
	return events.New(&events.Config{Enabled: false})
}

func newTestCollector(adapter *testAdapter, limits Limits) (*Collector, *Lifecycle) {
	lc := NewLifecycle("0b7c1a52-6f1e-4c1e-9d4f-0a1b2c3d4e5f")
	c := NewCollector(adapter, newMockPublisher(), lc, CollectorOptions{
		Provider:   "test",
		SampleRate: 8000,
		Limits:     limits,
	})
	return c, lc
}

func TestCollector_MaxAudioBytesLimit(t *testing.T) {
	adapter := &testAdapter{}
	c, lc := newTestCollector(adapter, Limits{MaxAudioBytes: 100})
	ctx := context.Background()
	_ = c.Start(ctx)

	// Send 50 bytes - should succeed
	if err := c.SendAudio(ctx, make([]byte, 50)); err != nil {
		t.Fatalf("First send should succeed: %v", err)
	}

	// Send 60 more bytes - should exceed the limit
	err := c.SendAudio(ctx, make([]byte, 60))
	if !errors.Is(err, analysiserr.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if !lc.IsFailed() {
		t.Error("request should be failed after exceeding audio bytes")
	}
	if len(adapter.audio) != 1 {
		t.Errorf("expected only the first chunk forwarded, got %d", len(adapter.audio))
	}

	// Further sends are rejected with the recorded failure
	if err := c.SendAudio(ctx, make([]byte, 2)); !errors.Is(err, analysiserr.ErrLimitExceeded) {
		t.Errorf("expected recorded failure on later send, got %v", err)
	}
}

func TestCollector_MaxDurationLimit(t *testing.T) {
	adapter := &testAdapter{}
	c, lc := newTestCollector(adapter, Limits{MaxDuration: time.Second})
	ctx := context.Background()
	_ = c.Start(ctx)

	// Exactly one second at 8kHz 16-bit is allowed
	if err := c.SendAudio(ctx, make([]byte, 16000)); err != nil {
		t.Fatalf("one second should be within the limit: %v", err)
	}

	err := c.SendAudio(ctx, make([]byte, 2))
	if !errors.Is(err, analysiserr.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("expected duration reason, got %v", err)
	}
	if !lc.IsFailed() {
		t.Error("request should be failed after exceeding duration")
	}
}

func TestCollector_MaxPartialsLimit(t *testing.T) {
	adapter := &testAdapter{}
	c, lc := newTestCollector(adapter, Limits{MaxPartials: 3})
	_ = c.Start(context.Background())

	for i := 0; i < 3; i++ {
		c.OnPartial("partial")
	}
	if lc.IsFailed() {
		t.Fatal("should not fail within partial limit")
	}

	c.OnPartial("one too many")
	if !lc.IsFailed() {
		t.Fatal("should fail after exceeding partial limit")
	}
	if !errors.Is(c.Err(), analysiserr.ErrLimitExceeded) {
		t.Errorf("expected ErrLimitExceeded, got %v", c.Err())
	}
}

func TestCollector_PublishesPartials(t *testing.T) {
	adapter := &testAdapter{}
	publisher := newMockPublisher()
	sink := &recordingSink{}
	publisher.AddSink(sink)

	lc := NewLifecycle("0b7c1a52-6f1e-4c1e-9d4f-0a1b2c3d4e5f")
	c := NewCollector(adapter, publisher, lc, CollectorOptions{Provider: "test", SampleRate: 8000})
	_ = c.Start(context.Background())

	c.OnPartial("hello")
	c.OnPartial("hello there")

	if n := sink.count(events.KindPartial); n != 2 {
		t.Fatalf("expected 2 partial events, got %d", n)
	}
	if !strings.Contains(sink.payloads[1], `"sequence":2`) {
		t.Errorf("expected sequence 2 in payload, got %s", sink.payloads[1])
	}
	if !strings.Contains(sink.payloads[0], lc.AnalysisID()) {
		t.Errorf("expected analysis id in payload, got %s", sink.payloads[0])
	}
	if got := c.Stats().PartialCount; got != 2 {
		t.Errorf("expected 2 partials counted, got %d", got)
	}
}

func TestCollector_ResultsInOrder(t *testing.T) {
	adapter := &testAdapter{}
	c, _ := newTestCollector(adapter, DefaultLimits())
	_ = c.Start(context.Background())

	c.OnResult(stt.RecognitionResult{Text: "one"})
	c.OnResult(stt.RecognitionResult{Text: ""})
	c.OnResult(stt.RecognitionResult{Text: "three", Final: true})

	results := c.Results()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"one", "", "three"} {
		if results[i].Text != want {
			t.Errorf("result %d: expected %q, got %q", i, want, results[i].Text)
		}
	}

	// Results returns a copy
	results[0].Text = "mutated"
	if c.Results()[0].Text != "one" {
		t.Error("Results should return a copy")
	}
}

func TestCollector_IgnoresResultsAfterFinal(t *testing.T) {
	adapter := &testAdapter{}
	c, _ := newTestCollector(adapter, DefaultLimits())
	_ = c.Start(context.Background())

	c.OnResult(stt.RecognitionResult{Text: "final", Final: true})
	c.OnResult(stt.RecognitionResult{Text: "late"})

	if n := len(c.Results()); n != 1 {
		t.Errorf("expected 1 result, got %d", n)
	}
}

func TestCollector_Close_DeliversFinal(t *testing.T) {
	adapter := &testAdapter{}
	c, _ := newTestCollector(adapter, DefaultLimits())
	_ = c.Start(context.Background())

	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := c.Results()
	if len(results) != 1 || !results[0].Final {
		t.Fatalf("expected one final result, got %+v", results)
	}

	// Close is idempotent
	if err := c.Close(); err != nil {
		t.Errorf("second close: unexpected error: %v", err)
	}
	if adapter.closed != 1 {
		t.Errorf("adapter should be closed once, got %d", adapter.closed)
	}
}

func TestCollector_Close_WithoutFinal(t *testing.T) {
	adapter := &testAdapter{onClose: func(stt.Callback) {}}
	c, lc := newTestCollector(adapter, DefaultLimits())
	_ = c.Start(context.Background())

	err := c.Close()
	if !errors.Is(err, analysiserr.ErrRecognizer) {
		t.Fatalf("expected ErrRecognizer, got %v", err)
	}
	if !lc.IsFailed() {
		t.Error("request should be failed without a final result")
	}
}

func TestCollector_OnError_FailsRequest(t *testing.T) {
	adapter := &testAdapter{}
	c, lc := newTestCollector(adapter, DefaultLimits())
	ctx := context.Background()
	_ = c.Start(ctx)

	c.OnResult(stt.RecognitionResult{Text: "before"})
	c.OnError(errors.New("stream reset"))

	if !lc.IsFailed() {
		t.Fatal("request should be failed after OnError")
	}
	if err := c.SendAudio(ctx, make([]byte, 2)); !errors.Is(err, analysiserr.ErrRecognizer) {
		t.Errorf("expected ErrRecognizer on send, got %v", err)
	}

	// Output after the failure is ignored
	c.OnResult(stt.RecognitionResult{Text: "after", Final: true})
	if n := len(c.Results()); n != 1 {
		t.Errorf("expected 1 result, got %d", n)
	}
}

func TestCollector_OnError_KeepsKind(t *testing.T) {
	adapter := &testAdapter{}
	c, _ := newTestCollector(adapter, DefaultLimits())
	_ = c.Start(context.Background())

	c.OnError(analysiserr.ErrTimingData)
	if !errors.Is(c.Err(), analysiserr.ErrTimingData) {
		t.Errorf("expected ErrTimingData kept, got %v", c.Err())
	}
}

func TestCollector_SendError(t *testing.T) {
	adapter := &testAdapter{sendErr: errors.New("broken pipe")}
	c, _ := newTestCollector(adapter, DefaultLimits())
	ctx := context.Background()
	_ = c.Start(ctx)

	if err := c.SendAudio(ctx, make([]byte, 2)); !errors.Is(err, analysiserr.ErrRecognizer) {
		t.Errorf("expected ErrRecognizer, got %v", err)
	}
}

func TestCollector_Stats(t *testing.T) {
	adapter := &testAdapter{}
	c, _ := newTestCollector(adapter, DefaultLimits())
	ctx := context.Background()
	_ = c.Start(ctx)

	_ = c.SendAudio(ctx, make([]byte, 100))
	_ = c.SendAudio(ctx, make([]byte, 50))
	c.OnPartial("p")
	c.OnResult(stt.RecognitionResult{Text: "r"})

	stats := c.Stats()
	if stats.AudioBytes != 150 {
		t.Errorf("expected 150 audio bytes, got %d", stats.AudioBytes)
	}
	if stats.PartialCount != 1 {
		t.Errorf("expected 1 partial, got %d", stats.PartialCount)
	}
	if stats.ResultCount != 1 {
		t.Errorf("expected 1 result, got %d", stats.ResultCount)
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxAudioBytes != 50*1024*1024 {
		t.Errorf("expected 50MB, got %d", limits.MaxAudioBytes)
	}
	if limits.MaxDuration != 10*time.Minute {
		t.Errorf("expected 10m, got %v", limits.MaxDuration)
	}
	if limits.MaxPartials != 5000 {
		t.Errorf("expected 5000, got %d", limits.MaxPartials)
	}
}
