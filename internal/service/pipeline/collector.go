package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/events"
	"ai-dialog-analysis-service/internal/models"
	"ai-dialog-analysis-service/internal/observability/logging"
	"ai-dialog-analysis-service/internal/observability/metrics"
	"ai-dialog-analysis-service/internal/service/stt"
)

// Limits defines safety guardrails for one analysis request.
type Limits struct {
	MaxAudioBytes int64         // Max PCM bytes sent to the recognizer
	MaxDuration   time.Duration // Max audio duration, measured on the samples sent
	MaxPartials   int           // Max interim hypotheses accepted
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 50 * 1024 * 1024, // 50MB (~54 minutes at 8kHz 16-bit mono)
		MaxDuration:   10 * time.Minute,
		MaxPartials:   5000,
	}
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Provider   string
	Principal  string
	SampleRate int
	Limits     Limits
}

// Collector gathers the recognition results of one request.
// It implements stt.Callback, forwards audio to the adapter under the request
// limits and publishes interim hypotheses as they arrive. Results are kept in
// recognition order, including results without words.
type Collector struct {
	adapter   stt.Adapter
	publisher *events.Publisher
	lifecycle *Lifecycle
	opts      CollectorOptions
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu            sync.Mutex
	startTime     time.Time
	audioBytes    int64
	partialCount  int
	results       []stt.RecognitionResult
	finalReceived bool
	closed        bool
	err           error
}

// NewCollector creates a collector for one recognition session. publisher may
// be nil, in which case partials are counted but not published.
func NewCollector(adapter stt.Adapter, publisher *events.Publisher, lifecycle *Lifecycle, opts CollectorOptions) *Collector {
	return &Collector{
		adapter:   adapter,
		publisher: publisher,
		lifecycle: lifecycle,
		opts:      opts,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithRecognizer(lifecycle.AnalysisID(), opts.Provider),
		startTime: time.Now(),
	}
}

// Start begins the STT session with this collector as the callback receiver.
func (c *Collector) Start(ctx context.Context) error {
	if err := c.adapter.Start(ctx, c); err != nil {
		err = recognizerError(err)
		c.fail(err)
		return err
	}
	return nil
}

// SendAudio forwards PCM bytes to the adapter.
// Returns an ErrLimitExceeded error, and fails the request, when a limit is
// crossed. Errors reported asynchronously through OnError surface here too.
func (c *Collector) SendAudio(ctx context.Context, pcm []byte) error {
	if !c.lifecycle.CanCollect() {
		return c.closedErr()
	}

	c.mu.Lock()
	c.audioBytes += int64(len(pcm))
	currentBytes := c.audioBytes
	c.mu.Unlock()

	if c.opts.Limits.MaxAudioBytes > 0 && currentBytes > c.opts.Limits.MaxAudioBytes {
		return c.exceed("audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", currentBytes, c.opts.Limits.MaxAudioBytes))
	}
	if c.opts.Limits.MaxDuration > 0 && c.opts.SampleRate > 0 {
		audio := time.Duration(float64(currentBytes/2) / float64(c.opts.SampleRate) * float64(time.Second))
		if audio > c.opts.Limits.MaxDuration {
			return c.exceed("duration", fmt.Sprintf("max duration exceeded: %v > %v", audio.Round(time.Millisecond), c.opts.Limits.MaxDuration))
		}
	}

	c.metrics.RecordAudioReceived(len(pcm))
	if err := c.adapter.SendAudio(ctx, pcm); err != nil {
		err = recognizerError(err)
		c.metrics.RecordSTTError(c.opts.Provider, "send")
		c.fail(err)
		return err
	}
	return c.Err()
}

// Close flushes the recognizer. On success the final result has been
// collected. Close is idempotent; only the first call reaches the adapter.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.Err()
	}
	c.closed = true
	c.mu.Unlock()

	start := time.Now()
	err := c.adapter.Close()
	c.metrics.RecordSTTLatency(c.opts.Provider, time.Since(start).Seconds())
	if err != nil {
		err = recognizerError(err)
		c.metrics.RecordSTTError(c.opts.Provider, "close")
		c.fail(err)
		return err
	}
	if err := c.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	final := c.finalReceived
	c.mu.Unlock()
	if !final && !c.lifecycle.IsFailed() {
		err := fmt.Errorf("%w: session closed without a final result", analysiserr.ErrRecognizer)
		c.fail(err)
		return err
	}
	return c.closedErr()
}

// Results returns a copy of the collected results in recognition order.
func (c *Collector) Results() []stt.RecognitionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]stt.RecognitionResult, len(c.results))
	copy(out, c.results)
	return out
}

// Err returns the first failure seen by the collector.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// --- stt.Callback implementation ---

// OnPartial is called when an interim hypothesis is received.
// Only counted and published while the request is collecting and within limits.
func (c *Collector) OnPartial(text string) {
	if !c.lifecycle.CanCollect() {
		c.logger.Debug().
			Str("state", c.lifecycle.State().String()).
			Msg("partial ignored")
		return
	}

	c.mu.Lock()
	c.partialCount++
	count := c.partialCount
	c.mu.Unlock()

	if c.opts.Limits.MaxPartials > 0 && count > c.opts.Limits.MaxPartials {
		_ = c.exceed("partials", fmt.Sprintf("max partials exceeded: %d > %d", count, c.opts.Limits.MaxPartials))
		return
	}

	c.metrics.RecordPartialTranscript()
	if c.publisher == nil {
		return
	}
	ev := models.TranscriptPartial{
		EventType:  models.EventTranscriptPartial,
		AnalysisID: c.lifecycle.AnalysisID(),
		Principal:  c.opts.Principal,
		Timestamp:  time.Now().UnixMilli(),
		Sequence:   count,
		Text:       text,
	}
	if err := c.publisher.PublishPartial(context.Background(), ev.AnalysisID, ev); err != nil {
		c.logger.Warn().Err(err).Int("sequence", count).Msg("failed to publish partial")
	}
}

// OnResult is called for every recognition result, the final one included.
// Results after the final are ignored.
func (c *Collector) OnResult(res stt.RecognitionResult) {
	if !c.lifecycle.CanCollect() {
		c.logger.Debug().
			Str("state", c.lifecycle.State().String()).
			Msg("result ignored")
		return
	}

	c.mu.Lock()
	if c.finalReceived {
		c.mu.Unlock()
		c.logger.Warn().Msg("result after final ignored")
		return
	}
	c.results = append(c.results, res)
	if res.Final {
		c.finalReceived = true
	}
	c.mu.Unlock()

	c.metrics.RecordResult(res.Final)
}

// OnError is called when the recognizer fails asynchronously.
// The request is FAILED; results collected so far are discarded by the caller.
func (c *Collector) OnError(err error) {
	err = recognizerError(err)
	c.metrics.RecordSTTError(c.opts.Provider, "stream")
	c.fail(err)
}

// CollectorStats holds request usage figures for observability.
type CollectorStats struct {
	AudioBytes   int64
	PartialCount int
	ResultCount  int
	Elapsed      time.Duration
}

// Stats returns current usage figures.
func (c *Collector) Stats() CollectorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CollectorStats{
		AudioBytes:   c.audioBytes,
		PartialCount: c.partialCount,
		ResultCount:  len(c.results),
		Elapsed:      time.Since(c.startTime),
	}
}

func (c *Collector) exceed(limit, reason string) error {
	err := fmt.Errorf("%w: %s", analysiserr.ErrLimitExceeded, reason)
	c.metrics.RecordLimitExceeded(limit)
	c.fail(err)
	return err
}

func (c *Collector) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	oldState := c.lifecycle.State()
	if c.lifecycle.Fail(err) {
		c.logger.Warn().
			Err(err).
			Str("previousState", oldState.String()).
			Msg("analysis FAILED")
	}
}

func (c *Collector) closedErr() error {
	if err := c.lifecycle.Err(); err != nil {
		return err
	}
	if c.lifecycle.IsClosed() {
		return ErrRequestClosed
	}
	return nil
}

// recognizerError classifies backend errors that carry no analysis kind yet.
func recognizerError(err error) error {
	if analysiserr.Kind(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %v", analysiserr.ErrRecognizer, err)
}
