package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/events"
	"ai-dialog-analysis-service/internal/ingest"
	"ai-dialog-analysis-service/internal/models"
	"ai-dialog-analysis-service/internal/observability/logging"
	"ai-dialog-analysis-service/internal/observability/metrics"
	"ai-dialog-analysis-service/internal/observability/tracing"
	"ai-dialog-analysis-service/internal/schema"
	"ai-dialog-analysis-service/internal/service/audio"
	"ai-dialog-analysis-service/internal/service/dialog"
	"ai-dialog-analysis-service/internal/service/stt"
	"ai-dialog-analysis-service/internal/store"
)

// Options tunes a Pipeline.
type Options struct {
	Analysis    dialog.Config
	Limits      Limits
	ChunkFrames int
	Principal   string
}

// DefaultOptions returns the default pipeline options.
func DefaultOptions() Options {
	return Options{
		Analysis:    dialog.DefaultConfig(),
		Limits:      DefaultLimits(),
		ChunkFrames: audio.DefaultChunkFrames,
	}
}

// Recorder persists analysis outcomes.
type Recorder interface {
	Save(ctx context.Context, rec store.Record) error
	RetentionMode() string
}

// Analysis is the outcome of one successful request.
type Analysis struct {
	ID           string
	Source       string
	SampleRate   int
	AudioSeconds float64
	ResultCount  int
	Utterances   []dialog.Utterance
	Result       *dialog.Result
	Elapsed      time.Duration
}

// Pipeline turns one audio stream into a dialog result. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	model     stt.Model
	analyzer  *dialog.Analyzer
	publisher *events.Publisher
	validator *schema.Validator
	recorder  Recorder
	opts      Options
	metrics   *metrics.Metrics
	newID     func() string
}

// New creates a pipeline around a loaded recognition model. publisher may be
// nil.
func New(model stt.Model, publisher *events.Publisher, opts Options) *Pipeline {
	if opts.ChunkFrames <= 0 {
		opts.ChunkFrames = audio.DefaultChunkFrames
	}
	return &Pipeline{
		model:     model,
		analyzer:  dialog.NewAnalyzer(opts.Analysis),
		publisher: publisher,
		validator: schema.New(),
		opts:      opts,
		metrics:   metrics.DefaultMetrics,
		newID:     uuid.NewString,
	}
}

// SetRecorder enables persistence of analysis outcomes.
func (p *Pipeline) SetRecorder(r Recorder) {
	p.recorder = r
}

// Provider returns the name of the recognition backend.
func (p *Pipeline) Provider() string {
	return p.model.Name()
}

// Analyze runs an uploaded WAV stream through the pipeline and returns the
// dialog result.
func (p *Pipeline) Analyze(ctx context.Context, r io.ReadSeeker) (*dialog.Result, error) {
	a, err := p.Run(ctx, ingest.KindFile, r)
	if err != nil {
		return nil, err
	}
	return a.Result, nil
}

// AnalyzeSource opens src and runs it through the pipeline.
func (p *Pipeline) AnalyzeSource(ctx context.Context, src ingest.Source) (*Analysis, error) {
	ctx, span := tracing.StartSpan(ctx, "dialog.ingest", attribute.String("dialog.source", src.Kind()))
	start := time.Now()
	rc, err := src.Open(ctx)
	p.metrics.RecordStage("ingest", time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return p.Run(ctx, src.Kind(), rc)
}

// Run executes every stage for one request. Any error aborts the request:
// no partial dialog is returned.
func (p *Pipeline) Run(ctx context.Context, source string, r io.ReadSeeker) (*Analysis, error) {
	id := p.newID()
	logger := logging.WithRecognizer(id, p.model.Name())
	ctx, span := tracing.StartSpan(ctx, "dialog.run",
		attribute.String("dialog.analysis_id", id),
		attribute.String("dialog.source", source),
		attribute.String("dialog.stt_provider", p.model.Name()),
	)

	start := time.Now()
	lc := NewLifecycle(id)
	a := &Analysis{ID: id, Source: source}

	err := p.run(ctx, lc, r, a, logger)
	a.Elapsed = time.Since(start)
	if err != nil {
		lc.Fail(err)
		logger.Warn().
			Err(err).
			Str("kind", analysiserr.Kind(err)).
			Dur("elapsed", a.Elapsed).
			Msg("analysis failed")
		p.record(ctx, a, err, logger)
		tracing.End(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("dialog.turns", len(a.Utterances)),
		attribute.Float64("dialog.audio_seconds", a.AudioSeconds),
	)
	p.publish(ctx, a, logger)
	p.record(ctx, a, nil, logger)
	if err := lc.Advance(StateDone); err != nil {
		logger.Error().Err(err).Msg("lifecycle")
	}
	logger.Info().
		Int("results", a.ResultCount).
		Int("turns", len(a.Utterances)).
		Float64("audioSeconds", a.AudioSeconds).
		Dur("elapsed", a.Elapsed).
		Msg("analysis completed")
	tracing.End(span, nil)
	return a, nil
}

func (p *Pipeline) run(ctx context.Context, lc *Lifecycle, r io.ReadSeeker, a *Analysis, logger zerolog.Logger) error {
	buf, results, err := p.collect(ctx, lc, r)
	if err != nil {
		return err
	}
	a.SampleRate = buf.SampleRate
	a.AudioSeconds = buf.Duration()
	a.ResultCount = len(results)
	p.metrics.RecordAudioDuration(a.AudioSeconds)

	if err := lc.Advance(StateAnalyzing); err != nil {
		return err
	}
	start := time.Now()
	_, span := tracing.StartSpan(ctx, "dialog.spectral", attribute.Int("dialog.results", len(results)))
	utterances, err := p.analyzer.Analyze(buf, results)
	tracing.End(span, err)
	p.metrics.RecordStage("analyze", time.Since(start).Seconds())
	if err != nil {
		return err
	}
	for _, u := range utterances {
		p.metrics.RecordUtterance(u.DominantFrequency)
	}
	if skipped := len(results) - len(utterances); skipped > 0 {
		p.metrics.RecordSkipped(skipped)
		logger.Debug().Int("skipped", skipped).Msg("results without words skipped")
	}
	a.Utterances = utterances

	if err := lc.Advance(StateAssembling); err != nil {
		return err
	}
	start = time.Now()
	_, span = tracing.StartSpan(ctx, "dialog.assemble", attribute.Int("dialog.utterances", len(utterances)))
	asm := dialog.NewAssembler()
	for _, u := range utterances {
		turn := asm.Add(u)
		p.metrics.RecordTurn(turn.Source)
	}
	result, err := asm.Result()
	tracing.End(span, err)
	p.metrics.RecordStage("assemble", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("encode dialog: %w", err)
	}
	a.Result = result
	return nil
}

// collect decodes the stream, fills the frame store and feeds the recognizer
// chunk by chunk. It returns the frozen samples and every collected result.
func (p *Pipeline) collect(ctx context.Context, lc *Lifecycle, r io.ReadSeeker) (buf audio.SampleBuffer, results []stt.RecognitionResult, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "dialog.collect")
	defer func() {
		tracing.End(span, err)
		p.metrics.RecordStage("collect", time.Since(start).Seconds())
	}()

	dec, err := audio.NewDecoder(r)
	if err != nil {
		return buf, nil, err
	}
	frames, err := audio.NewFrameStore(dec.SampleRate())
	if err != nil {
		return buf, nil, err
	}
	span.SetAttributes(attribute.Int("dialog.sample_rate", dec.SampleRate()))

	adapter, err := p.model.NewAdapter(dec.SampleRate())
	if err != nil {
		return buf, nil, recognizerError(err)
	}
	c := NewCollector(adapter, p.publisher, lc, CollectorOptions{
		Provider:   p.model.Name(),
		Principal:  p.opts.Principal,
		SampleRate: dec.SampleRate(),
		Limits:     p.opts.Limits,
	})
	if err = c.Start(ctx); err != nil {
		_ = c.Close()
		return buf, nil, err
	}

	if err = p.feed(ctx, dec, frames, c); err != nil {
		// Release the recognizer session; its final result is discarded.
		_ = c.Close()
		return buf, nil, err
	}

	if err = lc.Advance(StateFinalizing); err != nil {
		_ = c.Close()
		return buf, nil, err
	}
	if err = c.Close(); err != nil {
		return buf, nil, err
	}
	return frames.Freeze(), c.Results(), nil
}

func (p *Pipeline) feed(ctx context.Context, dec *audio.Decoder, frames *audio.FrameStore, c *Collector) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := dec.Next(p.opts.ChunkFrames)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := frames.Append(chunk.Samples); err != nil {
			return err
		}
		if err := c.SendAudio(ctx, chunk.PCM); err != nil {
			return err
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, a *Analysis, logger zerolog.Logger) {
	if p.publisher == nil {
		return
	}
	turns, err := a.Result.Turns()
	if err != nil {
		logger.Error().Err(err).Msg("decode turns for event")
		return
	}
	ev := models.DialogCompleted{
		EventType:       models.EventDialogCompleted,
		AnalysisID:      a.ID,
		Principal:       p.opts.Principal,
		Timestamp:       time.Now().UnixMilli(),
		Source:          a.Source,
		STTProvider:     p.model.Name(),
		SampleRate:      a.SampleRate,
		AudioSeconds:    a.AudioSeconds,
		ResultCount:     a.ResultCount,
		Turns:           turns,
		ResultDuration:  a.Result.ResultDuration,
		ProcessingMilli: a.Elapsed.Milliseconds(),
	}
	if err := p.validator.Validate(ev); err != nil {
		logger.Error().Err(err).Msg("dialog event rejected")
		return
	}
	if err := p.publisher.PublishDialog(ctx, a.ID, ev); err != nil {
		logger.Warn().Err(err).Msg("failed to publish dialog")
	}
}

func (p *Pipeline) record(ctx context.Context, a *Analysis, runErr error, logger zerolog.Logger) {
	if p.recorder == nil {
		return
	}
	rec := store.Record{
		AnalysisID:   a.ID,
		Source:       a.Source,
		STTProvider:  p.model.Name(),
		SampleRate:   a.SampleRate,
		AudioSeconds: a.AudioSeconds,
		Status:       store.StatusDone,
	}
	if runErr != nil {
		rec.Status = store.StatusFailed
		rec.ErrorKind = analysiserr.Kind(runErr)
	} else if a.Result != nil {
		payload, err := json.Marshal(a.Result)
		if err != nil {
			logger.Error().Err(err).Msg("encode result for store")
			return
		}
		rec.Result = payload
	}
	// The request context may already be cancelled on failure.
	err := p.recorder.Save(context.WithoutCancel(ctx), rec)
	p.metrics.RecordStoreWrite(p.recorder.RetentionMode(), err)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to store analysis")
	}
}
