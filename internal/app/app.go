package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-dialog-analysis-service/internal/config"
	"ai-dialog-analysis-service/internal/events"
	"ai-dialog-analysis-service/internal/observability/logging"
	"ai-dialog-analysis-service/internal/observability/tracing"
	"ai-dialog-analysis-service/internal/service/dialog"
	"ai-dialog-analysis-service/internal/service/pipeline"
	"ai-dialog-analysis-service/internal/service/spectral"
	"ai-dialog-analysis-service/internal/service/stt"
	sttexec "ai-dialog-analysis-service/internal/service/stt/exec"
	"ai-dialog-analysis-service/internal/service/stt/google"
	"ai-dialog-analysis-service/internal/service/stt/mock"
	"ai-dialog-analysis-service/internal/store"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	// Set by Start.
	Model      stt.Model
	Publisher  *events.Publisher
	Store      *store.Store
	Pipeline   *pipeline.Pipeline
	HTTPClient *http.Client

	ready    atomic.Bool
	shutdown []func(context.Context) error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Dialog analysis service application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	obs := a.Cfg.Observability
	format := obs.LogFormat
	if a.Cfg.Service.Environment == "dev" {
		format = "console"
	}
	logging.Init(logging.Config{
		Level:      strings.ToLower(obs.LogLevel),
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a.Logger = log.With().
		Str("service", "ai-dialog-analysis-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Environment).
		Msg("Logger setup completed")
}

// Start builds the recognition model and every pipeline dependency. The model
// is loaded once here and shared by all requests.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Dialog analysis service starting")

	cfg := a.Cfg
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "ai-dialog-analysis-service",
		Environment: cfg.Service.Environment,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		SampleRate:  cfg.Observability.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.onShutdown(shutdownTracing)

	model, err := NewModel(ctx, cfg.STT)
	if err != nil {
		return fmt.Errorf("load %s model: %w", cfg.STT.Provider, err)
	}
	a.Model = model
	if c, ok := model.(interface{ Close() error }); ok {
		a.onShutdown(func(context.Context) error { return c.Close() })
	}

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicDialog:  cfg.Kafka.TopicDialog,
		Principal:    cfg.Kafka.Principal,
	})
	a.onShutdown(func(context.Context) error { return a.Publisher.Close() })

	if cfg.NATS.Enabled {
		sink, err := events.ConnectNATS(events.NATSConfig{
			Servers:        cfg.NATS.Servers,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
			Principal:      cfg.Service.Principal,
		})
		if err != nil {
			// The bus is optional; Kafka or log-only publishing continues.
			startLogger.Warn().Err(err).Msg("NATS unavailable, continuing without it")
		} else {
			a.Publisher.AddSink(sink)
		}
	}

	a.Pipeline = pipeline.New(model, a.Publisher, pipeline.Options{
		Analysis: dialog.Config{
			RaisedVoiceHz: cfg.Analysis.RaisedVoiceHz,
			GenderHz:      cfg.Analysis.GenderHz,
			Welch:         spectral.Options{SegmentLength: cfg.Analysis.WelchSegmentLength},
		},
		Limits: pipeline.Limits{
			MaxAudioBytes: cfg.RequestLimits.MaxAudioBytes,
			MaxDuration:   cfg.RequestLimits.MaxDuration,
			MaxPartials:   cfg.RequestLimits.MaxPartials,
		},
		ChunkFrames: cfg.STT.ChunkFrames,
		Principal:   cfg.Service.Principal,
	})

	if cfg.Store.Enabled {
		st, err := store.Open(ctx, store.Config{
			Path:          cfg.Store.Path,
			RetentionMode: cfg.Store.RetentionMode,
			RetentionDays: cfg.Store.RetentionDays,
			MaxRecords:    cfg.Store.MaxRecords,
		})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.Store = st
		a.Pipeline.SetRecorder(st)
		a.onShutdown(func(context.Context) error { return st.Close() })
	}

	a.HTTPClient = &http.Client{Timeout: cfg.Ingest.DownloadTimeout}
	a.ready.Store(true)

	startLogger.Info().
		Str("sttProvider", model.Name()).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Bool("store", cfg.Store.Enabled).
		Msg("Dialog analysis service started")
	return nil
}

// Ready reports whether the application can serve requests.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown performs a best-effort cleanup before process exit, releasing
// dependencies in reverse start order.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Dialog analysis service shutting down")
	a.ready.Store(false)

	var errs []error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdown = nil
	return errors.Join(errs...)
}

func (a *Application) onShutdown(fn func(context.Context) error) {
	a.shutdown = append(a.shutdown, fn)
}

// NewModel loads the recognition backend named by cfg.Provider.
func NewModel(ctx context.Context, cfg config.STTConfig) (stt.Model, error) {
	switch cfg.Provider {
	case "", "mock":
		return mock.NewModel(), nil
	case "exec":
		m, err := sttexec.NewModel(sttexec.Config{
			Command:   cfg.Command,
			ModelPath: cfg.ModelPath,
			Language:  cfg.LanguageCode,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "google":
		m, err := google.NewModel(ctx, google.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   cfg.SampleRateHz,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}
