package grpcapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/ingest"
	"ai-dialog-analysis-service/internal/observability"
	"ai-dialog-analysis-service/internal/observability/metrics"
	"ai-dialog-analysis-service/internal/service/pipeline"
)

// Server implements DialogAnalysisServer on top of the pipeline.
type Server struct {
	pipeline    *pipeline.Pipeline
	client      *http.Client
	maxDownload int64
	metrics     *metrics.Metrics
}

// Options configures the gRPC listener.
type Options struct {
	MaxRecvBytes     int
	MaxDownloadBytes int64
	HTTPClient       *http.Client
}

// NewServer builds a gRPC server with the analysis service, health checks and
// reflection registered. The returned health server is SERVING.
func NewServer(p *pipeline.Pipeline, opts Options) (*grpc.Server, *health.Server) {
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			observability.RecoveryUnaryInterceptor(),
			observability.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor()),
	}
	if opts.MaxRecvBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(opts.MaxRecvBytes))
	}
	g := grpc.NewServer(serverOpts...)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	Register(g, p, opts)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return g, healthServer
}

// Register adds DialogAnalysisService to g.
func Register(g *grpc.Server, p *pipeline.Pipeline, opts Options) {
	s := &Server{
		pipeline:    p,
		client:      opts.HTTPClient,
		maxDownload: opts.MaxDownloadBytes,
		metrics:     metrics.DefaultMetrics,
	}
	g.RegisterService(&ServiceDesc, s)
}

// Analyze implements DialogAnalysisServer.
func (s *Server) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	start := time.Now()
	s.metrics.RecordRequestStart("grpc")

	src, err := s.source(req)
	var a *pipeline.Analysis
	if err == nil {
		a, err = s.pipeline.AnalyzeSource(ctx, src)
	}
	s.metrics.RecordRequestEnd(analysiserr.Kind(err), time.Since(start).Seconds())
	if err != nil {
		return nil, toStatus(err)
	}

	return &AnalyzeResponse{
		AnalysisID:     a.ID,
		Dialog:         a.Result.Dialog,
		ResultDuration: a.Result.ResultDuration,
	}, nil
}

func (s *Server) source(req *AnalyzeRequest) (ingest.Source, error) {
	if len(req.Audio) > 0 {
		return ingest.NewFileBytes(req.Filename, req.Audio), nil
	}
	remote, err := ingest.ParseURL(req.URL)
	if err != nil {
		return nil, err
	}
	remote.Client = s.client
	remote.MaxBytes = s.maxDownload
	return remote, nil
}

// CodeFor maps an analysis error kind to a gRPC status code.
func CodeFor(kind string) codes.Code {
	switch kind {
	case "input_source", "audio_format", "timing_data":
		return codes.InvalidArgument
	case "limit_exceeded":
		return codes.ResourceExhausted
	case "recognizer":
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func toStatus(err error) error {
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	kind := analysiserr.Kind(err)
	msg := err.Error()
	switch {
	case errors.Is(err, ingest.ErrUnsupported):
		msg = ingest.UnsupportedMessage
	case kind == "internal":
		msg = "internal error"
	}
	return status.Error(CodeFor(kind), kind+": "+msg)
}
