package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "ai-dialog-analysis-service/internal/api/grpc"
	"ai-dialog-analysis-service/internal/app"
	"ai-dialog-analysis-service/internal/config"
	httpapi "ai-dialog-analysis-service/internal/http"
	"ai-dialog-analysis-service/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}

	obsServer := observability.NewServer(cfg.Service.MetricsAddr, application.Ready)
	obsServer.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Dialog analysis HTTP API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	grpcServer, healthServer := grpcapi.NewServer(application.Pipeline, grpcapi.Options{
		MaxRecvBytes:     int(cfg.Ingest.MaxUploadBytes),
		MaxDownloadBytes: cfg.Ingest.MaxDownloadBytes,
		HTTPClient:       application.HTTPClient,
	})
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("Dialog analysis gRPC API started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("grpc serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("observability shutdown")
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("application shutdown")
	}
}
