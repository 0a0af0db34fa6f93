package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dgketchum/Landsat578/internal/observability"
	"github.com/rs/zerolog"
)

type Config struct {
	GRPCAddr string
	HTTPAddr string
	// ShutdownTimeout bounds the graceful stop once ctx is done.
	ShutdownTimeout time.Duration
}

// Run serves gRPC and HTTP until ctx is cancelled or either listener fails.
func Run(ctx context.Context, cfg Config, d Discovery, st StatusSource, logger zerolog.Logger, metrics *observability.Collector) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", cfg.GRPCAddr, err)
	}
	grpcSrv := NewGRPCServer(d, logger, metrics)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(d, st, logger, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("starting gRPC server")
		errs <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
			return
		}
		errs <- nil
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
		logger.Error().Err(err).Msg("server exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	logger.Info().Msg("servers stopped")
	return err
}
