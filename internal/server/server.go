// Package server exposes the pipeline over gRPC and serves Prometheus
// metrics on a separate HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/docextract/internal/observability/metrics"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	GRPCAddr    string
	MetricsAddr string // empty disables the metrics listener
}

type Server struct {
	opts    Options
	grpc    *grpc.Server
	health  *health.Server
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

func New(opts Options, svc DocumentServiceServer, m *metrics.PipelineMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	RegisterDocumentServiceServer(gs, svc)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{opts: opts, grpc: gs, health: hs, metrics: m, logger: logger}
}

// ListenAndServe listens on Options.GRPCAddr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.GRPCAddr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve blocks until ctx is done or a listener fails, then stops both
// servers gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	var httpSrv *http.Server
	if s.opts.MetricsAddr != "" {
		httpSrv = &http.Server{
			Addr:              s.opts.MetricsAddr,
			Handler:           s.MetricsMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server.grpc.listening", "addr", lis.Addr().String())
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	if httpSrv != nil {
		g.Go(func() error {
			s.logger.Info("server.metrics.listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("server.shutdown")
		s.health.Shutdown()
		s.grpc.GracefulStop()
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(sctx); err != nil {
				s.logger.Warn("server.metrics.shutdown_failed", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

// MetricsMux serves /metrics and a plain /healthz.
func (s *Server) MetricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
