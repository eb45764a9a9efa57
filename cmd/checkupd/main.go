package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/internal/app"
	"github.com/joseph-ayodele/checkup-extractor/internal/async"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.WithRemoteRefsOnly())
	if err != nil {
		logger.Error("failed to start", "error", err, "store", cfg.Database.Driver)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Records.Ping(ctx); err != nil {
		logger.Error("store health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("store health OK", "store", cfg.Database.Driver)

	queue := async.NewProcessorQueue(a.Processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	submitter := server.NewSubmitter(a.Registry, a.Processor, queue, a.Loader, server.Defaults{
		VisionProvider: cfg.Pipeline.DefaultVisionProvider,
		ParserProvider: cfg.Pipeline.DefaultParserProvider,
	}, logger)

	errc := make(chan error, 2)

	var httpServer *server.HTTPServer
	if cfg.Server.HTTPAddr != "" {
		handler := server.NewHandler(a.Registry, submitter, a.Records, a.Exporter, cfg.Server.MaxUploadMB, logger)
		httpServer = server.NewHTTPServer(server.HTTPConfig{
			Addr:           cfg.Server.HTTPAddr,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxUploadMB:    cfg.Server.MaxUploadMB,
		}, handler, logger)
		go func() { errc <- httpServer.Start() }()
	}

	var grpcServer *server.GRPCServer
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		svc := server.NewHealthDataService(submitter, a.Processor, a.Records, logger)
		grpcServer = server.NewGRPCServer(svc, logger)
		go func() { errc <- grpcServer.Serve(lis) }()
	}

	logger.Info("checkupd started",
		"deployment", cfg.Deployment,
		"store", cfg.Database.Driver,
		"http", cfg.Server.HTTPAddr,
		"grpc", cfg.Server.GRPCAddr,
		"workers", cfg.Queue.Workers,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}
	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
