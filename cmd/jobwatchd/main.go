package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/jobwatch/internal/app"
	"github.com/joseph-ayodele/jobwatch/internal/async"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/ingest"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
	"github.com/joseph-ayodele/jobwatch/internal/server"
)

func main() {
	var (
		dirs        = flag.String("dirs", "", "comma-separated directories to watch (overrides WATCH_DIRS)")
		addr        = flag.String("addr", "", "gRPC listen address (overrides HEALTH_ADDR)")
		workers     = flag.Int("workers", 0, "concurrent jobs (overrides WATCH_WORKERS)")
		noScan      = flag.Bool("no-initial-scan", false, "ignore PDFs already present at startup")
		report      = flag.String("report", "", "write an XLSX report of all sessions on shutdown")
		drainPeriod = flag.Duration("drain", 30*time.Second, "how long shutdown waits for running jobs")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	if *dirs != "" {
		cfg.Watch.Dirs = nil
		for _, d := range strings.Split(*dirs, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Watch.Dirs = append(cfg.Watch.Dirs, d)
			}
		}
	}
	if *addr != "" {
		cfg.Health.Addr = *addr
	}
	if *workers > 0 {
		cfg.Watch.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !strings.Contains(cfg.Health.Addr, ":") {
		cfg.Health.Addr = ":" + cfg.Health.Addr
	}

	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer stack.Cleanup()

	queue := async.NewProcessorQueue(stack.Processor, logger,
		async.WithWorkers(cfg.Watch.Workers),
		async.WithQueueSize(cfg.Watch.QueueSize),
		async.WithProcessTimeout(cfg.Poll.Timeout+5*time.Minute),
	)

	ingestor := ingest.NewFSIngestor(queue, logger).WithCallbacks(func(path string) poll.Callbacks {
		return poll.Callbacks{
			OnUpdate: func(u poll.Update) {
				logger.Debug("jobwatchd.progress", "path", path, "task_id", u.Handle, "state", u.State, "text", u.Text)
			},
			OnComplete: func(payload any) {
				logger.Info("jobwatchd.done", "path", path, "artifacts", len(core.Artifacts(payload)))
			},
			OnError: func(err error) {
				logger.Warn("jobwatchd.failed", "path", path, "error", common.UserMessage(err))
			},
		}
	})

	// gRPC server: health plus the watch admin service
	lis, err := net.Listen("tcp", cfg.Health.Addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Health.Addr, "error", err)
		os.Exit(1)
	}
	watchService := server.NewWatchService(stack.Journal, stack.Exporter, ingestor, logger)
	grpcServer, healthServer := server.NewGRPCServer(watchService, logger)

	logger.Info("jobwatchd listening", "addr", cfg.Health.Addr, "dirs", cfg.Watch.Dirs)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	if len(cfg.Watch.Dirs) > 0 {
		paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Watch.Dirs,
			InitialScan: !*noScan,
			SkipHidden:  true,
			Debounce:    cfg.Watch.Debounce,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
		go func() {
			for err := range errs {
				logger.Warn("jobwatchd.watch_error", "error", err)
			}
		}()
		go func() {
			for p := range paths {
				if _, err := ingestor.IngestPath(ctx, p); err != nil {
					logger.Warn("jobwatchd.ingest_failed", "path", p, "error", err)
				}
			}
		}()
	} else {
		logger.Info("jobwatchd.no_watch_dirs", "hint", "set WATCH_DIRS or -dirs, or use the IngestPath RPC")
	}

	<-ctx.Done()
	logger.Info("jobwatchd.shutdown")
	healthServer.Shutdown()

	drainCtx, cancel := context.WithTimeout(context.Background(), *drainPeriod)
	queue.Shutdown(drainCtx)
	cancel()

	if *report != "" {
		if err := stack.Exporter.WriteSessionsXLSX(context.Background(), *report); err != nil {
			logger.Error("failed to write report", "path", *report, "error", err)
		} else {
			logger.Info("jobwatchd.report_written", "path", *report)
		}
	}
	grpcServer.GracefulStop()
}
