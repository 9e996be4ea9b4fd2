package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/jobwatch/internal/client"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/export"
	"github.com/joseph-ayodele/jobwatch/internal/journal"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

// Stack holds everything a binary needs to run jobs against the service.
type Stack struct {
	Caller    client.Caller
	HTTP      *client.HTTPCaller // nil when the transport is gRPC
	Engine    *poll.Engine
	Journal   *journal.Journal
	Processor *core.Processor
	Exporter  *export.Service

	closers []func() error
	logger  *slog.Logger
}

// Build wires the caller for cfg.Service.Transport, the polling engine, the
// in-memory journal and the processor. Call Cleanup when done.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stack{logger: logger}

	switch cfg.Service.Transport {
	case common.TransportGRPC:
		gc, err := client.DialGRPC(cfg.Service.GRPCTarget, cfg.Service.APIKey, logger)
		if err != nil {
			return nil, common.WrapError(err, "dial service")
		}
		s.Caller = gc
		s.closers = append(s.closers, gc.Close)
	default:
		s.HTTP = client.NewHTTPCaller(client.HTTPConfig{
			BaseURL: cfg.Service.BaseURL,
			APIKey:  cfg.Service.APIKey,
			Timeout: cfg.Service.HTTPTimeout,
		}, nil, logger)
		s.Caller = s.HTTP
	}

	engine, err := poll.New(client.NewStatusFetcher(s.Caller), poll.Config{
		Interval:        cfg.Poll.Interval,
		Timeout:         cfg.Poll.Timeout,
		AnnounceRetries: cfg.Poll.AnnounceRetries,
	}, poll.WithLogger(logger))
	if err != nil {
		s.Cleanup()
		return nil, err
	}
	s.Engine = engine

	j, err := journal.Open(ctx, logger)
	if err != nil {
		s.Cleanup()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	s.Journal = j
	s.closers = append(s.closers, j.Close)
	s.Exporter = export.NewService(j, logger)

	opts := []core.ProcessorOption{
		core.WithRecorder(j),
		core.WithMaxUploadBytes(cfg.Validation.MaxUploadBytes),
	}
	for kind, v := range core.DefaultValidators(cfg.Validation.MinResultLength) {
		opts = append(opts, core.WithValidator(kind, v))
	}
	s.Processor = core.NewProcessor(client.NewSubmitter(s.Caller, logger), engine, logger, opts...)

	logger.Info("app.ready",
		"transport", cfg.Service.Transport,
		"poll_interval", cfg.Poll.Interval.String(),
		"poll_timeout", cfg.Poll.Timeout.String(),
	)
	return s, nil
}

// Cleanup closes the journal and the service connection, newest first.
func (s *Stack) Cleanup() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("app.cleanup_failed", "error", err)
		}
	}
	s.closers = nil
}
