// Package api serves the dashboard-facing query interface and owns the
// wiring of the scan pipeline: store, scanner, ingestor, scheduler,
// and aggregation engine.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/l10dash/l10dash/pkg/agg"
	"github.com/l10dash/l10dash/pkg/config"
	"github.com/l10dash/l10dash/pkg/ingest"
	"github.com/l10dash/l10dash/pkg/metrics"
	"github.com/l10dash/l10dash/pkg/scanner"
	"github.com/l10dash/l10dash/pkg/store"
	"github.com/l10dash/l10dash/pkg/timeutil"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the service lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	engine     *agg.Engine
	sched      *ingest.Scheduler
	registry   *prometheus.Registry
	httpServer *http.Server
	limiter    *rateLimiterMap
	wg         sync.WaitGroup
}

// NewServer creates the service server.
func NewServer(log logrus.FieldLogger, cfg *config.Config) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start wires the components, binds the listener, and launches the
// scan scheduler. The scheduler starts only after the HTTP server is
// listening so the dashboard is reachable while the first pass runs.
func (s *server) Start(ctx context.Context) error {
	zones, err := timeutil.LoadZones(
		s.cfg.Timezone.Source, s.cfg.Timezone.Display,
	)
	if err != nil {
		return fmt.Errorf("resolving timezones: %w", err)
	}

	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	s.registry = prometheus.NewRegistry()
	m := metrics.New(s.registry)

	sc := scanner.NewSFTPScanner(s.log, &s.cfg.Remote, s.cfg.Scan.Concurrency)
	ingestor := ingest.NewIngestor(
		s.log, sc, s.store, zones, m, s.cfg.Scan.PassTimeoutDuration(),
	)

	s.sched = ingest.NewScheduler(
		s.log,
		ingestor,
		s.cfg.Scan.WarmupDuration(),
		s.cfg.Scan.IntervalDuration(),
	)

	s.engine = agg.NewEngine(s.log, s.store, zones)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server, the scheduler, and the
// store, in that order.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.limiter != nil {
		s.limiter.stop()
	}

	if s.sched != nil {
		if err := s.sched.Stop(); err != nil {
			s.log.WithError(err).Warn("Scheduler stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("Server stopped")

	return nil
}
