package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/minucst/portal/pkg/api/store"
	"github.com/minucst/portal/pkg/auth"
	"github.com/minucst/portal/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log            logrus.FieldLogger
	cfg            *config.Config
	auth           *auth.Service
	store          store.Store
	registry       *prometheus.Registry
	limiters       []*rateLimiterMap
	trustedProxies []netip.Prefix
	httpServer     *http.Server
	group          *errgroup.Group
	done           chan struct{}
	stopOnce       sync.Once
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the audit store, builds the auth service and starts the HTTP
// server. On error everything opened so far is released again.
func (s *server) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			_ = s.release()
		}
	}()

	var audit auth.AuditSink

	if s.cfg.Database.Enabled {
		st := store.NewStore(s.log, &s.cfg.Database)
		if err := st.Start(ctx); err != nil {
			return fmt.Errorf("starting store: %w", err)
		}

		s.store = st
		audit = st
	}

	var metrics *auth.Metrics

	if s.cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		metrics = auth.NewMetrics(s.registry)
	}

	svc, err := NewAuthService(s.log, &s.cfg.Auth, audit, metrics, nil)
	if err != nil {
		return err
	}

	s.auth = svc

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

	g, gCtx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error {
		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			return fmt.Errorf("serving http: %w", err)
		}

		return nil
	})

	if s.store != nil {
		g.Go(func() error {
			s.runRetentionSweep(gCtx)

			return nil
		})
	}

	return nil
}

// runRetentionSweep periodically deletes audit rows older than the
// configured retention until the server stops.
func (s *server) runRetentionSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Database.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepAudit(ctx)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *server) sweepAudit(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Database.Retention)

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Warn("Failed to sweep audit records")

		return
	}

	if deleted > 0 {
		s.log.WithField("deleted", deleted).Debug("Swept audit records")
	}
}

// Stop gracefully shuts down the HTTP server, waits for the background
// goroutines and closes the store. It returns the first error any of them
// reported.
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

	s.signalDone()

	var groupErr error
	if s.group != nil {
		groupErr = s.group.Wait()
	}

	if err := s.release(); err != nil {
		return err
	}

	s.log.Info("API server stopped")

	return groupErr
}

func (s *server) signalDone() {
	s.stopOnce.Do(func() { close(s.done) })
}

// release stops the throttler cleanup goroutines and closes the store.
func (s *server) release() error {
	s.signalDone()

	for _, l := range s.limiters {
		l.stop()
	}

	if s.store == nil {
		return nil
	}

	st := s.store
	s.store = nil

	if err := st.Stop(); err != nil {
		return fmt.Errorf("stopping store: %w", err)
	}

	return nil
}
