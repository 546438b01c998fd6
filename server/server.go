// Package server provides the HTTP server for the reparcel pipeline.
//
// The server exposes a REST API to trigger and monitor contract
// reprocessing executions, inspect the work queue and index snapshot
// history, and manage the runtime configuration.
//
// # Endpoints
//
//   - POST /api/run - Start a pipeline execution
//   - GET /api/executions - List execution records, newest first
//   - GET /api/executions/{id} - Return one execution record
//   - POST /api/executions/{id}/cancel - Request cancellation at the next stage boundary
//   - DELETE /api/executions/{id} - Evict a finished execution from the registry
//   - DELETE /api/executions - Evict all finished executions
//   - GET /api/executions/{id}/logs - Per-stage captured logs of an execution
//   - GET /api/queue - Current work queue
//   - POST /api/queue/rebuild - Regenerate the queue from analysis records
//   - GET /api/snapshots - Index snapshot history
//   - GET /api/stats - Aggregate execution statistics
//   - GET /api/status - Run status, next scheduled run, store health
//   - GET /health - Health check, degraded when every store backend is down
//   - GET /metrics - Prometheus scrape endpoint
//   - GET /config - Current pipeline configuration as YAML, secrets masked
//   - POST /reload - Reload the pipeline configuration from disk
//
// # Architecture
//
// The server maintains two sets of dependencies:
//
// Config-derived deps (stage service clients, the notification dispatcher)
// are swapped atomically on reload and picked up by the next stage
// invocation. A run already in flight keeps the clients it started with
// only for the stage currently executing.
//
// Long-lived deps (execution registry, store backends, the runner, the
// metrics registry) are built once at startup. Changing store settings
// requires a restart.
//
// # Example
//
//	srvCfg, err := serverconfig.LoadConfig("/etc/reparcel/server.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(srvCfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcouto/reparcel/buildinfo"
	"github.com/mcouto/reparcel/clients/stagesvc"
	"github.com/mcouto/reparcel/config"
	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/logging"
	"github.com/mcouto/reparcel/metrics"
	"github.com/mcouto/reparcel/notify"
	"github.com/mcouto/reparcel/pipeline"
	serverconfig "github.com/mcouto/reparcel/server/config"
	"github.com/mcouto/reparcel/server/cron"
	"github.com/mcouto/reparcel/server/handlers"
	"github.com/mcouto/reparcel/server/types"
	"github.com/mcouto/reparcel/store"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config     *config.Config
	indices    *stagesvc.Client
	analysis   *stagesvc.Client
	erp        *stagesvc.Client
	bank       *stagesvc.Client
	dispatcher *notify.Dispatcher
}

// Server is the HTTP server for the reparcel pipeline.
type Server struct {
	srvCfg   *serverconfig.ServerConfig
	logger   *slog.Logger
	logLevel *slog.LevelVar
	deps     atomic.Pointer[serverDeps]

	registry *execution.Registry
	store    *store.Hybrid
	runner   *pipeline.Runner
	scrape   *metrics.ScrapeRegistry
	recorder *metrics.Pipeline

	triggers   []*cron.Trigger
	certLoader *CertLoader
	httpServer *http.Server

	hostname  string
	startedAt time.Time
}

// New creates a Server from the given runtime configuration. It loads the
// pipeline configuration and initializes all dependencies.
func New(srvCfg *serverconfig.ServerConfig) (*Server, error) {
	level, err := logging.ParseLevel(srvCfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logLevel := &slog.LevelVar{}
	logLevel.Set(level)

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	s := &Server{
		srvCfg:    srvCfg,
		logger:    logger,
		logLevel:  logLevel,
		registry:  execution.NewRegistry(),
		hostname:  hostname,
		startedAt: time.Now(),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	cfg := s.Config()

	scrape, err := metrics.NewScrapeRegistry()
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	recorder, err := metrics.NewPipeline(scrape)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline metrics: %w", err)
	}
	s.scrape = scrape
	s.recorder = recorder

	primary := store.NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), cfg.Redis.KeyPrefix, cfg.Redis.TTL, logger)
	secondary, err := store.NewDisk(cfg.Store.Dir, cfg.Store.MaxExecutions, cfg.Store.MaxSnapshots, logger)
	if err != nil {
		return nil, fmt.Errorf("creating disk store: %w", err)
	}
	s.store = store.NewHybrid(primary, secondary, cfg.Store.RecentWindow, logger)

	s.runner = pipeline.NewRunner(logger, s, s.registry, s.store, s.collaborators(),
		pipeline.WithNotifier(&serverNotifier{server: s}),
		pipeline.WithRecorder(recorder),
	)

	for _, entry := range srvCfg.Cron {
		var job func() error
		switch entry.Job {
		case serverconfig.JobPipeline:
			job = s.runScheduled
		case serverconfig.JobReport:
			job = s.sendDailyReport
		default:
			return nil, fmt.Errorf("unknown cron job %q", entry.Job)
		}
		trigger, err := cron.NewTrigger(entry.Job, entry.Schedule, job, logger)
		if err != nil {
			return nil, fmt.Errorf("creating %s trigger: %w", entry.Job, err)
		}
		s.triggers = append(s.triggers, trigger)
	}

	if srvCfg.TLS != nil {
		loader, err := NewCertLoader(srvCfg.TLS.CertFile, srvCfg.TLS.KeyFile, logger)
		if err != nil {
			return nil, fmt.Errorf("creating cert loader: %w", err)
		}
		s.certLoader = loader
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogLevel changes the server's log level at runtime.
func (s *Server) SetLogLevel(level slog.Level) {
	s.logLevel.Set(level)
}

// Reload reads the pipeline config from disk and rebuilds the config-derived
// dependencies. The new stage clients and notification routes apply from the
// next stage invocation onward.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.srvCfg.PipelineConfig)
	if err != nil {
		return err
	}

	indices, err := s.stageClient(cfg.Stages.Indices)
	if err != nil {
		return fmt.Errorf("indices stage: %w", err)
	}
	analysis, err := s.stageClient(cfg.Stages.Analysis)
	if err != nil {
		return fmt.Errorf("analysis stage: %w", err)
	}
	erp, err := s.stageClient(cfg.Stages.ERP)
	if err != nil {
		return fmt.Errorf("erp stage: %w", err)
	}
	bank, err := s.stageClient(cfg.Stages.Bank)
	if err != nil {
		return fmt.Errorf("bank stage: %w", err)
	}

	s.deps.Store(&serverDeps{
		config:     &cfg,
		indices:    indices,
		analysis:   analysis,
		erp:        erp,
		bank:       bank,
		dispatcher: notify.NewDispatcher(s.logger, notify.RoutesFromConfig(cfg.Notify)...),
	})

	s.logger.Info("configuration loaded", "config_path", s.srvCfg.PipelineConfig)

	return nil
}

func (s *Server) stageClient(sc config.StageConfig) (*stagesvc.Client, error) {
	return stagesvc.New(sc.URL,
		stagesvc.WithToken(sc.Token),
		stagesvc.WithLogger(s.logger),
	)
}

// Config returns the current pipeline configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// StartRun starts a pipeline execution. When a push endpoint is configured,
// the metrics snapshot is pushed once the execution finishes.
func (s *Server) StartRun(params execution.Params, triggeredBy string) (string, error) {
	id, err := s.runner.Start(params, triggeredBy)
	if err != nil {
		return "", err
	}
	s.pushWhenDone(id)
	return id, nil
}

func (s *Server) pushWhenDone(id string) {
	mon := s.Config().Monitoring
	if mon.PushURL == "" {
		return
	}
	done, err := s.registry.Done(id)
	if err != nil {
		return
	}

	go func() {
		<-done
		pusher := metrics.NewPusher(metrics.PushConfig{
			URL:      mon.PushURL,
			Prefix:   mon.MetricsPrefix,
			Job:      mon.JobName,
			Instance: s.hostname,
		})
		ctx, cancel := context.WithTimeout(context.Background(), metrics.DefaultTimeout)
		defer cancel()
		if err := pusher.Push(ctx, s.scrape); err != nil {
			s.logger.Warn("failed to push metrics", "execution_id", id, "error", err)
		}
	}()
}

// DefaultParams returns the execution parameters from the current pipeline
// configuration.
func (s *Server) DefaultParams() execution.Params {
	stages := s.Config().Stages
	return execution.Params{
		TargetSheetID:  stages.TargetSheetID,
		CalcSheetID:    stages.CalcSheetID,
		SupportSheetID: stages.SupportSheetID,
		CredentialsRef: stages.CredentialsRef,
	}
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() pipeline.RunStatus {
	return s.runner.Status()
}

// NextRun returns the next scheduled pipeline run, or nil when no pipeline
// job is configured.
func (s *Server) NextRun() *time.Time {
	var next *time.Time
	for _, trigger := range s.triggers {
		if trigger.Name() != serverconfig.JobPipeline {
			continue
		}
		at := trigger.NextRun()
		if next == nil || at.Before(*next) {
			next = &at
		}
	}
	return next
}

// Health reports store backend health.
func (s *Server) Health() store.Health {
	return s.store.Health()
}

// Properties describes this server instance for the status endpoint.
func (s *Server) Properties() types.ServerProperties {
	return types.ServerProperties{
		Build:     buildinfo.Get(),
		GoVersion: runtime.Version(),
		StartedAt: s.startedAt,
		Hostname:  s.hostname,
	}
}

// runScheduled is the cron job that starts a pipeline execution with the
// configured default parameters.
func (s *Server) runScheduled() error {
	id, err := s.StartRun(s.DefaultParams(), "cron")
	if err != nil {
		return err
	}
	s.logger.Info("scheduled run started", "execution_id", id)
	return nil
}

// sendDailyReport is the cron job that sends aggregate statistics through
// the notification channels.
func (s *Server) sendDailyReport() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to aggregate stats: %w", err)
	}

	results := s.deps.Load().dispatcher.Notify(ctx, notify.Event{
		Kind:     notify.KindDailyReport,
		Severity: notify.SeverityInfo,
		Payload: map[string]any{
			"total_executions": stats.TotalExecutions,
			"started_today":    stats.StartedToday,
			"success_rate":     stats.SuccessRate,
			"items_this_month": stats.ItemsThisMonth,
		},
	})
	s.recorder.NotificationObserved(results)
	return nil
}

// collaborators wires the four stage services into the pipeline contract.
func (s *Server) collaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Indices:  s.stageFn(func(d *serverDeps) *stagesvc.Client { return d.indices }),
		Analysis: s.stageFn(func(d *serverDeps) *stagesvc.Client { return d.analysis }),
		ERP:      s.stageFn(func(d *serverDeps) *stagesvc.Client { return d.erp }),
		Bank:     s.stageFn(func(d *serverDeps) *stagesvc.Client { return d.bank }),
	}
}

// stageFn resolves the stage client at call time, so a reload applies to the
// next stage invocation.
func (s *Server) stageFn(pick func(*serverDeps) *stagesvc.Client) pipeline.StageFn {
	return func(ctx context.Context, input map[string]any) (pipeline.Result, error) {
		res, err := pick(s.deps.Load()).Run(ctx, input)
		if err != nil {
			return pipeline.Result{}, err
		}
		return pipeline.Result(res), nil
	}
}

// serverNotifier routes pipeline events through the current dispatcher and
// records per-channel delivery outcomes.
type serverNotifier struct {
	server *Server
}

func (n *serverNotifier) Notify(ctx context.Context, event notify.Event) map[string]bool {
	results := n.server.deps.Load().dispatcher.Notify(ctx, event)
	n.server.recorder.NotificationObserved(results)
	return results
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done. Configured
// cron triggers are started automatically.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.srvCfg.Listener.Addr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: s.certLoader.GetCertificate,
		}
	}

	for _, trigger := range s.triggers {
		s.logger.Info("starting cron trigger",
			"job", trigger.Name(),
			"next_run", trigger.NextRun(),
		)
		trigger.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.srvCfg.Listener.Addr,
			"tls", s.certLoader != nil,
			"version", buildinfo.Get().Version,
		)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/run", handlers.NewRunHandler(s))
	mux.Handle("GET /api/executions", handlers.NewExecutionsHandler(s.registry))
	mux.Handle("DELETE /api/executions", handlers.NewEvictAllHandler(s.registry))
	mux.Handle("GET /api/executions/{id}", handlers.NewExecutionHandler(s.registry))
	mux.Handle("DELETE /api/executions/{id}", handlers.NewEvictHandler(s.registry))
	mux.Handle("POST /api/executions/{id}/cancel", handlers.NewCancelHandler(s.registry))
	mux.Handle("GET /api/executions/{id}/logs", handlers.NewExecutionLogsHandler(s.runner))
	mux.Handle("GET /api/queue", handlers.NewQueueHandler(s.store))
	mux.Handle("POST /api/queue/rebuild", handlers.NewQueueRebuildHandler(s.runner))
	mux.Handle("GET /api/snapshots", handlers.NewSnapshotsHandler(s.store))
	mux.Handle("GET /api/stats", handlers.NewStatsHandler(s.store))
	mux.Handle("GET /api/status", handlers.NewStatusHandler(s))
	mux.Handle("GET /health", handlers.NewHealthHandler(s.store))
	mux.Handle("GET /metrics", s.scrape.Handler())
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
}
