// Package daemon wires the coursebot service together: session store,
// provider, classifier, tutors, workflow, HTTP server, event hub, and the
// background reporter. It owns startup and shutdown ordering.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mahir/coursebot/internal/config"
	"github.com/mahir/coursebot/internal/logger"
	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/internal/reporter"
	"github.com/mahir/coursebot/internal/server"
	"github.com/mahir/coursebot/internal/tracing"
	"github.com/mahir/coursebot/pkg/agent"
	"github.com/mahir/coursebot/pkg/session"
	"github.com/mahir/coursebot/pkg/workflow"
)

// Daemon represents the coursebot service.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	store      *session.Store
	provider   agent.LLMProvider
	classifier *agent.Classifier
	flow       *workflow.Workflow

	// Services
	httpServer    *server.Server
	eventHub      *server.EventHub
	statsReporter *reporter.Reporter
	configWatcher *config.Watcher

	wg sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes the daemon's runtime state.
type Status struct {
	Running        bool
	StartTime      time.Time
	Uptime         time.Duration
	ActiveSessions int
}

// New creates a new daemon instance. Configuration must already be
// validated.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		auditPath := filepath.Join(cfg.DataDir, "audit.log")
		if err := observability.InitAuditLogger(auditPath); err != nil {
			log.Warn().Err(err).Str("path", auditPath).Msg("Failed to initialize audit logger")
		}
	}

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if err := tracing.InitOpenTelemetry("coursebot"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
		log.Info().Msg("Tracing initialized successfully")
	}

	if err := d.initializeCoreModules(); err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return d, nil
}

// initializeCoreModules builds the store, provider, classifier, tutors and
// workflow in dependency order.
func (d *Daemon) initializeCoreModules() error {
	d.store = session.NewStore(session.Options{
		MaxMessages: d.config.Session.MaxMessages,
		MaxSessions: d.config.Session.MaxSessions,
		TTL:         d.config.Session.TTL(),
	})
	d.logger.Info().
		Int("max_messages", d.config.Session.MaxMessages).
		Int("max_sessions", d.config.Session.MaxSessions).
		Int("ttl_hours", d.config.Session.TTLHours).
		Msg("Session store initialized")

	if len(d.config.AI.Profiles) == 0 {
		return fmt.Errorf("no AI profiles configured")
	}
	profile := d.config.AI.Profiles[0]

	factory := &agent.ProviderFactory{}
	provider, err := factory.NewProvider(agent.AuthProfile{
		ID:       profile.ID,
		Provider: profile.Provider,
		APIKey:   profile.APIKey,
		Model:    profile.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().
		Str("provider", provider.Provider()).
		Str("model", profile.Model).
		Msg("LLM provider initialized")

	classifierModel := d.config.Classifier.Model
	if classifierModel == "" {
		classifierModel = profile.Model
	}
	d.classifier, err = agent.NewClassifier(provider, classifierModel)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	tutorCfg := agent.TutorConfig{
		Provider:      provider,
		Model:         profile.Model,
		Store:         d.store,
		ContextWindow: d.config.Session.ContextWindow,
	}

	d.flow, err = workflow.New(
		d.classifier,
		agent.NewSPLTutor(tutorCfg),
		agent.NewEnglishTutor(tutorCfg),
		agent.NewPhysicsTutor(tutorCfg),
		agent.NewFallbackTutor(tutorCfg),
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	d.logger.Info().Msg("Workflow initialized")

	return nil
}

// initializeServices builds the HTTP server, event hub and reporter.
func (d *Daemon) initializeServices() error {
	zl := d.logger.GetZerolog()

	if d.config.Events.Enabled {
		pingInterval := time.Duration(d.config.Events.PingInterval) * time.Second
		d.eventHub = server.NewEventHub(pingInterval, zl)
		d.logger.Info().Msg("Event hub initialized")
	}

	srv, err := server.New(server.Options{
		Host:           d.config.Server.Host,
		Port:           d.config.Server.Port,
		RequestTimeout: time.Duration(d.config.Server.RequestTimeout) * time.Second,
	}, d.store, d.flow, d.eventHub, zl)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	d.httpServer = srv

	if d.config.Reporter.Enabled {
		rep, err := reporter.New(d.store, d.config.Reporter.Schedule, zl)
		if err != nil {
			return fmt.Errorf("failed to create reporter: %w", err)
		}
		d.statsReporter = rep
	}

	return nil
}

// Start starts the daemon service. configPath enables hot reload of the
// log level when non-empty.
func (d *Daemon) Start(configPath string) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	log := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	log.Info().Msg("Starting coursebot daemon")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	log.Info().Msg("HTTP server started")

	if d.statsReporter != nil {
		if err := d.statsReporter.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start session reporter")
		}
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, log, d.onConfigReload)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		} else {
			d.configWatcher = watcher
			log.Info().Str("path", configPath).Msg("Config watcher started")
		}
	}

	log.Info().Msg("Daemon started successfully - all core modules active")
	return nil
}

// Stop stops the daemon service gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	log := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	log.Info().Msg("Stopping coursebot daemon")

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if d.statsReporter != nil {
		d.statsReporter.Stop()
	}

	if err := d.httpServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop HTTP server")
	}

	d.wg.Wait()

	if err := observability.GetAuditLogger().Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit logger")
	}

	d.shutdownTracing()

	log.Info().Msg("Daemon stopped")
	return nil
}

// Status returns the daemon's runtime state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{
		Running:   d.running,
		StartTime: d.startTime,
	}
	if d.running {
		st.Uptime = time.Since(d.startTime)
		st.ActiveSessions = d.store.Len()
	}
	return st
}

// GetStore returns the session store.
func (d *Daemon) GetStore() *session.Store {
	return d.store
}

// GetWorkflow returns the message workflow.
func (d *Daemon) GetWorkflow() *workflow.Workflow {
	return d.flow
}

// onConfigReload applies the hot-reloadable parts of a changed config.
// Only the log level takes effect without a restart.
func (d *Daemon) onConfigReload(cfg *config.Config) {
	logger.SetGlobalLevel(cfg.Logging.Level)
	d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level applied from reloaded config")
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tracing.ShutdownOpenTelemetry(ctx)
	d.tracingEnabled = false
}
