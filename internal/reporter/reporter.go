// Package reporter periodically logs session store activity and refreshes
// the active-session gauge. It is observational only; it never evicts or
// mutates sessions.
package reporter

import (
	"fmt"

	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/pkg/session"
	"github.com/rs/zerolog"
	"github.com/robfig/cron/v3"
)

// Reporter runs a scheduled snapshot of the session store.
type Reporter struct {
	store    *session.Store
	logger   zerolog.Logger
	schedule string
	runner   *cron.Cron
}

// New creates a reporter. The schedule accepts standard cron expressions
// and descriptors such as "@every 1m".
func New(store *session.Store, schedule string, logger zerolog.Logger) (*Reporter, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if schedule == "" {
		schedule = "@every 1m"
	}

	return &Reporter{
		store:    store,
		logger:   logger,
		schedule: schedule,
		runner:   cron.New(),
	}, nil
}

// Start begins the reporting schedule.
func (r *Reporter) Start() error {
	if _, err := r.runner.AddFunc(r.schedule, r.report); err != nil {
		return fmt.Errorf("invalid reporter schedule %q: %w", r.schedule, err)
	}

	r.runner.Start()
	r.logger.Info().Str("schedule", r.schedule).Msg("Session reporter started")
	return nil
}

// Stop stops the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	ctx := r.runner.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("Session reporter stopped")
}

func (r *Reporter) report() {
	count := r.store.Len()
	observability.SetActiveSessions(count)

	r.logger.Info().
		Int("active_sessions", count).
		Msg("Session store snapshot")
}
