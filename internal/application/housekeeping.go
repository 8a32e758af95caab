package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/ports"
	"github.com/robfig/cron/v3"
)

// Housekeeper runs the periodic session chores: expiry sweeps, event sync and snapshot persistence.
type Housekeeper struct {
	sessions *SessionStore
	events   ports.SessionEventSource
	repo     ports.SessionRepository
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewHousekeeper builds a housekeeper. events and repo are optional.
func NewHousekeeper(sessions *SessionStore, events ports.SessionEventSource, repo ports.SessionRepository, opts ...Option) *Housekeeper {
	cfg := newSettings(opts)

	return &Housekeeper{
		sessions: sessions,
		events:   events,
		repo:     repo,
		logger:   cfg.logger,
	}
}

// Load restores the persisted session view, if a repository is configured.
func (h *Housekeeper) Load(ctx context.Context) error {
	if h.repo == nil {
		return nil
	}

	snapshot, err := h.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session snapshot: %w", err)
	}
	h.sessions.Restore(snapshot)

	return nil
}

func (h *Housekeeper) Save(ctx context.Context) error {
	if h.repo == nil {
		return nil
	}
	if err := h.repo.Save(ctx, h.sessions.Snapshot()); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}

	return nil
}

// SweepOnce disconnects expired sessions and persists the result. Per-session failures are
// returned joined; the snapshot is saved either way.
func (h *Housekeeper) SweepOnce(ctx context.Context) (DisconnectReport, error) {
	report, sweepErr := h.sessions.DisconnectExpired(ctx)
	if len(report.Results) > 0 {
		h.logger.Info("expired sessions swept", "swept", len(report.Results), "failed", len(report.Failed()))
	}
	if err := h.Save(ctx); err != nil {
		return report, errors.Join(sweepErr, err)
	}

	return report, sweepErr
}

// SyncOnce pulls transport events after the stored cursor and applies them in order.
func (h *Housekeeper) SyncOnce(ctx context.Context) (int, error) {
	if h.events == nil {
		return 0, nil
	}

	events, err := h.events.Events(ctx, h.sessions.Cursor())
	if err != nil {
		return 0, fmt.Errorf("fetch session events: %w", err)
	}

	applied := 0
	var applyErr error
	for _, event := range events {
		if err := h.sessions.Apply(event); err != nil {
			applyErr = errors.Join(applyErr, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		h.logger.Debug("session events applied", "applied", applied, "cursor", h.sessions.Cursor())
		if err := h.Save(ctx); err != nil {
			return applied, errors.Join(applyErr, err)
		}
	}

	return applied, applyErr
}

// Start schedules the sweep with a cron spec (e.g. "@every 1m") and, when syncInterval is
// positive, the event sync. Overlapping runs of the same job are skipped.
func (h *Housekeeper) Start(ctx context.Context, sweepSchedule string, syncInterval time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cron != nil {
		return fmt.Errorf("housekeeper already started")
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(h.logger.Handler(), slog.LevelDebug))
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(sweepSchedule, func() {
		if _, err := h.SweepOnce(ctx); err != nil {
			h.logger.Warn("expiry sweep finished with errors", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", sweepSchedule, err)
	}

	if h.events != nil && syncInterval > 0 {
		spec := fmt.Sprintf("@every %s", syncInterval)
		if _, err := c.AddFunc(spec, func() {
			if _, err := h.SyncOnce(ctx); err != nil {
				h.logger.Warn("session event sync failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule event sync %q: %w", spec, err)
		}
	}

	c.Start()
	h.cron = c

	return nil
}

// Stop halts scheduling and waits for running jobs to finish or ctx to end.
func (h *Housekeeper) Stop(ctx context.Context) error {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
