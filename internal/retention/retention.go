package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"talko/pkg/config"
	"talko/pkg/logger"
	"talko/pkg/store"
)

// Runner schedules periodic purges of aged hard-delete history and stale
// idempotency tokens.
type Runner struct {
	store *store.Store
	cfg   config.RetentionConfig
}

func NewRunner(s *store.Store, cfg config.RetentionConfig) *Runner {
	return &Runner{store: s, cfg: cfg}
}

// Start launches the scheduler goroutine if retention is enabled. The
// returned cancel stops it.
func (r *Runner) Start(ctx context.Context) (context.CancelFunc, error) {
	if !r.cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	cronExpr := r.cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", r.cfg.MaxAge.Duration().String(), "dry_run", r.cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go r.schedule(ctx2, cronExpr)
	return cancel, nil
}

// schedule sleeps until each next cron tick and runs a purge pass.
func (r *Runner) schedule(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := r.RunOnce(); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single purge pass. Exposed so tests and admin
// triggers can invoke retention on demand.
func (r *Runner) RunOnce() error {
	// message timestamps are UnixNano, matching the store's order keys
	cutoff := time.Now().Add(-r.cfg.MaxAge.Duration()).UnixNano()
	rep, err := r.store.PurgeAged(cutoff, r.cfg.BatchSize, r.cfg.DryRun)
	if err != nil {
		return err
	}
	logger.Info("retention_run_complete",
		"versions_purged", rep.VersionsPurged,
		"tokens_purged", rep.TokensPurged,
		"scanned", rep.Scanned,
		"dry_run", r.cfg.DryRun)
	return nil
}
