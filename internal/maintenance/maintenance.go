// Package maintenance runs the periodic housekeeping jobs: audit log
// pruning and an hourly operational stats line.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/eventbus"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/storage"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

const (
	defaultPruneSpec = "30 4 * * *"
	defaultStatsSpec = "0 * * * *"
	defaultRetention = 30 * 24 * time.Hour
	jobTimeout       = 2 * time.Minute
)

type Config struct {
	AuditRetention time.Duration
	PruneSpec      string
	StatsSpec      string
	Location       *time.Location
}

type Deps struct {
	// Store may be nil; pruning is skipped then.
	Store    storage.Store
	Registry *tracker.Registry
	Prized   *tracker.PrizedSet
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Runner struct {
	cfg  Config
	d    Deps
	log  logx.Logger
	cron *cron.Cron
}

func New(cfg Config, d Deps) *Runner {
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = defaultRetention
	}
	if cfg.PruneSpec == "" {
		cfg.PruneSpec = defaultPruneSpec
	}
	if cfg.StatsSpec == "" {
		cfg.StatsSpec = defaultStatsSpec
	}
	if cfg.Location == nil {
		cfg.Location = tracker.GameNow().Location()
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg, d: d, log: log}
}

// Start registers the jobs and starts the cron scheduler.
func (r *Runner) Start() error {
	if r.cron != nil {
		return errors.New("maintenance already started")
	}
	c := cron.New(cron.WithLocation(r.cfg.Location))

	if r.d.Store != nil {
		if _, err := c.AddFunc(r.cfg.PruneSpec, r.pruneAudit); err != nil {
			return err
		}
	}
	if _, err := c.AddFunc(r.cfg.StatsSpec, r.logStats); err != nil {
		return err
	}

	c.Start()
	r.cron = c
	r.log.Info("maintenance scheduler started",
		logx.String("prune_spec", r.cfg.PruneSpec),
		logx.String("stats_spec", r.cfg.StatsSpec),
		logx.Duration("audit_retention", r.cfg.AuditRetention),
		logx.String("tz", r.cfg.Location.String()))
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	done := r.cron.Stop().Done()
	r.cron = nil
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) pruneAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := time.Now().Add(-r.cfg.AuditRetention)
	removed, err := r.d.Store.PruneAudit(ctx, cutoff)
	if err != nil {
		r.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	r.log.Info("audit pruned", logx.Int("removed", removed), logx.Time("cutoff", cutoff))
	if r.d.Bus != nil {
		r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeAuditPruned, Data: removed})
	}
}

func (r *Runner) logStats() {
	fields := []logx.Field{}
	if r.d.Registry != nil {
		fields = append(fields, logx.Int("chats", r.d.Registry.Len()))
	}
	if r.d.Prized != nil {
		fields = append(fields, logx.Int("prized", r.d.Prized.Len()))
	}
	r.log.Info("tracker stats", fields...)
}
