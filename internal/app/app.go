package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/bot"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/eventbus"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/gag"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/maintenance"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/storage"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
	kit "github.com/Lazy-dev-hash/tg-gag-bot/internal/transport"
	telegram "github.com/Lazy-dev-hash/tg-gag-bot/internal/transport/telegram/adapter"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/web"
	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	settings *tracker.Settings
	prized   *tracker.PrizedSet
	delivery *telegramDelivery
	registry *tracker.Registry

	cmdm   *CommandManager
	web    *web.Server
	maint  *maintenance.Runner
	supReg *SupervisorRegistry

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	if token == "" {
		return nil, fmt.Errorf("telegram token missing: set telegram.token or TELEGRAM_TOKEN")
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping.
	// logx.New() calls Apply() immediately; if Telegram logging is enabled
	// but the target chat isn't set yet, Apply() warns. So bootstrap with
	// Telegram logging off, set the target, then Apply() the final config.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if strings.TrimSpace(cfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64); err == nil {
			logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
		}
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	trackerCfg, err := mapTrackerConfig(cfg)
	if err != nil {
		return nil, err
	}
	settings := tracker.NewSettings(trackerCfg)
	prized := tracker.NewPrizedSet(cfg.Tracker.Prized...)
	fetcher := gag.NewClient(mapGagConfig(cfg))
	delivery := newTelegramDelivery(ad, cfg.Tracker.RatePerSec, bus)

	trackerLog := log.With(logx.String("comp", "tracker"))
	registry := tracker.NewRegistry(tracker.RegistryDeps{
		Fetcher:  fetcher,
		Delivery: delivery,
		Settings: settings,
		Prized:   prized,
		OnRemove: func(chatID int64, cause tracker.RemoveCause) {
			bus.Publish(eventbus.Event{
				Type: eventbus.TypeTrackerRemoved,
				Data: map[string]any{"chat_id": chatID, "cause": cause.String()},
			})
			// A gone recipient must not come back on the next restart.
			if cause == tracker.RemoveFatal && store != nil {
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.DeleteSubscription(dctx, chatID); err != nil {
					trackerLog.Warn("failed to drop gone subscription", logx.Int64("chat", chatID), logx.Err(err))
				}
			}
		},
	}, trackerLog)

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	cmdm.SetRegistry(bot.Commands(bot.Deps{
		Registry: registry,
		Prized:   prized,
		Store:    store,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "bot")),
	}))

	supReg := NewSupervisorRegistry()

	var webSrv *web.Server
	if cfg.Web != nil && cfg.Web.Enabled {
		webSrv = web.New(web.Config{Addr: cfg.Web.Addr}, web.Deps{
			Registry:    registry,
			Prized:      prized,
			Supervisors: supReg,
			Bus:         bus,
			Log:         log.With(logx.String("comp", "web")),
		})
	}

	var maint *maintenance.Runner
	if mc, enabled, err := mapMaintenanceConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		maint = maintenance.New(mc, maintenance.Deps{
			Store:    store,
			Registry: registry,
			Prized:   prized,
			Bus:      bus,
			Log:      log.With(logx.String("comp", "maintenance")),
		})
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		settings: settings,
		prized:   prized,
		delivery: delivery,
		registry: registry,
		cmdm:     cmdm,
		web:      webSrv,
		maint:    maint,
		supReg:   supReg,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.supReg.Set("app", a.sup)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapTrackerConfig(cfg); err != nil {
			return err
		}
		if cfg.Tracker.RatePerSec < 0 {
			return fmt.Errorf("tracker.rate_per_sec must be >= 0")
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapMaintenanceConfig(cfg); err != nil {
			return err
		}
		if cfg.Web != nil && cfg.Web.Enabled && strings.TrimSpace(cfg.Web.Addr) == "" {
			return fmt.Errorf("web.addr is required when web.enabled is true")
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *Supervisor }); ok {
		if sup := sp.Supervisor(); sup != nil {
			a.supReg.Set("telegram.adapter", sup)
		}
	}

	if err := a.registry.Start(a.sup.Context()); err != nil {
		return err
	}
	a.restoreState(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Debug-level event mirror; components subscribe themselves for real work.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				a.applyConfig(newCfg, sections, attrs)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.web != nil {
		a.sup.Go("web.serve", func(c context.Context) error {
			return a.web.Start(c)
		})
	}
	if a.maint != nil {
		if err := a.maint.Start(); err != nil {
			return err
		}
	}

	a.log.Info("app started")
	return nil
}

// restoreState reloads the prized watchlist and tracked chats persisted by
// previous runs. Restored chats get a fresh initial report, same as /start.
func (a *App) restoreState(ctx context.Context) {
	if a.store == nil {
		return
	}

	if names, err := a.store.ListPrized(ctx); err != nil {
		a.log.Warn("prized restore failed", logx.Err(err))
	} else if len(names) > 0 {
		a.prized.Seed(names)
		a.log.Info("prized watchlist restored", logx.Int("names", len(names)))
	}

	subs, err := a.store.ListSubscriptions(ctx)
	if err != nil {
		a.log.Warn("subscription restore failed", logx.Err(err))
		return
	}
	restored := 0
	for _, s := range subs {
		if err := a.registry.Track(s.ChatID, tracker.FilterSet(s.Filters)); err != nil {
			a.log.Warn("subscription restore skipped", logx.Int64("chat", s.ChatID), logx.Err(err))
			continue
		}
		if s.Muted {
			a.registry.SetMuted(s.ChatID, true)
		}
		restored++
	}
	if restored > 0 {
		a.log.Info("subscriptions restored", logx.Int("chats", restored))
	}
}

func (a *App) applyConfig(newCfg *Config, sections []string, attrs []logx.Field) {
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Debug("config change summary",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	for _, s := range sections {
		if s == "storage" || s == "web" || s == "maintenance" {
			a.log.Warn("section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	if strings.TrimSpace(newCfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(newCfg.Telegram.GroupLog), 10, 64); err == nil {
			a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
		}
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    newCfg.Logging.Telegram.Enabled,
			ThreadID:   newCfg.Logging.Telegram.ThreadID,
			MinLevel:   newCfg.Logging.Telegram.MinLevel,
			RatePerSec: newCfg.Logging.Telegram.RatePerSec,
		},
	})

	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if trackerCfg, err := mapTrackerConfig(newCfg); err != nil {
		a.log.Warn("invalid tracker config; keeping previous", logx.Err(err))
	} else {
		a.settings.Apply(trackerCfg)
	}
	a.delivery.SetRate(newCfg.Tracker.RatePerSec)
	// Seeding is additive; names removed from the config seed stay until
	// an owner removes them with /prized remove.
	a.prized.Seed(newCfg.Tracker.Prized)

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Data: sections})
	a.log.Info("config reloaded",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("maintenance", 2*time.Second, func(c context.Context) error {
		if a.maint != nil {
			return a.maint.Stop(c)
		}
		return nil
	})
	step("tracker", 3*time.Second, func(c context.Context) error { return a.registry.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	// config watch/reload, dispatcher, web
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
