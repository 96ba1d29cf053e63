package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/gag"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/maintenance"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
)

func mapTrackerConfig(cfg *Config) (tracker.Config, error) {
	if cfg == nil {
		return tracker.Config{}, nil
	}
	poll, err := parseDurationOrDefault("tracker.poll_interval", cfg.Tracker.PollInterval, time.Minute)
	if err != nil {
		return tracker.Config{}, err
	}
	fetch, err := parseDurationOrDefault("tracker.fetch_timeout", cfg.Tracker.FetchTimeout, 10*time.Second)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{PollInterval: poll, FetchTimeout: fetch}, nil
}

func mapGagConfig(cfg *Config) gag.Config {
	out := gag.Config{}
	if cfg == nil {
		return out
	}
	out.StockURL = strings.TrimSpace(cfg.Tracker.StockURL)
	out.WeatherURL = strings.TrimSpace(cfg.Tracker.WeatherURL)
	return out
}

func mapMaintenanceConfig(cfg *Config) (maintenance.Config, bool, error) {
	if cfg == nil || cfg.Maintenance == nil || !cfg.Maintenance.Enabled {
		return maintenance.Config{}, false, nil
	}
	mc := cfg.Maintenance
	out := maintenance.Config{
		PruneSpec: strings.TrimSpace(mc.PruneSpec),
		StatsSpec: strings.TrimSpace(mc.StatsSpec),
	}
	retention, err := parseDurationOrDefault("maintenance.audit_retention", mc.AuditRetention, 30*24*time.Hour)
	if err != nil {
		return maintenance.Config{}, false, err
	}
	out.AuditRetention = retention

	if tz := strings.TrimSpace(mc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return maintenance.Config{}, false, fmt.Errorf("maintenance.timezone: invalid %q: %w", tz, err)
		}
		out.Location = loc
	}
	return out, true, nil
}
