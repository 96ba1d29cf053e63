package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Telegram.Enabled != newCfg.Logging.Telegram.Enabled ||
		oldCfg.Logging.Telegram.ThreadID != newCfg.Logging.Telegram.ThreadID ||
		oldCfg.Logging.Telegram.MinLevel != newCfg.Logging.Telegram.MinLevel ||
		oldCfg.Logging.Telegram.RatePerSec != newCfg.Logging.Telegram.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Tracker
	if !reflect.DeepEqual(oldCfg.Tracker, newCfg.Tracker) {
		changed = append(changed, "tracker")
		attrs = append(attrs,
			logx.String("tracker.poll_interval", strings.TrimSpace(newCfg.Tracker.PollInterval)),
			logx.String("tracker.fetch_timeout", strings.TrimSpace(newCfg.Tracker.FetchTimeout)),
			logx.Int("tracker.rate_per_sec", newCfg.Tracker.RatePerSec),
			logx.Int("tracker.prized_count", len(newCfg.Tracker.Prized)),
			logx.Bool("tracker.stock_url_set", strings.TrimSpace(newCfg.Tracker.StockURL) != ""),
		)
	}

	// Storage (persistence). Nil means disabled.
	oldS := oldCfg.Storage
	newS := newCfg.Storage
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nPathSet = strings.TrimSpace(newS.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Web
	oW := derefWeb(oldCfg.Web)
	nW := derefWeb(newCfg.Web)
	if (oldCfg.Web != nil) != (newCfg.Web != nil) || oW != nW {
		changed = append(changed, "web")
		attrs = append(attrs,
			logx.Bool("web.enabled", nW.Enabled),
			logx.String("web.addr", strings.TrimSpace(nW.Addr)),
		)
	}

	// Maintenance
	oM := derefMaintenance(oldCfg.Maintenance)
	nM := derefMaintenance(newCfg.Maintenance)
	if (oldCfg.Maintenance != nil) != (newCfg.Maintenance != nil) || oM != nM {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", nM.Enabled),
			logx.String("maintenance.audit_retention", strings.TrimSpace(nM.AuditRetention)),
			logx.String("maintenance.prune_spec", strings.TrimSpace(nM.PruneSpec)),
			logx.String("maintenance.stats_spec", strings.TrimSpace(nM.StatsSpec)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefWeb(w *WebConfig) WebConfig {
	if w == nil {
		return WebConfig{}
	}
	return *w
}

func derefMaintenance(m *MaintenanceConfig) MaintenanceConfig {
	if m == nil {
		return MaintenanceConfig{}
	}
	return *m
}
