package app

import (
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/config"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/runtime/supervisor"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/transport/telegram/router"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

// SummarizeConfigChange produces a safe, structured summary of config diffs.
var SummarizeConfigChange = config.SummarizeConfigChange

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

type SupervisorRegistry = router.SupervisorRegistry

var NewSupervisor = supervisor.NewSupervisor

var NewSupervisorRegistry = router.NewSupervisorRegistry

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Router ----

type CommandManager = router.CommandManager

var NewCommandManager = router.NewCommandManager
