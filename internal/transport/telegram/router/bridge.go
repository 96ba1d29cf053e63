package router

import (
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/runtime/supervisor"
)

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.NewSupervisor

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Restart helpers (for resilient worker loops) ----

type RestartOption = supervisor.RestartOption

var WithRestartBackoff = supervisor.WithRestartBackoff

var WithMaxRestarts = supervisor.WithMaxRestarts

var WithFatalOnFinalError = supervisor.WithFatalOnFinalError

var WithPublishFirstError = supervisor.WithPublishFirstError

var WithStopOnCleanExit = supervisor.WithStopOnCleanExit
