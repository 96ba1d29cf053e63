package tracker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrAlreadyTracking is returned by Registry.Track when the chat
	// already has a live loop.
	ErrAlreadyTracking = errors.New("tracker: chat is already tracking")

	// ErrNotTracking is returned by per-chat operations when no loop is
	// registered for the chat.
	ErrNotTracking = errors.New("tracker: chat is not tracking")

	// ErrRecipientGone marks a delivery failure that can never succeed
	// again (blocked bot, deleted account, vanished chat). A loop that
	// sees it tears itself down.
	ErrRecipientGone = errors.New("tracker: recipient gone")
)

// Fetcher retrieves the current shop snapshot. Implementations must honor
// the context deadline; the loop wraps each call in its fetch timeout.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Delivery pushes rendered HTML to a single chat. Send returns
// ErrRecipientGone (possibly wrapped) when the chat is permanently
// unreachable; any other error is treated as transient.
type Delivery interface {
	Send(ctx context.Context, chatID int64, html string) error
}

// Config holds the loop tunables that may change on hot reload.
type Config struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	return c
}

// Settings is a read-mostly holder for Config. Loops re-read it at the top
// of every cycle, so an Apply takes effect on the next tick without
// restarting anything.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg.withDefaults()}
}

func (s *Settings) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Settings) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}
