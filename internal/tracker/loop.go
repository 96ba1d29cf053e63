package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

type loopDeps struct {
	chatID   int64
	filters  FilterSet
	fetcher  Fetcher
	delivery Delivery
	settings *Settings
	prized   *PrizedSet
	remove   func(chatID int64, cause RemoveCause)
}

// loop is one subscriber's polling state machine. All snapshot state is
// owned by the run goroutine; only the small mutable knobs (mute flag,
// stop reason) cross goroutines.
type loop struct {
	deps      loopDeps
	log       logx.Logger
	startedAt time.Time

	muted  atomic.Bool
	cycles atomic.Uint64

	mu        sync.Mutex
	lastCycle time.Time
	stopped   bool // requestStop was called; teardown cause is "requested"
	fatal     bool // a delivery classified the recipient as gone

	// last is the committed baseline. Only run() writes it.
	last *Snapshot
}

func newLoop(deps loopDeps, log logx.Logger) *loop {
	return &loop{deps: deps, log: log, startedAt: time.Now()}
}

func (l *loop) setMuted(v bool) { l.muted.Store(v) }

func (l *loop) requestStop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
}

func (l *loop) markFatal() {
	l.mu.Lock()
	l.fatal = true
	l.mu.Unlock()
}

func (l *loop) info() Info {
	l.mu.Lock()
	lastCycle := l.lastCycle
	l.mu.Unlock()
	return Info{
		ChatID:    l.deps.chatID,
		Filters:   append([]string(nil), l.deps.filters...),
		Muted:     l.muted.Load(),
		StartedAt: l.startedAt,
		Cycles:    l.cycles.Load(),
		LastCycle: lastCycle,
	}
}

// run drives the subscription until its context is canceled or delivery
// reports the recipient gone. It always removes itself from the registry
// on the way out.
func (l *loop) run(ctx context.Context) {
	cause := RemoveShutdown
	defer func() {
		l.mu.Lock()
		if l.fatal {
			cause = RemoveFatal
		} else if l.stopped {
			cause = RemoveRequested
		}
		l.mu.Unlock()
		l.deps.remove(l.deps.chatID, cause)
	}()

	// Starting: seed the baseline and greet with a full report. A failed
	// first fetch is not fatal, the first successful poll seeds instead.
	if snap, err := l.fetch(ctx); err == nil {
		l.last = snap
		if !l.muted.Load() {
			if fatal := l.deliver(ctx, RenderReport(snap, l.deps.filters, time.Now())); fatal {
				l.markFatal()
				return
			}
		}
	} else if ctx.Err() == nil {
		l.log.Warn("initial fetch failed", logx.Err(err))
	}

	timer := time.NewTimer(l.deps.settings.Current().PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if fatal := l.cycle(ctx); fatal {
			l.markFatal()
			return
		}
		if ctx.Err() != nil {
			return
		}
		timer.Reset(l.deps.settings.Current().PollInterval)
	}
}

// cycle runs one poll: fetch, diff, deliver, commit. It reports whether a
// delivery failed fatally.
func (l *loop) cycle(ctx context.Context) (fatal bool) {
	snap, err := l.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn("fetch failed, skipping cycle", logx.Err(err))
		}
		return false
	}

	l.cycles.Add(1)
	l.mu.Lock()
	l.lastCycle = time.Now()
	l.mu.Unlock()

	events := Diff(l.last, snap, DiffOptions{
		Filters: l.deps.filters,
		Prized:  l.deps.prized.Contains,
		Now:     GameNow(),
	})

	// Muted chats keep advancing the baseline so unmuting never replays
	// changes that happened while muted.
	if len(events) > 0 && !l.muted.Load() {
		for _, ev := range events {
			if l.deliver(ctx, RenderEvent(ev)) {
				// Commit before teardown so persisted state stays sane.
				l.last = snap
				return true
			}
		}
	}

	l.last = snap
	return false
}

func (l *loop) fetch(ctx context.Context) (*Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, l.deps.settings.Current().FetchTimeout)
	defer cancel()
	return l.deps.fetcher.Fetch(fctx)
}

// deliver sends one message and classifies the outcome. Transient errors
// are logged and swallowed; the cycle still commits its snapshot.
func (l *loop) deliver(ctx context.Context, html string) (fatal bool) {
	err := l.deps.delivery.Send(ctx, l.deps.chatID, html)
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRecipientGone) {
		l.log.Info("recipient gone, stopping", logx.Err(err))
		return true
	}
	if ctx.Err() == nil {
		l.log.Warn("delivery failed", logx.Err(err))
	}
	return false
}

// reportNow serves /refresh: fetch outside the cadence and send a full
// report. The polling baseline is left alone.
func (l *loop) reportNow(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, l.deps.settings.Current().FetchTimeout)
	snap, err := l.deps.fetcher.Fetch(fctx)
	cancel()
	if err != nil {
		return err
	}
	return l.deps.delivery.Send(ctx, l.deps.chatID, RenderReport(snap, l.deps.filters, time.Now()))
}
