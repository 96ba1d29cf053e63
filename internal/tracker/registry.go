package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/runtime/supervisor"
	"github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

// RemoveCause explains why a subscription left the registry.
type RemoveCause int

const (
	RemoveRequested RemoveCause = iota // /stop or admin action
	RemoveFatal                        // delivery said the recipient is gone
	RemoveShutdown                     // process stopping
)

func (c RemoveCause) String() string {
	switch c {
	case RemoveRequested:
		return "requested"
	case RemoveFatal:
		return "fatal"
	case RemoveShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Info is a point-in-time view of one subscription, for /status and the
// web status page.
type Info struct {
	ChatID    int64     `json:"chat_id"`
	Filters   []string  `json:"filters,omitempty"`
	Muted     bool      `json:"muted"`
	StartedAt time.Time `json:"started_at"`
	Cycles    uint64    `json:"cycles"`
	LastCycle time.Time `json:"last_cycle,omitzero"`
}

// tracked is the registry-side handle of one running loop.
type tracked struct {
	loop   *loop
	cancel context.CancelFunc
}

// Registry owns all subscriber loops. Exactly one loop per chat; Track
// rejects duplicates and Untrack cancels the loop and waits for its map
// entry to disappear via the loop's own teardown.
type Registry struct {
	fetcher  Fetcher
	delivery Delivery
	settings *Settings
	prized   *PrizedSet
	log      logx.Logger

	// onRemove fires after a loop left the map, outside the registry lock.
	onRemove func(chatID int64, cause RemoveCause)

	mu     sync.Mutex
	subs   map[int64]*tracked
	runCtx context.Context
	sup    *supervisor.Supervisor
}

type RegistryDeps struct {
	Fetcher  Fetcher
	Delivery Delivery
	Settings *Settings
	Prized   *PrizedSet
	OnRemove func(chatID int64, cause RemoveCause)
}

func NewRegistry(deps RegistryDeps, log logx.Logger) *Registry {
	if deps.Settings == nil {
		deps.Settings = NewSettings(Config{})
	}
	if deps.Prized == nil {
		deps.Prized = NewPrizedSet()
	}
	return &Registry{
		fetcher:  deps.Fetcher,
		delivery: deps.Delivery,
		settings: deps.Settings,
		prized:   deps.Prized,
		onRemove: deps.OnRemove,
		log:      log,
		subs:     map[int64]*tracked{},
	}
}

func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sup != nil {
		return nil
	}
	r.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(r.log))
	r.runCtx = r.sup.Context()
	return nil
}

// Stop cancels every loop and waits for them to drain.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	sup := r.sup
	r.sup = nil
	r.runCtx = nil
	r.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Track starts a loop for the chat. The loop performs its initial fetch and
// report asynchronously; Track itself returns as soon as the loop is
// registered.
func (r *Registry) Track(chatID int64, filters FilterSet) error {
	r.mu.Lock()
	if r.sup == nil {
		r.mu.Unlock()
		return context.Canceled
	}
	if _, ok := r.subs[chatID]; ok {
		r.mu.Unlock()
		return ErrAlreadyTracking
	}

	loopCtx, cancel := context.WithCancel(r.runCtx)
	l := newLoop(loopDeps{
		chatID:   chatID,
		filters:  filters,
		fetcher:  r.fetcher,
		delivery: r.delivery,
		settings: r.settings,
		prized:   r.prized,
		remove:   r.remove,
	}, r.log.With(logx.Int64("chat", chatID)))
	r.subs[chatID] = &tracked{loop: l, cancel: cancel}
	sup := r.sup
	r.mu.Unlock()

	sup.Go0("tracker.loop", func(context.Context) { l.run(loopCtx) })
	return nil
}

// Untrack cancels the chat's loop. It reports whether a loop existed.
func (r *Registry) Untrack(chatID int64) bool {
	r.mu.Lock()
	t, ok := r.subs[chatID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.loop.requestStop()
	t.cancel()
	return true
}

// SetMuted flips delivery suppression for the chat. The loop keeps polling
// and advancing its baseline while muted.
func (r *Registry) SetMuted(chatID int64, muted bool) bool {
	r.mu.Lock()
	t, ok := r.subs[chatID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.loop.setMuted(muted)
	return true
}

// Lookup returns the subscription view for one chat.
func (r *Registry) Lookup(chatID int64) (Info, bool) {
	r.mu.Lock()
	t, ok := r.subs[chatID]
	r.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	return t.loop.info(), true
}

// Infos returns all subscriptions sorted by chat id.
func (r *Registry) Infos() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.subs))
	for _, t := range r.subs {
		out = append(out, t.loop.info())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Report fetches a fresh snapshot and delivers a full stock report to the
// chat, outside the loop's polling cadence. The loop's baseline is not
// touched, so the next diff stays relative to the last polled snapshot.
func (r *Registry) Report(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	t, ok := r.subs[chatID]
	r.mu.Unlock()
	if !ok {
		return ErrNotTracking
	}
	err := t.loop.reportNow(ctx)
	if errors.Is(err, ErrRecipientGone) {
		t.loop.markFatal()
		t.cancel()
	}
	return err
}

// remove is the loop's teardown callback. The loop calls it exactly once,
// from its own goroutine, after it stopped polling.
func (r *Registry) remove(chatID int64, cause RemoveCause) {
	r.mu.Lock()
	t, ok := r.subs[chatID]
	if ok {
		delete(r.subs, chatID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	r.log.Info("subscription removed",
		logx.Int64("chat", chatID),
		logx.String("cause", cause.String()))
	if r.onRemove != nil {
		r.onRemove(chatID, cause)
	}
}
