package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/storage"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
	kit "github.com/Lazy-dev-hash/tg-gag-bot/internal/transport"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/transport/telegram/router"
	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context) (*tracker.Snapshot, error) {
	return &tracker.Snapshot{
		Stock: map[tracker.Category][]tracker.StockItem{
			tracker.CategoryGear: {{Name: "Watering Can", Quantity: 2}},
		},
		FetchedAt: time.Now(),
	}, nil
}

type stubDelivery struct {
	mu   sync.Mutex
	sent []string
}

func (d *stubDelivery) Send(ctx context.Context, chatID int64, html string) error {
	d.mu.Lock()
	d.sent = append(d.sent, html)
	d.mu.Unlock()
	return nil
}

type replyAdapter struct {
	mu      sync.Mutex
	replies []string
}

func (a *replyAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *replyAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *replyAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.replies = append(a.replies, text)
	a.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (a *replyAdapter) last(t *testing.T) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.replies) == 0 {
		t.Fatalf("no reply recorded")
	}
	return a.replies[len(a.replies)-1]
}

type fixture struct {
	reg     *tracker.Registry
	prized  *tracker.PrizedSet
	store   storage.Store
	adapter *replyAdapter
	cmds    map[string]router.Command
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	prized := tracker.NewPrizedSet()
	reg := tracker.NewRegistry(tracker.RegistryDeps{
		Fetcher:  stubFetcher{},
		Delivery: &stubDelivery{},
		Settings: tracker.NewSettings(tracker.Config{PollInterval: time.Hour, FetchTimeout: time.Second}),
		Prized:   prized,
	}, logx.Nop())
	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("registry start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Stop(ctx)
	})

	cmds := map[string]router.Command{}
	for _, c := range Commands(Deps{Registry: reg, Prized: prized, Store: store, Log: logx.Nop()}) {
		cmds[c.Name] = c
	}
	return &fixture{reg: reg, prized: prized, store: store, adapter: &replyAdapter{}, cmds: cmds}
}

func (f *fixture) run(t *testing.T, name string, req *router.Request) error {
	t.Helper()
	cmd, ok := f.cmds[name]
	if !ok {
		t.Fatalf("command %q not registered", name)
	}
	req.Adapter = f.adapter
	req.Command = name
	req.Logger = logx.Nop()
	return cmd.Handle(context.Background(), req)
}

func request(chatID, fromID int64, args ...string) *router.Request {
	return &router.Request{
		Chat:   kit.ChatTarget{ChatID: chatID},
		FromID: fromID,
		Args:   args,
	}
}

func TestStartStopFlow(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.run(t, "start", request(10, 1, "carrot", "|", "egg")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "Tracking started") || !strings.Contains(s, "carrot") {
		t.Fatalf("unexpected start reply: %q", s)
	}
	if f.reg.Len() != 1 {
		t.Fatalf("registry should hold 1 chat, got %d", f.reg.Len())
	}

	if err := f.run(t, "start", request(10, 1)); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "Already tracking") {
		t.Fatalf("duplicate start not rejected: %q", s)
	}

	if err := f.run(t, "stop", request(10, 1)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "Tracking stopped") {
		t.Fatalf("unexpected stop reply: %q", s)
	}

	// The loop removes itself asynchronously after Untrack.
	deadline := time.Now().Add(2 * time.Second)
	for f.reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.run(t, "stop", request(10, 1)); err != nil {
		t.Fatalf("stop again: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "not tracking") {
		t.Fatalf("stop on idle chat: %q", s)
	}
}

func TestStartPersistsSubscription(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.Open(storage.Config{Driver: "file", Path: dir + "/bot.db"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	f := newFixture(t, st)
	if err := f.run(t, "start", request(55, 1, "beet")); err != nil {
		t.Fatalf("start: %v", err)
	}
	subs, err := st.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ChatID != 55 || len(subs[0].Filters) != 1 {
		t.Fatalf("unexpected persisted subscriptions: %+v", subs)
	}

	if err := f.run(t, "stop", request(55, 1)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	subs, _ = st.ListSubscriptions(context.Background())
	if len(subs) != 0 {
		t.Fatalf("subscription not deleted: %+v", subs)
	}
}

func TestMuteUnmute(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.run(t, "mute", request(3, 1)); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "not tracking") {
		t.Fatalf("mute on idle chat: %q", s)
	}

	if err := f.run(t, "start", request(3, 1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.run(t, "mute", request(3, 1)); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "muted") {
		t.Fatalf("unexpected mute reply: %q", s)
	}
	info, ok := f.reg.Lookup(3)
	if !ok || !info.Muted {
		t.Fatalf("registry not muted: %+v", info)
	}

	if err := f.run(t, "unmute", request(3, 1)); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	info, _ = f.reg.Lookup(3)
	if info.Muted {
		t.Fatalf("registry still muted")
	}
}

func TestStatusShowsTimersAndOwnerTotals(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.run(t, "status", request(4, 1)); err != nil {
		t.Fatalf("status: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "not tracking") {
		t.Fatalf("status on idle chat: %q", s)
	}

	if err := f.run(t, "start", request(4, 1, "carrot")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.run(t, "status", request(4, 1)); err != nil {
		t.Fatalf("status: %v", err)
	}
	s := f.adapter.last(t)
	if !strings.Contains(s, "carrot") || !strings.Contains(s, "Next restocks") {
		t.Fatalf("unexpected status: %q", s)
	}
	if strings.Contains(s, "Tracked chats") {
		t.Fatalf("non-owner saw totals: %q", s)
	}

	req := request(4, 1)
	req.Owners = []int64{1}
	if err := f.run(t, "status", req); err != nil {
		t.Fatalf("owner status: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "Tracked chats: 1") {
		t.Fatalf("owner totals missing: %q", s)
	}
}

func TestPrizedListOpenMutationOwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.prized.Seed([]string{"beanstalk"})

	if err := f.run(t, "prized", request(5, 7)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if s := f.adapter.last(t); !strings.Contains(s, "beanstalk") {
		t.Fatalf("list missing entry: %q", s)
	}

	if err := f.run(t, "prized", request(5, 7, "add", "ember", "lily")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s := f.adapter.last(t); s != "unauthorized" {
		t.Fatalf("non-owner mutation allowed: %q", s)
	}

	req := request(5, 7, "add", "Ember", "Lily")
	req.Owners = []int64{7}
	if err := f.run(t, "prized", req); err != nil {
		t.Fatalf("owner add: %v", err)
	}
	if !f.prized.Contains("ember lily") {
		t.Fatalf("watchlist missing added name")
	}

	req = request(5, 7, "remove", "ember", "lily")
	req.Owners = []int64{7}
	if err := f.run(t, "prized", req); err != nil {
		t.Fatalf("owner remove: %v", err)
	}
	if f.prized.Contains("ember lily") {
		t.Fatalf("watchlist still has removed name")
	}
}
