package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

// fakeFetcher serves a scripted sequence of snapshots; the last entry
// repeats once the script runs out.
type fakeFetcher struct {
	mu    sync.Mutex
	snaps []*Snapshot
	errs  []error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.snaps) == 0 {
		return nil, errors.New("no snapshots scripted")
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i], nil
}

type sentMsg struct {
	chatID int64
	html   string
}

// fakeDelivery records sends and can fail with a scripted error.
type fakeDelivery struct {
	mu   sync.Mutex
	sent []sentMsg
	fail error // returned on every Send when set

	notify chan sentMsg
}

func newFakeDelivery() *fakeDelivery {
	return &fakeDelivery{notify: make(chan sentMsg, 64)}
}

func (d *fakeDelivery) Send(ctx context.Context, chatID int64, html string) error {
	d.mu.Lock()
	fail := d.fail
	if fail == nil {
		d.sent = append(d.sent, sentMsg{chatID: chatID, html: html})
	}
	d.mu.Unlock()
	if fail != nil {
		return fail
	}
	select {
	case d.notify <- sentMsg{chatID: chatID, html: html}:
	default:
	}
	return nil
}

func (d *fakeDelivery) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *fakeDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *fakeDelivery) wait(t *testing.T, timeout time.Duration) sentMsg {
	t.Helper()
	select {
	case m := <-d.notify:
		return m
	case <-time.After(timeout):
		t.Fatalf("no delivery within %v", timeout)
		return sentMsg{}
	}
}

func testSettings() *Settings {
	return NewSettings(Config{PollInterval: 10 * time.Millisecond, FetchTimeout: time.Second})
}

func newTestRegistry(t *testing.T, f Fetcher, d Delivery, onRemove func(int64, RemoveCause)) *Registry {
	t.Helper()
	r := NewRegistry(RegistryDeps{
		Fetcher:  f,
		Delivery: d,
		Settings: testSettings(),
		Prized:   NewPrizedSet(),
		OnRemove: onRemove,
	}, logx.Nop())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return r
}

func stockSnap(qty int) *Snapshot {
	return snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Carrot", Quantity: qty}},
	}, testWeather)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestTrackIsExclusivePerChat(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(1)}}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(42, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := r.Track(42, nil); !errors.Is(err, ErrAlreadyTracking) {
		t.Fatalf("second Track = %v, want ErrAlreadyTracking", err)
	}
	if err := r.Track(43, nil); err != nil {
		t.Fatalf("Track other chat: %v", err)
	}
	if n := r.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
}

func TestTrackDeliversInitialReport(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(5)}}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	m := d.wait(t, time.Second)
	if m.chatID != 7 {
		t.Fatalf("chatID = %d", m.chatID)
	}
	if !strings.Contains(m.html, "Grow A Garden") || !strings.Contains(m.html, "Carrot") {
		t.Fatalf("initial report = %q", m.html)
	}
}

func TestLoopNotifiesOnChange(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(5), stockSnap(5), stockSnap(6)}}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	d.wait(t, time.Second) // initial report
	m := d.wait(t, time.Second)
	if !strings.Contains(m.html, "Seeds") || !strings.Contains(m.html, "x6") {
		t.Fatalf("change notification = %q", m.html)
	}
}

func TestUntrackStopsAndReportsCause(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(5)}}
	d := newFakeDelivery()

	causes := make(chan RemoveCause, 1)
	r := newTestRegistry(t, f, d, func(chatID int64, cause RemoveCause) {
		causes <- cause
	})

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !r.Untrack(7) {
		t.Fatalf("Untrack reported no loop")
	}
	select {
	case c := <-causes:
		if c != RemoveRequested {
			t.Fatalf("cause = %v, want requested", c)
		}
	case <-time.After(time.Second):
		t.Fatalf("loop never tore down")
	}
	waitFor(t, time.Second, func() bool { return r.Len() == 0 })

	if r.Untrack(7) {
		t.Fatalf("second Untrack should report missing loop")
	}
}

func TestMuteSuppressesButAdvancesBaseline(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(1), stockSnap(1), stockSnap(2), stockSnap(2)}}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	d.wait(t, time.Second) // initial report

	if !r.SetMuted(7, true) {
		t.Fatalf("SetMuted reported no loop")
	}
	// The 1 -> 2 change happens while muted; the baseline must advance so
	// unmuting later does not replay it.
	waitFor(t, time.Second, func() bool {
		info, ok := r.Lookup(7)
		return ok && info.Cycles >= 3
	})
	if n := d.count(); n != 1 {
		t.Fatalf("muted chat received %d messages, want only the initial report", n)
	}

	r.SetMuted(7, false)
	waitFor(t, time.Second, func() bool {
		info, ok := r.Lookup(7)
		return ok && info.Cycles >= 5
	})
	if n := d.count(); n != 1 {
		t.Fatalf("stale change replayed after unmute: %d messages", n)
	}
}

func TestFatalDeliveryTearsDownLoop(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(1), stockSnap(2)}}
	d := newFakeDelivery()
	d.setFail(fmt.Errorf("telegram: %w", ErrRecipientGone))

	causes := make(chan RemoveCause, 1)
	r := newTestRegistry(t, f, d, func(chatID int64, cause RemoveCause) {
		causes <- cause
	})

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	select {
	case c := <-causes:
		if c != RemoveFatal {
			t.Fatalf("cause = %v, want fatal", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never tore down on fatal delivery")
	}
	waitFor(t, time.Second, func() bool { return r.Len() == 0 })
}

func TestTransientDeliveryFailureKeepsLoopAlive(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(1), stockSnap(2), stockSnap(3)}}
	d := newFakeDelivery()
	d.setFail(errors.New("telegram: 502"))
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		info, ok := r.Lookup(7)
		return ok && info.Cycles >= 2
	})
	if r.Len() != 1 {
		t.Fatalf("loop died on a transient delivery error")
	}
}

func TestFetchFailureSkipsCycle(t *testing.T) {
	f := &fakeFetcher{
		snaps: []*Snapshot{stockSnap(1), nil, stockSnap(2)},
		errs:  []error{nil, errors.New("upstream 500"), nil},
	}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	d.wait(t, time.Second) // initial report
	// The failed fetch must not clear the baseline: the next good fetch
	// still diffs against snapshot 1 and reports the 1 -> 2 change.
	m := d.wait(t, time.Second)
	if !strings.Contains(m.html, "x2") {
		t.Fatalf("post-failure notification = %q", m.html)
	}
}

func TestReportUsesFreshSnapshot(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(1)}}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(7, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	d.wait(t, time.Second)

	if err := r.Report(context.Background(), 7); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := r.Report(context.Background(), 99); !errors.Is(err, ErrNotTracking) {
		t.Fatalf("Report for unknown chat = %v, want ErrNotTracking", err)
	}
}

func TestLookupAndInfos(t *testing.T) {
	f := &fakeFetcher{snaps: []*Snapshot{stockSnap(1)}}
	d := newFakeDelivery()
	r := newTestRegistry(t, f, d, nil)

	if err := r.Track(2, ParseFilters("carrot")); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := r.Track(1, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}

	info, ok := r.Lookup(2)
	if !ok || info.ChatID != 2 || len(info.Filters) != 1 {
		t.Fatalf("Lookup = %+v ok=%v", info, ok)
	}
	if _, ok := r.Lookup(999); ok {
		t.Fatalf("Lookup found a chat that was never tracked")
	}

	infos := r.Infos()
	if len(infos) != 2 || infos[0].ChatID != 1 || infos[1].ChatID != 2 {
		t.Fatalf("Infos = %+v", infos)
	}
}
