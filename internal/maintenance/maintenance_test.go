package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/eventbus"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/storage"
	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

func TestStartStop(t *testing.T) {
	r := New(Config{}, Deps{Log: logx.Nop()})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(); err == nil {
		t.Fatalf("expected error on double start")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop again is a no-op.
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRejectsBadSpec(t *testing.T) {
	r := New(Config{StatsSpec: "not a cron spec"}, Deps{Log: logx.Nop()})
	if err := r.Start(); err == nil {
		t.Fatalf("expected spec parse error")
	}
}

func TestPruneRunsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.Open(storage.Config{Driver: "file", Path: dir + "/bot.db"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	old := storage.AuditEntry{At: time.Now().Add(-60 * 24 * time.Hour), Action: "track"}
	if err := st.AppendAudit(ctx, old); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendAudit(ctx, storage.AuditEntry{At: time.Now(), Action: "untrack"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	r := New(Config{AuditRetention: 30 * 24 * time.Hour}, Deps{Store: st, Bus: bus, Log: logx.Nop()})
	r.pruneAudit()

	select {
	case e := <-ch:
		if e.Type != eventbus.TypeAuditPruned {
			t.Fatalf("unexpected event type %q", e.Type)
		}
		if n, ok := e.Data.(int); !ok || n != 1 {
			t.Fatalf("unexpected prune count: %v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatalf("no prune event published")
	}
}
