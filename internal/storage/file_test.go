package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st == nil {
		t.Fatalf("open returned nil store")
	}
	return st
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil store when disabled")
	}
}

func TestSubscriptionsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openTestStore(t, dir)

	if err := st.PutSubscription(ctx, Subscription{ChatID: 42, Filters: []string{"carrot"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutSubscription(ctx, Subscription{ChatID: 7, Muted: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Overwrite keeps one row per chat.
	if err := st.PutSubscription(ctx, Subscription{ChatID: 42, Filters: []string{"beet"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("want 2 subscriptions, got %d", len(subs))
	}
	if subs[0].ChatID != 7 || !subs[0].Muted {
		t.Fatalf("unexpected first subscription: %+v", subs[0])
	}
	if subs[1].ChatID != 42 || len(subs[1].Filters) != 1 || subs[1].Filters[0] != "beet" {
		t.Fatalf("unexpected second subscription: %+v", subs[1])
	}
	if subs[1].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped")
	}

	if err := st.DeleteSubscription(ctx, 42); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, err = st.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ChatID != 7 {
		t.Fatalf("unexpected subscriptions after delete: %+v", subs)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestStore(t, dir)
	if err := st.PutSubscription(ctx, Subscription{ChatID: 9, Filters: []string{"egg"}}); err != nil {
		t.Fatalf("put sub: %v", err)
	}
	if err := st.PutPrized(ctx, "Beanstalk"); err != nil {
		t.Fatalf("put prized: %v", err)
	}
	if err := st.PutPrized(ctx, "ember lily"); err != nil {
		t.Fatalf("put prized: %v", err)
	}
	if err := st.DeletePrized(ctx, "EMBER LILY"); err != nil {
		t.Fatalf("delete prized: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st = openTestStore(t, dir)
	defer st.Close()

	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list subs: %v", err)
	}
	if len(subs) != 1 || subs[0].ChatID != 9 {
		t.Fatalf("unexpected subscriptions after reopen: %+v", subs)
	}
	prized, err := st.ListPrized(ctx)
	if err != nil {
		t.Fatalf("list prized: %v", err)
	}
	if len(prized) != 1 || prized[0] != "beanstalk" {
		t.Fatalf("unexpected prized after reopen: %v", prized)
	}
}

func TestPrizedNormalizesNames(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openTestStore(t, dir)
	defer st.Close()

	if err := st.PutPrized(ctx, "  Giant Pinecone "); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutPrized(ctx, "giant pinecone"); err != nil {
		t.Fatalf("put dup: %v", err)
	}
	prized, err := st.ListPrized(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(prized) != 1 || prized[0] != "giant pinecone" {
		t.Fatalf("unexpected prized: %v", prized)
	}
}

func TestAuditPrune(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openTestStore(t, dir)
	defer st.Close()

	now := time.Now()
	old := AuditEntry{At: now.Add(-48 * time.Hour), ActorID: 1, Action: "track"}
	fresh := AuditEntry{At: now, ActorID: 2, Action: "untrack"}
	if err := st.AppendAudit(ctx, old); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendAudit(ctx, fresh); err != nil {
		t.Fatalf("append: %v", err)
	}

	removed, err := st.PruneAudit(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("want 1 removed, got %d", removed)
	}

	// The surviving handle must still accept appends after the swap.
	if err := st.AppendAudit(ctx, AuditEntry{At: now, ActorID: 3, Action: "mute"}); err != nil {
		t.Fatalf("append after prune: %v", err)
	}
	removed, err = st.PruneAudit(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("second prune: %v", err)
	}
	if removed != 0 {
		t.Fatalf("want 0 removed on second prune, got %d", removed)
	}
}

func TestJournalCompaction(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openTestStore(t, dir)

	// Enough writes to cross the compaction threshold.
	for i := 0; i < 300; i++ {
		name := "item"
		if i%2 == 0 {
			name = "other"
		}
		if err := st.PutPrized(ctx, name); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := st.DeletePrized(ctx, name); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if err := st.PutSubscription(ctx, Subscription{ChatID: 5}); err != nil {
		t.Fatalf("put sub: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st = openTestStore(t, dir)
	defer st.Close()
	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ChatID != 5 {
		t.Fatalf("unexpected subscriptions after compaction: %+v", subs)
	}
	prized, err := st.ListPrized(ctx)
	if err != nil {
		t.Fatalf("list prized: %v", err)
	}
	if len(prized) != 0 {
		t.Fatalf("unexpected prized after compaction: %v", prized)
	}
}
