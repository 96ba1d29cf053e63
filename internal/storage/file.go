package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl          (append-only JSON Lines)
//   - <prefix>.state.snapshot.json  (periodic snapshot)
//   - <prefix>.state.journal.jsonl  (append-only journal)
//
// State covers subscriptions and the prized watchlist. The journal is
// compacted into the snapshot after a bounded number of writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditPath string
	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	journalPath  string

	subs   map[int64]Subscription
	prized map[string]struct{}

	writes int
}

// stateRecord is one journal line. Op determines which fields are set.
type stateRecord struct {
	Op     string        `json:"op"` // sub_put, sub_del, prized_put, prized_del
	Sub    *Subscription `json:"sub,omitempty"`
	ChatID int64         `json:"chat_id,omitempty"`
	Name   string        `json:"name,omitempty"`
}

// stateSnapshot is the compacted on-disk form.
type stateSnapshot struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Prized        []string       `json:"prized"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".state.snapshot.json"
	journalPath := prefix + ".state.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	subs := map[int64]Subscription{}
	prized := map[string]struct{}{}
	_ = loadStateSnapshot(snapPath, subs, prized)
	_ = replayStateJournal(journalPath, subs, prized)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		auditPath:    auditPath,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		journalPath:  journalPath,
		subs:         subs,
		prized:       prized,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) PutSubscription(ctx context.Context, sub Subscription) error {
	_ = ctx
	if sub.ChatID == 0 {
		return nil
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ChatID] = sub
	return s.appendLocked(stateRecord{Op: "sub_put", Sub: &sub})
}

func (s *fileStore) DeleteSubscription(ctx context.Context, chatID int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[chatID]; !ok {
		return nil
	}
	delete(s.subs, chatID)
	return s.appendLocked(stateRecord{Op: "sub_del", ChatID: chatID})
}

func (s *fileStore) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (s *fileStore) PutPrized(ctx context.Context, name string) error {
	_ = ctx
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prized[name]; ok {
		return nil
	}
	s.prized[name] = struct{}{}
	return s.appendLocked(stateRecord{Op: "prized_put", Name: name})
}

func (s *fileStore) DeletePrized(ctx context.Context, name string) error {
	_ = ctx
	name = strings.ToLower(strings.TrimSpace(name))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prized[name]; !ok {
		return nil
	}
	delete(s.prized, name)
	return s.appendLocked(stateRecord{Op: "prized_del", Name: name})
}

func (s *fileStore) ListPrized(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]string, 0, len(s.prized))
	for n := range s.prized {
		out = append(out, n)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

// PruneAudit rewrites the audit file keeping only entries at or after cutoff.
func (s *fileStore) PruneAudit(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return 0, errors.New("audit file closed")
	}

	in, err := os.Open(s.auditPath)
	if err != nil {
		return 0, err
	}
	tmp := s.auditPath + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		_ = in.Close()
		return 0, err
	}

	removed := 0
	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// Unparseable lines are dropped during prune.
			removed++
			continue
		}
		if e.At.Before(cutoff) {
			removed++
			continue
		}
		if err := enc.Encode(e); err != nil {
			_ = in.Close()
			_ = out.Close()
			return 0, err
		}
	}
	_ = in.Close()
	if err := sc.Err(); err != nil {
		_ = out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	// Swap files under the lock, then reopen the append handle.
	_ = s.auditFile.Close()
	if err := os.Rename(tmp, s.auditPath); err != nil {
		return 0, err
	}
	af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.auditFile = nil
		return removed, err
	}
	s.auditFile = af
	return removed, nil
}

func (s *fileStore) appendLocked(r stateRecord) error {
	if s.journalFile == nil {
		return errors.New("state journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%256 == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("state compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := stateSnapshot{
		Subscriptions: make([]Subscription, 0, len(s.subs)),
		Prized:        make([]string, 0, len(s.prized)),
	}
	for _, sub := range s.subs {
		snap.Subscriptions = append(snap.Subscriptions, sub)
	}
	for n := range s.prized {
		snap.Prized = append(snap.Prized, n)
	}
	sort.Slice(snap.Subscriptions, func(i, j int) bool { return snap.Subscriptions[i].ChatID < snap.Subscriptions[j].ChatID })
	sort.Strings(snap.Prized)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadStateSnapshot(path string, subs map[int64]Subscription, prized map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap stateSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, sub := range snap.Subscriptions {
		if sub.ChatID != 0 {
			subs[sub.ChatID] = sub
		}
	}
	for _, n := range snap.Prized {
		if n != "" {
			prized[n] = struct{}{}
		}
	}
	return nil
}

func replayStateJournal(path string, subs map[int64]Subscription, prized map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r stateRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "sub_put":
			if r.Sub != nil && r.Sub.ChatID != 0 {
				subs[r.Sub.ChatID] = *r.Sub
			}
		case "sub_del":
			delete(subs, r.ChatID)
		case "prized_put":
			if r.Name != "" {
				prized[r.Name] = struct{}{}
			}
		case "prized_del":
			delete(prized, r.Name)
		}
	}
	return sc.Err()
}
