//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) PutSubscription(ctx context.Context, sub Subscription) error {
	if sub.ChatID == 0 {
		return nil
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	filters, err := json.Marshal(sub.Filters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (chat_id, filters, muted, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			filters = excluded.filters,
			muted = excluded.muted`,
		sub.ChatID, string(filters), boolInt(sub.Muted), sub.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) DeleteSubscription(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE chat_id = ?`, chatID)
	return err
}

func (s *sqliteStore) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, filters, muted, created_at
		FROM subscriptions ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var filters, created string
		var muted int
		if err := rows.Scan(&sub.ChatID, &filters, &muted, &created); err != nil {
			return nil, err
		}
		if filters != "" {
			_ = json.Unmarshal([]byte(filters), &sub.Filters)
		}
		sub.Muted = muted != 0
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			sub.CreatedAt = t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutPrized(ctx context.Context, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prized (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	return err
}

func (s *sqliteStore) DeletePrized(ctx context.Context, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	_, err := s.db.ExecContext(ctx, `DELETE FROM prized WHERE name = ?`, name)
	return err
}

func (s *sqliteStore) ListPrized(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM prized ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit (at, actor_id, actor_username, chat_id, action, detail, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, e.ActorUsername, e.ChatID,
		e.Action, e.Detail, e.Error)
	return err
}

func (s *sqliteStore) PruneAudit(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit WHERE at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
