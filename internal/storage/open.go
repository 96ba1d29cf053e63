package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	PutSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, chatID int64) error
	ListSubscriptions(ctx context.Context) ([]Subscription, error)

	PutPrized(ctx context.Context, name string) error
	DeletePrized(ctx context.Context, name string) error
	ListPrized(ctx context.Context) ([]string, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	// PruneAudit drops audit entries older than cutoff and reports how
	// many were removed.
	PruneAudit(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
