// Package bot wires the Telegram command surface to the tracker engine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/eventbus"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/storage"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
	kit "github.com/Lazy-dev-hash/tg-gag-bot/internal/transport"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/transport/telegram/router"
	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

type Deps struct {
	Registry *tracker.Registry
	Prized   *tracker.PrizedSet

	// Store may be nil when persistence is disabled.
	Store storage.Store

	// Bus may be nil; lifecycle events are skipped then.
	Bus eventbus.Bus

	Log logx.Logger
}

type handlers struct {
	reg    *tracker.Registry
	prized *tracker.PrizedSet
	store  storage.Store
	bus    eventbus.Bus
	log    logx.Logger
}

// Commands builds the full command table for the router.
func Commands(d Deps) []router.Command {
	h := &handlers{reg: d.Registry, prized: d.Prized, store: d.Store, bus: d.Bus, log: d.Log}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	return []router.Command{
		{
			Name:        "start",
			Aliases:     []string{"track"},
			Description: "start stock tracking in this chat",
			Usage:       "/start [filter | filter | ...]",
			Handle:      h.start,
		},
		{
			Name:        "stop",
			Aliases:     []string{"untrack"},
			Description: "stop stock tracking in this chat",
			Usage:       "/stop",
			Handle:      h.stop,
		},
		{
			Name:        "refresh",
			Description: "send a fresh stock report now",
			Usage:       "/refresh",
			Timeout:     30 * time.Second,
			Handle:      h.refresh,
		},
		{
			Name:        "mute",
			Description: "pause notifications (tracking keeps running)",
			Usage:       "/mute",
			Handle:      h.mute,
		},
		{
			Name:        "unmute",
			Description: "resume notifications",
			Usage:       "/unmute",
			Handle:      h.unmute,
		},
		{
			Name:        "status",
			Description: "show tracking status and restock timers",
			Usage:       "/status",
			Handle:      h.status,
		},
		{
			Name:        "prized",
			Description: "show the prized item watchlist",
			Usage:       "/prized [add <name> | remove <name>]",
			Handle:      h.prizedCmd,
		},
	}
}

func (h *handlers) reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, htmlOpts)
	return err
}

// audit records a command outcome. Best-effort: a storage hiccup must not
// fail the command itself.
func (h *handlers) audit(ctx context.Context, req *router.Request, action, detail string, cmdErr error) {
	if h.store == nil {
		return
	}
	e := storage.AuditEntry{
		At:            time.Now(),
		ActorID:       req.FromID,
		ActorUsername: req.From,
		ChatID:        req.Chat.ChatID,
		Action:        action,
		Detail:        detail,
	}
	if cmdErr != nil {
		e.Error = cmdErr.Error()
	}
	if err := h.store.AppendAudit(ctx, e); err != nil {
		h.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

func (h *handlers) persistSubscription(ctx context.Context, chatID int64, filters []string, muted bool) {
	if h.store == nil {
		return
	}
	err := h.store.PutSubscription(ctx, storage.Subscription{
		ChatID:    chatID,
		Filters:   filters,
		Muted:     muted,
		CreatedAt: time.Now(),
	})
	if err != nil {
		h.log.Warn("subscription persist failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (h *handlers) start(ctx context.Context, req *router.Request) error {
	filters := tracker.ParseFilters(strings.Join(req.Args, " "))
	err := h.reg.Track(req.Chat.ChatID, filters)
	if errors.Is(err, tracker.ErrAlreadyTracking) {
		return h.reply(ctx, req, "📡 Already tracking. Use /stop first to change filters.")
	}
	if err != nil {
		h.audit(ctx, req, "track", filters.String(), err)
		return err
	}

	h.persistSubscription(ctx, req.Chat.ChatID, filters, false)
	h.audit(ctx, req, "track", filters.String(), nil)
	if h.bus != nil {
		h.bus.Publish(eventbus.Event{
			Type: eventbus.TypeTrackerStarted,
			Data: map[string]any{"chat_id": req.Chat.ChatID, "filters": []string(filters)},
		})
	}
	return h.reply(ctx, req, fmt.Sprintf(
		"✅ <b>Tracking started</b>\nWatching: %s\nFirst report is on its way.",
		html.EscapeString(filters.String())))
}

func (h *handlers) stop(ctx context.Context, req *router.Request) error {
	if !h.reg.Untrack(req.Chat.ChatID) {
		return h.reply(ctx, req, "This chat is not tracking. Use /start to begin.")
	}
	if h.store != nil {
		if err := h.store.DeleteSubscription(ctx, req.Chat.ChatID); err != nil {
			h.log.Warn("subscription delete failed", logx.Int64("chat", req.Chat.ChatID), logx.Err(err))
		}
	}
	h.audit(ctx, req, "untrack", "", nil)
	return h.reply(ctx, req, "🛑 <b>Tracking stopped.</b>")
}

func (h *handlers) refresh(ctx context.Context, req *router.Request) error {
	err := h.reg.Report(ctx, req.Chat.ChatID)
	switch {
	case errors.Is(err, tracker.ErrNotTracking):
		return h.reply(ctx, req, "This chat is not tracking. Use /start to begin.")
	case errors.Is(err, tracker.ErrRecipientGone):
		// The loop is already tearing itself down; nothing to report back.
		return nil
	case err != nil:
		h.audit(ctx, req, "refresh", "", err)
		return h.reply(ctx, req, "⚠️ Could not fetch data. Please try again later.")
	}
	h.audit(ctx, req, "refresh", "", nil)
	return nil
}

func (h *handlers) mute(ctx context.Context, req *router.Request) error {
	return h.setMuted(ctx, req, true, "🔇 Notifications muted. Tracking keeps running; /unmute to resume.")
}

func (h *handlers) unmute(ctx context.Context, req *router.Request) error {
	return h.setMuted(ctx, req, false, "🔔 Notifications resumed.")
}

func (h *handlers) setMuted(ctx context.Context, req *router.Request, muted bool, okText string) error {
	if !h.reg.SetMuted(req.Chat.ChatID, muted) {
		return h.reply(ctx, req, "This chat is not tracking. Use /start to begin.")
	}
	if info, ok := h.reg.Lookup(req.Chat.ChatID); ok {
		h.persistSubscription(ctx, req.Chat.ChatID, info.Filters, muted)
	}
	action := "mute"
	if !muted {
		action = "unmute"
	}
	h.audit(ctx, req, action, "", nil)
	return h.reply(ctx, req, okText)
}

func (h *handlers) status(ctx context.Context, req *router.Request) error {
	info, ok := h.reg.Lookup(req.Chat.ChatID)
	if !ok {
		return h.reply(ctx, req, "This chat is not tracking. Use /start to begin.")
	}
	return h.reply(ctx, req, statusText(info, h.reg.Len(), req.IsOwner()))
}

func statusText(info tracker.Info, total int, owner bool) string {
	filters := tracker.FilterSet(info.Filters).String()
	state := "🔔 notifying"
	if info.Muted {
		state = "🔇 muted"
	}
	lines := []string{
		"📡 <b>Tracking status</b>",
		"• Watching: " + html.EscapeString(filters),
		"• State: " + state,
		fmt.Sprintf("• Since: %s (%d cycles)",
			info.StartedAt.In(tracker.GameNow().Location()).Format("Jan 02, 15:04"),
			info.Cycles),
	}

	now := tracker.GameNow()
	boundaries := tracker.NextBoundaries(now)
	cats := make([]tracker.Category, 0, len(boundaries))
	for c := range boundaries {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	lines = append(lines, "", "⏳ <b>Next restocks</b>")
	for _, c := range cats {
		lines = append(lines, fmt.Sprintf("• %s: %s", c,
			tracker.FormatCountdown(tracker.Countdown(boundaries[c], now))))
	}

	if owner {
		lines = append(lines, "", fmt.Sprintf("👥 Tracked chats: %d", total))
	}
	return strings.Join(lines, "\n")
}

func (h *handlers) prizedCmd(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 || strings.EqualFold(req.Args[0], "list") {
		return h.reply(ctx, req, prizedListText(h.prized.Names()))
	}

	// Mutations are owner-only; listing is open to everyone.
	if !req.IsOwner() {
		return h.reply(ctx, req, "unauthorized")
	}

	verb := strings.ToLower(req.Args[0])
	name := strings.TrimSpace(strings.Join(req.Args[1:], " "))
	if name == "" {
		return h.reply(ctx, req, "Usage: <code>/prized add &lt;name&gt;</code> or <code>/prized remove &lt;name&gt;</code>")
	}

	switch verb {
	case "add":
		if !h.prized.Add(name) {
			return h.reply(ctx, req, "Already on the watchlist.")
		}
		if h.store != nil {
			if err := h.store.PutPrized(ctx, name); err != nil {
				h.log.Warn("prized persist failed", logx.String("name", name), logx.Err(err))
			}
		}
		h.audit(ctx, req, "prized.add", name, nil)
		return h.reply(ctx, req, "🚨 Added <b>"+html.EscapeString(strings.ToLower(name))+"</b> to the watchlist.")
	case "remove", "rm", "del":
		if !h.prized.Remove(name) {
			return h.reply(ctx, req, "Not on the watchlist.")
		}
		if h.store != nil {
			if err := h.store.DeletePrized(ctx, name); err != nil {
				h.log.Warn("prized delete failed", logx.String("name", name), logx.Err(err))
			}
		}
		h.audit(ctx, req, "prized.remove", name, nil)
		return h.reply(ctx, req, "Removed <b>"+html.EscapeString(strings.ToLower(name))+"</b> from the watchlist.")
	default:
		return h.reply(ctx, req, "Usage: <code>/prized [add &lt;name&gt; | remove &lt;name&gt;]</code>")
	}
}

func prizedListText(names []string) string {
	if len(names) == 0 {
		return "🚨 <b>Prized watchlist</b>\n• empty"
	}
	lines := make([]string, 0, len(names)+1)
	lines = append(lines, "🚨 <b>Prized watchlist</b>")
	for _, n := range names {
		lines = append(lines, "• "+html.EscapeString(n))
	}
	return strings.Join(lines, "\n")
}
