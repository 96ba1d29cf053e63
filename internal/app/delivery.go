package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/eventbus"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
	kit "github.com/Lazy-dev-hash/tg-gag-bot/internal/transport"
)

const defaultNotifyRatePerSec = 25

// telegramDelivery adapts the transport adapter to the tracker's Delivery
// port. A shared limiter keeps the bot under Telegram's global send budget
// no matter how many chats are tracking.
type telegramDelivery struct {
	adapter kit.Adapter
	limiter *rate.Limiter
	bus     eventbus.Bus
}

func newTelegramDelivery(adapter kit.Adapter, ratePerSec int, bus eventbus.Bus) *telegramDelivery {
	if ratePerSec <= 0 {
		ratePerSec = defaultNotifyRatePerSec
	}
	return &telegramDelivery{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		bus:     bus,
	}
}

// SetRate swaps the send budget on hot reload.
func (d *telegramDelivery) SetRate(ratePerSec int) {
	if ratePerSec <= 0 {
		ratePerSec = defaultNotifyRatePerSec
	}
	d.limiter.SetLimit(rate.Limit(ratePerSec))
	d.limiter.SetBurst(ratePerSec)
}

func (d *telegramDelivery) Send(ctx context.Context, chatID int64, html string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := d.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, html,
		&kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if errors.Is(err, kit.ErrRecipientGone) {
		return fmt.Errorf("%w: %w", tracker.ErrRecipientGone, err)
	}
	if err == nil && d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: eventbus.TypeTrackerNotified,
			Data: map[string]any{"chat_id": chatID},
		})
	}
	return err
}
