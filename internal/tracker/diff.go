package tracker

import (
	"strings"
	"time"
)

type EventKind int

const (
	EventCategoryUpdated EventKind = iota
	EventPrizedItem
	EventWeatherChanged
)

func (k EventKind) String() string {
	switch k {
	case EventCategoryUpdated:
		return "category_updated"
	case EventPrizedItem:
		return "prized_item"
	case EventWeatherChanged:
		return "weather_changed"
	default:
		return "unknown"
	}
}

// ChangeEvent is one notification-worthy difference between two snapshots.
// Events are produced fresh every cycle and never persisted.
type ChangeEvent struct {
	Kind      EventKind
	Category  Category      // EventCategoryUpdated only
	Items     []StockItem   // items to show (already filter-narrowed) or prized matches
	Countdown time.Duration // time to the category's next restock boundary
	Weather   Weather       // EventWeatherChanged only
}

// DiffOptions carries the per-subscriber policy applied while diffing.
type DiffOptions struct {
	// Filters narrows the items shown in category updates.
	Filters FilterSet
	// Prized reports whether a lowercased item name is on the prized watchlist.
	// Nil disables prized detection.
	Prized func(name string) bool
	// Now anchors restock countdowns.
	Now time.Time
}

// Diff compares two snapshots and returns the changes worth notifying,
// in a deterministic order: weather first, then prized items, then
// category updates in display order.
//
// A nil prev means this is the tracker's first cycle; it exists only to
// seed state, so no events are produced.
func Diff(prev, curr *Snapshot, opt DiffOptions) []ChangeEvent {
	if prev == nil || curr == nil {
		return nil
	}

	var events []ChangeEvent

	if curr.Weather != prev.Weather {
		events = append(events, ChangeEvent{Kind: EventWeatherChanged, Weather: curr.Weather})
	}

	// Prized detection runs before category diffing so the suppression
	// rule below can reference the names classified here.
	prizedNew := map[string]bool{}
	if opt.Prized != nil {
		prevNames := lowerNames(prev)
		var matches []StockItem
		for _, cat := range categoriesOf(curr) {
			for _, it := range curr.Stock[cat] {
				ln := strings.ToLower(it.Name)
				if _, existed := prevNames[ln]; existed {
					continue
				}
				if prizedNew[ln] || !opt.Prized(ln) {
					continue
				}
				prizedNew[ln] = true
				matches = append(matches, it)
			}
		}
		if len(matches) > 0 {
			events = append(events, ChangeEvent{Kind: EventPrizedItem, Items: matches})
		}
	}

	bounds := NextBoundaries(opt.Now)
	for _, cat := range categoriesOf(curr) {
		added, removed := tupleDiff(prev.Stock[cat], curr.Stock[cat])
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		// A single added item already covered by a prized alert would make
		// the category update redundant; skip it.
		if len(added) == 1 && prizedNew[strings.ToLower(added[0].Name)] {
			continue
		}
		shown := opt.Filters.Apply(curr.Stock[cat])
		// With active filters, an update whose remaining items all miss the
		// filter is suppressed entirely. Without filters even an emptied
		// category is reported (rendered as "no items in stock").
		if len(shown) == 0 && len(opt.Filters) > 0 {
			continue
		}
		events = append(events, ChangeEvent{
			Kind:      EventCategoryUpdated,
			Category:  cat,
			Items:     shown,
			Countdown: Countdown(bounds[cat], opt.Now),
		})
	}

	return events
}

// tupleDiff returns the (name, quantity) tuples present only in curr
// (added, in curr order) and only in prev (removed, in prev order).
func tupleDiff(prev, curr []StockItem) (added, removed []StockItem) {
	prevSet := tupleSet(prev)
	currSet := tupleSet(curr)
	for _, it := range curr {
		if _, ok := prevSet[itemKey{name: it.Name, qty: it.Quantity}]; !ok {
			added = append(added, it)
		}
	}
	for _, it := range prev {
		if _, ok := currSet[itemKey{name: it.Name, qty: it.Quantity}]; !ok {
			removed = append(removed, it)
		}
	}
	return added, removed
}
