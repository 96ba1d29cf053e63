package tracker

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Rendering targets Telegram HTML parse mode. Item names come from an
// external API, so they are escaped before interpolation.

var categoryLabels = map[Category]string{
	CategoryGear:      "🛠️ <b>Gear</b>",
	CategorySeed:      "🌱 <b>Seeds</b>",
	CategoryEgg:       "🥚 <b>Eggs</b>",
	CategoryCosmetics: "🎨 <b>Cosmetics</b>",
	CategoryHoney:     "🍯 <b>Honey</b>",
}

func labelFor(cat Category) string {
	if l, ok := categoryLabels[cat]; ok {
		return l
	}
	name := string(cat)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return "📦 <b>" + html.EscapeString(name) + "</b>"
}

var itemEmojis = map[string]string{
	"Common Egg": "🥚", "Uncommon Egg": "🐣", "Rare Egg": "🍳", "Legendary Egg": "🪺", "Mythical Egg": "🥚", "Bug Egg": "🪲",
	"Watering Can": "🚿", "Trowel": "🛠️", "Recall Wrench": "🔧", "Basic Sprinkler": "💧",
	"Advanced Sprinkler": "💦", "Godly Sprinkler": "⛲", "Lightning Rod": "⚡", "Master Sprinkler": "🌊",
	"Favorite Tool": "❤️", "Harvest Tool": "🌾", "Carrot": "🥕", "Strawberry": "🍓", "Blueberry": "🫐",
	"Orange Tulip": "🌷", "Tomato": "🍅", "Corn": "🌽", "Daffodil": "🌼", "Watermelon": "🍉", "Pumpkin": "🎃",
	"Apple": "🍎", "Bamboo": "🎍", "Coconut": "🥥", "Cactus": "🌵", "Dragon Fruit": "🍈", "Mango": "🥭",
	"Grape": "🍇", "Mushroom": "🍄", "Pepper": "🌶️", "Cacao": "🍫", "Beanstalk": "🌱",
}

func itemEmoji(name string) string {
	if e, ok := itemEmojis[name]; ok {
		return e
	}
	return "❔"
}

// formatQuantity renders a stock count: x87, x1.2K, x3.4M.
func formatQuantity(v int) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("x%.1fM", float64(v)/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("x%.1fK", float64(v)/1_000)
	default:
		return fmt.Sprintf("x%d", v)
	}
}

func itemLine(it StockItem) string {
	return fmt.Sprintf("• %s %s: %s", itemEmoji(it.Name), html.EscapeString(it.Name), formatQuantity(it.Quantity))
}

// RenderEvent renders one change event as a Telegram HTML message.
func RenderEvent(ev ChangeEvent) string {
	var b strings.Builder
	switch ev.Kind {
	case EventPrizedItem:
		b.WriteString("🚨 <b>Prized item in stock!</b>\n\n")
		for _, it := range ev.Items {
			b.WriteString(itemLine(it))
			b.WriteString("\n")
		}
	case EventWeatherChanged:
		b.WriteString("🌦️ <b>Weather changed</b>\n\n")
		b.WriteString(weatherLines(ev.Weather))
	case EventCategoryUpdated:
		b.WriteString(labelFor(ev.Category))
		b.WriteString(" restocked!\n")
		if len(ev.Items) == 0 {
			b.WriteString("• no items in stock\n")
		}
		for _, it := range ev.Items {
			b.WriteString(itemLine(it))
			b.WriteString("\n")
		}
		b.WriteString("⏳ Restock in: ")
		b.WriteString(FormatCountdown(ev.Countdown))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func weatherLines(w Weather) string {
	icon := w.Icon
	if icon == "" {
		icon = "🌤️"
	}
	name := w.Name
	if name == "" {
		name = "Unknown"
	}
	bonus := w.CropBonus
	if bonus == "" {
		bonus = "None"
	}
	return fmt.Sprintf("<b>🌤️ Weather:</b> %s %s\n<b>🌾 Crop Bonus:</b> %s",
		icon, html.EscapeString(name), html.EscapeString(bonus))
}

// RenderReport renders the full stock report for a snapshot: every category
// that survives the filter, its restock countdown, the weather block, and
// a PHT timestamp. It is sent on /start, /refresh and startup restore.
func RenderReport(s *Snapshot, filters FilterSet, now time.Time) string {
	if s == nil {
		return "⚠️ Could not fetch data. The server might be down or the API changed."
	}

	gameNow := now.In(gameLocation)
	bounds := NextBoundaries(gameNow)

	var body strings.Builder
	for _, cat := range categoriesOf(s) {
		shown := filters.Apply(s.Stock[cat])
		if len(shown) == 0 {
			continue
		}
		body.WriteString(labelFor(cat))
		body.WriteString("\n")
		for _, it := range shown {
			body.WriteString(itemLine(it))
			body.WriteString("\n")
		}
		body.WriteString("⏳ Restock in: ")
		body.WriteString(FormatCountdown(Countdown(bounds[cat], gameNow)))
		body.WriteString("\n\n")
	}

	if body.Len() == 0 {
		return "Your filter didn't match any currently stocked items. Try a broader filter or use /start with no filter to see everything."
	}

	updated := gameNow.Format("Jan 02, 2006, 03:04:05 PM")
	return fmt.Sprintf("🌾 <b>Grow A Garden — Tracker</b>\n\n%s%s\n<i>Last updated (PHT): %s</i>",
		body.String(), weatherLines(s.Weather), updated)
}
