package tracker

import (
	"strings"
	"testing"
	"time"
)

func TestFormatQuantity(t *testing.T) {
	cases := []struct {
		v    int
		want string
	}{
		{0, "x0"},
		{87, "x87"},
		{999, "x999"},
		{1200, "x1.2K"},
		{3_400_000, "x3.4M"},
	}
	for _, tc := range cases {
		if got := formatQuantity(tc.v); got != tc.want {
			t.Fatalf("formatQuantity(%d) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestRenderEventCategoryUpdate(t *testing.T) {
	out := RenderEvent(ChangeEvent{
		Kind:      EventCategoryUpdated,
		Category:  CategorySeed,
		Items:     []StockItem{{Name: "Carrot", Quantity: 20}},
		Countdown: 3 * time.Minute,
	})
	for _, want := range []string{"<b>Seeds</b>", "🥕 Carrot: x20", "Restock in: 00h 03m 00s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEventEmptyCategory(t *testing.T) {
	out := RenderEvent(ChangeEvent{Kind: EventCategoryUpdated, Category: CategoryEgg})
	if !strings.Contains(out, "no items in stock") {
		t.Fatalf("emptied category render = %q", out)
	}
}

func TestRenderEventPrized(t *testing.T) {
	out := RenderEvent(ChangeEvent{
		Kind:  EventPrizedItem,
		Items: []StockItem{{Name: "Godly Sprinkler", Quantity: 1}},
	})
	if !strings.Contains(out, "Prized item") || !strings.Contains(out, "⛲ Godly Sprinkler: x1") {
		t.Fatalf("prized render = %q", out)
	}
}

func TestRenderEventWeather(t *testing.T) {
	out := RenderEvent(ChangeEvent{
		Kind:    EventWeatherChanged,
		Weather: Weather{Name: "Rain", Icon: "🌧️", CropBonus: "+50% Wet"},
	})
	for _, want := range []string{"Weather changed", "🌧️ Rain", "Crop Bonus:</b> +50% Wet"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEventEscapesNames(t *testing.T) {
	out := RenderEvent(ChangeEvent{
		Kind:     EventCategoryUpdated,
		Category: CategoryGear,
		Items:    []StockItem{{Name: "<script>", Quantity: 1}},
	})
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped item name in %q", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("escaped name missing from %q", out)
	}
}

func TestRenderReport(t *testing.T) {
	s := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 2}},
		CategorySeed: {{Name: "Carrot", Quantity: 20}, {Name: "Tomato", Quantity: 5}},
	}, testWeather)

	out := RenderReport(s, nil, gameTime(10, 2, 0))
	for _, want := range []string{
		"🌾 <b>Grow A Garden — Tracker</b>",
		"<b>Gear</b>", "<b>Seeds</b>",
		"🥕 Carrot: x20",
		"<b>🌤️ Weather:</b> ☀️ Sunny",
		"Last updated (PHT):",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	// Gear restocks on the next 5-minute mark; at 10:02 that is 3 minutes out.
	if !strings.Contains(out, "00h 03m 00s") {
		t.Fatalf("report missing gear countdown:\n%s", out)
	}
}

func TestRenderReportFilterMiss(t *testing.T) {
	s := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Tomato", Quantity: 5}},
	}, testWeather)
	out := RenderReport(s, ParseFilters("carrot"), gameTime(10, 0, 0))
	if !strings.Contains(out, "didn't match any currently stocked items") {
		t.Fatalf("filter-miss report = %q", out)
	}
}

func TestRenderReportNilSnapshot(t *testing.T) {
	out := RenderReport(nil, nil, time.Now())
	if !strings.Contains(out, "Could not fetch data") {
		t.Fatalf("nil snapshot report = %q", out)
	}
}
