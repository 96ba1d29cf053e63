package tracker

import (
	"reflect"
	"testing"
	"time"
)

func snap(stock map[Category][]StockItem, w Weather) *Snapshot {
	return &Snapshot{Stock: stock, Weather: w, FetchedAt: time.Now()}
}

var testWeather = Weather{Name: "Sunny", Icon: "☀️", CropBonus: "None"}

func TestDiffFirstCycleProducesNothing(t *testing.T) {
	curr := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 3}},
	}, testWeather)
	if evs := Diff(nil, curr, DiffOptions{Now: gameTime(10, 0, 0)}); len(evs) != 0 {
		t.Fatalf("nil prev must seed silently, got %d events", len(evs))
	}
}

func TestDiffStability(t *testing.T) {
	s := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 3}, {Name: "Watering Can", Quantity: 1}},
		CategorySeed: {{Name: "Carrot", Quantity: 20}},
	}, testWeather)
	same := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 3}, {Name: "Watering Can", Quantity: 1}},
		CategorySeed: {{Name: "Carrot", Quantity: 20}},
	}, testWeather)
	if evs := Diff(s, same, DiffOptions{Now: gameTime(10, 0, 0)}); len(evs) != 0 {
		t.Fatalf("identical snapshots produced %d events", len(evs))
	}
}

func TestDiffQuantityChangeIsAChange(t *testing.T) {
	prev := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Carrot", Quantity: 20}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Carrot", Quantity: 19}},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Now: gameTime(10, 0, 0)})
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Kind != EventCategoryUpdated || ev.Category != CategorySeed {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !reflect.DeepEqual(ev.Items, []StockItem{{Name: "Carrot", Quantity: 19}}) {
		t.Fatalf("items = %+v", ev.Items)
	}
}

func TestDiffDeterministicOrder(t *testing.T) {
	prev := snap(map[Category][]StockItem{
		CategoryGear:  {{Name: "Trowel", Quantity: 1}},
		CategorySeed:  {{Name: "Carrot", Quantity: 5}},
		CategoryHoney: {{Name: "Honey Comb", Quantity: 2}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategoryGear:  {{Name: "Trowel", Quantity: 2}},
		CategorySeed:  {{Name: "Carrot", Quantity: 6}},
		CategoryHoney: {{Name: "Honey Comb", Quantity: 3}},
	}, Weather{Name: "Rain", Icon: "🌧️", CropBonus: "+50% Wet"})

	want := []EventKind{EventWeatherChanged, EventCategoryUpdated, EventCategoryUpdated, EventCategoryUpdated}
	wantCats := []Category{"", CategoryGear, CategorySeed, CategoryHoney}

	for i := 0; i < 5; i++ {
		evs := Diff(prev, curr, DiffOptions{Now: gameTime(10, 0, 0)})
		if len(evs) != len(want) {
			t.Fatalf("run %d: got %d events, want %d", i, len(evs), len(want))
		}
		for j, ev := range evs {
			if ev.Kind != want[j] || ev.Category != wantCats[j] {
				t.Fatalf("run %d event %d: kind=%v cat=%q", i, j, ev.Kind, ev.Category)
			}
		}
	}
}

func TestDiffWeatherChange(t *testing.T) {
	prev := snap(map[Category][]StockItem{}, testWeather)
	curr := snap(map[Category][]StockItem{}, Weather{Name: "Sunny", Icon: "☀️", CropBonus: "+10%"})

	evs := Diff(prev, curr, DiffOptions{Now: gameTime(10, 0, 0)})
	if len(evs) != 1 || evs[0].Kind != EventWeatherChanged {
		t.Fatalf("expected a single weather event, got %+v", evs)
	}
	if evs[0].Weather.CropBonus != "+10%" {
		t.Fatalf("weather payload = %+v", evs[0].Weather)
	}
}

func TestDiffPrizedDetection(t *testing.T) {
	prized := NewPrizedSet("godly sprinkler")
	prev := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 1}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 1}, {Name: "Godly Sprinkler", Quantity: 2}},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Prized: prized.Contains, Now: gameTime(10, 0, 0)})
	if len(evs) != 1 {
		t.Fatalf("got %d events, want only the prized alert: %+v", len(evs), evs)
	}
	ev := evs[0]
	if ev.Kind != EventPrizedItem {
		t.Fatalf("kind = %v", ev.Kind)
	}
	if len(ev.Items) != 1 || ev.Items[0].Name != "Godly Sprinkler" {
		t.Fatalf("items = %+v", ev.Items)
	}
}

func TestDiffPrizedSuppressionOnlyForSingleAdd(t *testing.T) {
	prized := NewPrizedSet("godly sprinkler")
	prev := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 1}},
	}, testWeather)
	// Two tuples change: the prized add and an unrelated quantity bump.
	curr := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Trowel", Quantity: 2}, {Name: "Godly Sprinkler", Quantity: 1}},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Prized: prized.Contains, Now: gameTime(10, 0, 0)})
	if len(evs) != 2 {
		t.Fatalf("got %d events, want prized alert plus category update: %+v", len(evs), evs)
	}
	if evs[0].Kind != EventPrizedItem || evs[1].Kind != EventCategoryUpdated {
		t.Fatalf("order = %v, %v", evs[0].Kind, evs[1].Kind)
	}
}

func TestDiffPrizedQuantityBumpIsNotPrized(t *testing.T) {
	prized := NewPrizedSet("godly sprinkler")
	prev := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Godly Sprinkler", Quantity: 1}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategoryGear: {{Name: "Godly Sprinkler", Quantity: 2}},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Prized: prized.Contains, Now: gameTime(10, 0, 0)})
	// The name was already present, so this is a plain category update.
	if len(evs) != 1 || evs[0].Kind != EventCategoryUpdated {
		t.Fatalf("got %+v, want one category update", evs)
	}
}

func TestDiffFilterNarrowing(t *testing.T) {
	prev := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Carrot", Quantity: 5}, {Name: "Tomato", Quantity: 8}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Carrot", Quantity: 6}, {Name: "Tomato", Quantity: 8}},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Filters: ParseFilters("carrot"), Now: gameTime(10, 0, 0)})
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if !reflect.DeepEqual(evs[0].Items, []StockItem{{Name: "Carrot", Quantity: 6}}) {
		t.Fatalf("items = %+v", evs[0].Items)
	}
}

func TestDiffFilterSuppressesUnmatchedUpdate(t *testing.T) {
	prev := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Tomato", Quantity: 8}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategorySeed: {{Name: "Tomato", Quantity: 9}},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Filters: ParseFilters("carrot"), Now: gameTime(10, 0, 0)})
	if len(evs) != 0 {
		t.Fatalf("filtered-out update should be suppressed, got %+v", evs)
	}
}

func TestDiffEmptiedCategoryWithoutFilters(t *testing.T) {
	prev := snap(map[Category][]StockItem{
		CategoryEgg: {{Name: "Common Egg", Quantity: 1}},
	}, testWeather)
	curr := snap(map[Category][]StockItem{
		CategoryEgg: {},
	}, testWeather)

	evs := Diff(prev, curr, DiffOptions{Now: gameTime(10, 0, 0)})
	if len(evs) != 1 || evs[0].Kind != EventCategoryUpdated || len(evs[0].Items) != 0 {
		t.Fatalf("emptied category should still report with no items, got %+v", evs)
	}
}

func TestParseFilters(t *testing.T) {
	got := ParseFilters("  Watering Can |  Carrot || ")
	want := FilterSet{"watering can", "carrot"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseFilters = %v, want %v", got, want)
	}
	if ParseFilters("   ") != nil {
		t.Fatalf("blank input should produce an empty set")
	}
}

func TestFilterSetMatchAndString(t *testing.T) {
	var empty FilterSet
	if !empty.Match("Anything") {
		t.Fatalf("empty set must match everything")
	}
	if empty.String() != "all items" {
		t.Fatalf("empty set String = %q", empty.String())
	}

	f := ParseFilters("sprinkler|egg")
	if !f.Match("Godly Sprinkler") || !f.Match("COMMON EGG") {
		t.Fatalf("substring match failed")
	}
	if f.Match("Carrot") {
		t.Fatalf("unexpected match")
	}
}
