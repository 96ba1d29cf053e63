package tracker

import "strings"

// FilterSet is a subscriber's item filter: lowercased substrings matched
// against item names, OR-combined. An empty set matches everything.
//
// Filters are fixed for the lifetime of a tracking session; changing them
// requires stop + start.
type FilterSet []string

// ParseFilters splits a raw filter string on "|", trims and lowercases the
// parts, and drops empties. "Watering Can | Carrot" -> {"watering can","carrot"}.
func ParseFilters(raw string) FilterSet {
	var out FilterSet
	for _, part := range strings.Split(raw, "|") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (f FilterSet) Match(name string) bool {
	if len(f) == 0 {
		return true
	}
	name = strings.ToLower(name)
	for _, sub := range f {
		if strings.Contains(name, sub) {
			return true
		}
	}
	return false
}

// Apply returns the items whose names match the filter, in input order.
func (f FilterSet) Apply(items []StockItem) []StockItem {
	if len(f) == 0 {
		return items
	}
	var out []StockItem
	for _, it := range items {
		if f.Match(it.Name) {
			out = append(out, it)
		}
	}
	return out
}

func (f FilterSet) String() string {
	if len(f) == 0 {
		return "all items"
	}
	return strings.Join(f, ", ")
}
