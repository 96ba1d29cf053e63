package tracker

import (
	"sort"
	"strings"
	"time"
)

// Category identifies one shop section of the upstream stock API.
type Category string

const (
	CategoryGear      Category = "gear"
	CategorySeed      Category = "seed"
	CategoryEgg       Category = "egg"
	CategoryCosmetics Category = "cosmetics"
	CategoryHoney     Category = "honey"
)

// Categories lists the known shop sections in display order.
var Categories = []Category{CategoryGear, CategorySeed, CategoryEgg, CategoryCosmetics, CategoryHoney}

// StockItem is one shop entry. Identity for diffing is the full
// (Name, Quantity) pair: a quantity bump reads as old tuple gone,
// new tuple appeared, so it always surfaces in a diff.
type StockItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Weather is the current in-game weather record. Compared structurally.
type Weather struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	CropBonus string `json:"crop_bonus"`
}

// Snapshot is a point-in-time capture of categorized stock plus weather.
// Snapshots are immutable once produced; loops only swap whole snapshots.
type Snapshot struct {
	Stock     map[Category][]StockItem
	Weather   Weather
	FetchedAt time.Time
}

// categoriesOf returns s's categories: the known ones first (display order),
// then any unknown extras sorted by name, so diffs are deterministic.
func categoriesOf(s *Snapshot) []Category {
	if s == nil || len(s.Stock) == 0 {
		return nil
	}
	out := make([]Category, 0, len(s.Stock))
	known := map[Category]bool{}
	for _, c := range Categories {
		known[c] = true
		if _, ok := s.Stock[c]; ok {
			out = append(out, c)
		}
	}
	var extra []Category
	for c := range s.Stock {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

type itemKey struct {
	name string
	qty  int
}

func tupleSet(items []StockItem) map[itemKey]struct{} {
	if len(items) == 0 {
		return nil
	}
	m := make(map[itemKey]struct{}, len(items))
	for _, it := range items {
		m[itemKey{name: it.Name, qty: it.Quantity}] = struct{}{}
	}
	return m
}

// lowerNames collects every item name in the snapshot, lowercased.
func lowerNames(s *Snapshot) map[string]struct{} {
	if s == nil {
		return nil
	}
	m := map[string]struct{}{}
	for _, items := range s.Stock {
		for _, it := range items {
			m[strings.ToLower(it.Name)] = struct{}{}
		}
	}
	return m
}
