// Package gag talks to the public Grow A Garden stock and weather APIs
// and converts their payloads into tracker snapshots.
package gag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
)

const (
	DefaultStockURL   = "https://gagstock.gleeze.com/grow-a-garden"
	DefaultWeatherURL = "https://growagardenstock.com/api/stock/weather"
)

type Config struct {
	StockURL   string
	WeatherURL string
	UserAgent  string
}

// Client implements tracker.Fetcher against the two upstream endpoints.
// Both requests run per Fetch call; the caller's context carries the
// deadline for the whole pair.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.StockURL == "" {
		cfg.StockURL = DefaultStockURL
	}
	if cfg.WeatherURL == "" {
		cfg.WeatherURL = DefaultWeatherURL
	}
	return &Client{
		cfg: cfg,
		// No client-side timeout: each Fetch gets its deadline from ctx.
		http: &http.Client{},
	}
}

// stockPayload mirrors the stock endpoint:
//
//	{"data": {"gear": {"items": [{"name": "...", "quantity": 3}]}, ...}}
type stockPayload struct {
	Data map[string]struct {
		Items []stockItem `json:"items"`
	} `json:"data"`
}

type stockItem struct {
	Name     string   `json:"name"`
	Quantity quantity `json:"quantity"`
}

// quantity tolerates both numeric and string encodings; the upstream API
// has shipped both.
type quantity int

func (q *quantity) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("quantity %q: %w", s, err)
		}
		n = int(f)
	}
	*q = quantity(n)
	return nil
}

type weatherPayload struct {
	CurrentWeather string `json:"currentWeather"`
	Icon           string `json:"icon"`
	CropBonuses    string `json:"cropBonuses"`
}

func (c *Client) Fetch(ctx context.Context) (*tracker.Snapshot, error) {
	var stock stockPayload
	if err := c.getJSON(ctx, c.cfg.StockURL, &stock); err != nil {
		return nil, fmt.Errorf("stock: %w", err)
	}
	var weather weatherPayload
	if err := c.getJSON(ctx, c.cfg.WeatherURL, &weather); err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}

	snap := &tracker.Snapshot{
		Stock:     make(map[tracker.Category][]tracker.StockItem, len(stock.Data)),
		FetchedAt: time.Now(),
		Weather: tracker.Weather{
			Name:      weather.CurrentWeather,
			Icon:      weather.Icon,
			CropBonus: weather.CropBonuses,
		},
	}
	for cat, details := range stock.Data {
		items := make([]tracker.StockItem, 0, len(details.Items))
		for _, it := range details.Items {
			items = append(items, tracker.StockItem{Name: it.Name, Quantity: int(it.Quantity)})
		}
		snap.Stock[tracker.Category(cat)] = items
	}
	return snap, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for connection reuse, then report.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
