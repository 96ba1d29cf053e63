package tracker

import (
	"fmt"
	"time"
)

// The shop restocks on the game server's clock (Philippine time).
// All boundary math happens in this location regardless of host timezone.
var gameLocation = loadGameLocation()

func loadGameLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		// No tzdata available; PHT has no DST so a fixed offset is exact.
		return time.FixedZone("PHT", 8*60*60)
	}
	return loc
}

// GameNow returns the current time on the game clock.
func GameNow() time.Time { return time.Now().In(gameLocation) }

// NextBoundaries computes, for every category, the next restock time
// strictly after now. It is a pure function of now and never consults
// observed stock:
//
//   - gear, seed: next multiple-of-5-minutes mark
//   - egg:        next :00 or :30
//   - honey:      top of the next hour
//   - cosmetics:  next of 00:00 / 07:00 / 14:00 / 21:00 (next day after 21:00)
func NextBoundaries(now time.Time) map[Category]time.Time {
	t := now.In(gameLocation)
	five := nextFiveMinuteMark(t)
	return map[Category]time.Time{
		CategoryGear:      five,
		CategorySeed:      five,
		CategoryEgg:       nextHalfHourMark(t),
		CategoryHoney:     nextHourMark(t),
		CategoryCosmetics: nextCosmeticsMark(t),
	}
}

func nextFiveMinuteMark(t time.Time) time.Time {
	m := (t.Minute()/5 + 1) * 5
	top := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	if m >= 60 {
		return top.Add(time.Hour)
	}
	return top.Add(time.Duration(m) * time.Minute)
}

func nextHalfHourMark(t time.Time) time.Time {
	top := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	if t.Minute() < 30 {
		return top.Add(30 * time.Minute)
	}
	return top.Add(time.Hour)
}

func nextHourMark(t time.Time) time.Time {
	top := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	return top.Add(time.Hour)
}

var cosmeticsHours = []int{0, 7, 14, 21}

func nextCosmeticsMark(t time.Time) time.Time {
	for _, h := range cosmeticsHours {
		cand := time.Date(t.Year(), t.Month(), t.Day(), h, 0, 0, 0, t.Location())
		if cand.After(t) {
			return cand
		}
	}
	// Past 21:00: wrap to midnight of the next day.
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

// Countdown returns the time left until target, clamped at zero.
func Countdown(target, now time.Time) time.Duration {
	d := target.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// FormatCountdown renders a countdown as "HHh MMm SSs"; an elapsed
// countdown renders as "restocked".
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "restocked"
	}
	total := int(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02dh %02dm %02ds", h, m, s)
}
