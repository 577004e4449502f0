// Package stats provides window aggregation and trend calculation.
//
// Aggregate reduces the raw events of one entity to counts for a single
// [start, end) window. The window filter is applied here as well, so callers
// may over-fetch and rely on it.
//
// Compare derives the change between two adjacent windows:
//
//	delta = (current - previous) / previous × 100   when previous > 0
//	delta = 100                                      when previous == 0 and current > 0
//	delta = 0                                        when both are 0
//
// Direction is "up" only for a strictly positive delta; zero is "down".
package stats

import (
	"fmt"
	"math"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// UnknownCategory is used for events that carry no category.
const UnknownCategory = "unknown"

// Aggregate computes the statistics for the events that fall inside window.
// Events with a zero timestamp are ignored. The function is pure and total.
func Aggregate(events []models.RawEvent, window models.Window) models.WindowStats {
	result := models.WindowStats{
		Categories:     make(map[string]int),
		HourlyActivity: make(map[string]int),
	}
	actors := make(map[string]struct{})

	for i := range events {
		ev := &events[i]
		if ev.Timestamp.IsZero() || !window.Contains(ev.Timestamp) {
			continue
		}
		result.EventCount++

		category := ev.Category
		if category == "" {
			category = UnknownCategory
		}
		result.Categories[category]++

		hour := fmt.Sprintf("%02d", ev.Timestamp.UTC().Hour())
		result.HourlyActivity[hour]++

		if ev.ActorID != "" {
			actors[ev.ActorID] = struct{}{}
		}

		if result.LastEventAt == nil || ev.Timestamp.After(*result.LastEventAt) {
			ts := ev.Timestamp.UTC()
			result.LastEventAt = &ts
		}
	}

	result.UniqueActors = len(actors)
	return result
}

// InWindow returns the events inside window with a valid timestamp, preserving order.
func InWindow(events []models.RawEvent, window models.Window) []models.RawEvent {
	var filtered []models.RawEvent
	for _, ev := range events {
		if !ev.Timestamp.IsZero() && window.Contains(ev.Timestamp) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// Compare returns the trend of current relative to previous.
// The delta is computed with exact division and rounded to one decimal
// afterwards; the direction is taken from the unrounded value.
func Compare(current, previous models.WindowStats) models.Trend {
	return trendOf(current.EventCount, previous.EventCount)
}

// CompareActors applies the same policy to unique actor counts.
func CompareActors(current, previous models.WindowStats) models.Trend {
	return trendOf(current.UniqueActors, previous.UniqueActors)
}

func trendOf(current, previous int) models.Trend {
	var delta float64
	switch {
	case previous > 0:
		delta = float64(current-previous) / float64(previous) * 100
	case current > 0:
		delta = 100
	default:
		delta = 0
	}

	direction := models.DirectionDown
	if delta > 0 {
		direction = models.DirectionUp
	}

	return models.Trend{
		DeltaPercent: roundTenth(delta),
		Direction:    direction,
	}
}

func roundTenth(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}
