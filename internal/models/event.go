package models

import (
	"errors"
	"time"
)

// RawEvent is one unit of activity produced by an event fetcher.
// Events are never mutated after they leave the fetcher.
type RawEvent struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"` // empty when the upstream has no author
	ActorName string    `json:"actor_name,omitempty"`
	Category  string    `json:"category"` // message type or code-host event kind
	Payload   string    `json:"payload,omitempty"`
}

// Validate checks the fields the aggregator relies on.
func (e *RawEvent) Validate() error {
	if e.EntityID == "" {
		return errors.New("event entity ID must not be empty")
	}
	if e.Timestamp.IsZero() {
		return errors.New("event timestamp must be set")
	}
	return nil
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether start <= t < end.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Previous returns the adjacent window of equal length ending at w.Start.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

// Date returns the calendar day of the window start in UTC.
func (w Window) Date() string {
	return w.Start.UTC().Format(DateLayout)
}

// Validate checks that the window is non-empty.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("window bounds must be set")
	}
	if !w.End.After(w.Start) {
		return errors.New("window end must be after start")
	}
	return nil
}

// WindowStats is the aggregation result for one (entity, window) pair.
type WindowStats struct {
	EventCount     int            `json:"event_count"`
	UniqueActors   int            `json:"unique_actors"`
	Categories     map[string]int `json:"categories"`
	HourlyActivity map[string]int `json:"hourly_activity"`
	LastEventAt    *time.Time     `json:"last_event_at,omitempty"`
}

// Validate checks the internal consistency invariants of the stats.
func (s *WindowStats) Validate() error {
	if s.EventCount < 0 || s.UniqueActors < 0 {
		return errors.New("counts must not be negative")
	}
	if s.UniqueActors > s.EventCount {
		return errors.New("unique actors must not exceed event count")
	}
	sum := 0
	for _, n := range s.Categories {
		sum += n
	}
	if sum != s.EventCount {
		return errors.New("category histogram must sum to event count")
	}
	return nil
}
