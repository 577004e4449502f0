package models

import (
	"errors"
	"time"
)

// DateLayout is the calendar-day format used in summaries and the index.
const DateLayout = "2006-01-02"

// TimestampLayout formats window bounds in summaries.
const TimestampLayout = "2006-01-02 15:04:05"

// Report is one persisted artifact for (entity, day).
// Re-running the builder for the same (entity, date) overwrites the artifact.
type Report struct {
	EntityID     string      `json:"entity_id"`
	Kind         Kind        `json:"kind"`
	Key          string      `json:"key"`           // sanitized key, join key with the index
	SurrogateKey string      `json:"surrogate_key"` // stable ledger key
	Name         string      `json:"name"`
	Icon         string      `json:"icon,omitempty"`
	Date         string      `json:"date"` // window start day, YYYY-MM-DD
	Window       Window      `json:"window"`
	Filename     string      `json:"filename"`
	Stats        WindowStats `json:"stats"`
	Trend        *Trend      `json:"trend,omitempty"` // nil when the previous window was unavailable
	SampleEvents []RawEvent  `json:"sample_events,omitempty"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// Validate checks that a report can be persisted and indexed.
func (r *Report) Validate() error {
	if r.EntityID == "" {
		return errors.New("report entity ID must not be empty")
	}
	if !r.Kind.Valid() {
		return errors.New("report kind is not supported")
	}
	if r.Key == "" {
		return errors.New("report key must not be empty")
	}
	if r.Filename == "" {
		return errors.New("report filename must not be empty")
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return errors.New("report date must be YYYY-MM-DD")
	}
	if err := r.Window.Validate(); err != nil {
		return err
	}
	return r.Stats.Validate()
}

// Summary projects the report into its index record.
func (r *Report) Summary() ReportSummary {
	return ReportSummary{
		Date:         r.Date,
		Filename:     r.Filename,
		StartDate:    r.Window.Start.UTC().Format(TimestampLayout),
		EndDate:      r.Window.End.UTC().Format(TimestampLayout),
		EventCount:   r.Stats.EventCount,
		UniqueActors: r.Stats.UniqueActors,
	}
}

// ReportSummary is the lightweight projection of a Report stored in the index.
type ReportSummary struct {
	Date         string
	Filename     string
	StartDate    string
	EndDate      string
	EventCount   int
	UniqueActors int
}
