// Package events publishes pipeline progress notices to a message bus.
package events

import (
	"context"
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// DefaultSubjectPrefix is prepended to every topic.
const DefaultSubjectPrefix = "pulsereport"

// Topics holds the subjects events are published on.
type Topics struct {
	ReportGenerated string
	RunCompleted    string
	RunFailed       string
}

// NewTopics derives the topic names under prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return Topics{
		ReportGenerated: prefix + ".report.generated",
		RunCompleted:    prefix + ".run.completed",
		RunFailed:       prefix + ".run.failed",
	}
}

// Event types

type ReportGenerated struct {
	RunID        string        `json:"run_id"`
	Kind         models.Kind   `json:"kind"`
	EntityID     string        `json:"entity_id"`
	Key          string        `json:"key"`
	Date         string        `json:"date"`
	Filename     string        `json:"filename"`
	EventCount   int           `json:"event_count"`
	UniqueActors int           `json:"unique_actors"`
	Trend        *models.Trend `json:"trend,omitempty"`
}

type RunCompleted struct {
	RunID       string      `json:"run_id"`
	Kind        models.Kind `json:"kind"`
	Status      string      `json:"status"`
	Entities    int         `json:"entities"`
	Reports     int         `json:"reports"`
	SkippedDays int         `json:"skipped_days"`
	IndexPath   string      `json:"index_path"`
	FinishedAt  time.Time   `json:"finished_at"`
}

type RunFailed struct {
	RunID string      `json:"run_id"`
	Kind  models.Kind `json:"kind"`
	Error string      `json:"error"`
}

// NewReportGenerated builds the notice for one written report.
func NewReportGenerated(runID string, r *models.Report) ReportGenerated {
	return ReportGenerated{
		RunID:        runID,
		Kind:         r.Kind,
		EntityID:     r.EntityID,
		Key:          r.Key,
		Date:         r.Date,
		Filename:     r.Filename,
		EventCount:   r.Stats.EventCount,
		UniqueActors: r.Stats.UniqueActors,
		Trend:        r.Trend,
	}
}

// Publisher publishes JSON-encoded events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
