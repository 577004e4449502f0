// Package directory maintains the list of monitored entities per kind.
//
// The directory document is rebuilt from upstream sources by Refresh and is
// read-only to the report pipeline, which loads it at the start of each run.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rewired-gh/pulsereport/internal/atomicfile"
	"github.com/rewired-gh/pulsereport/internal/models"
)

// ErrMissing is returned by Load when the directory file does not exist.
var ErrMissing = errors.New("directory file not found")

// Activity is the 24h snapshot shown next to each entity.
type Activity struct {
	Events24h     int              `json:"events_24h"`
	Actors24h     int              `json:"actors_24h"`
	ChangePercent float64          `json:"change_percent"`
	Trend         models.Direction `json:"trend"`
}

// Entry is one entity of the directory document.
type Entry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        models.Kind `json:"kind"`
	Icon        string      `json:"icon"`
	Description string      `json:"description,omitempty"`
	LastUpdate  string      `json:"last_update"`
	Stats       Activity    `json:"stats"`
}

// Document is the on-disk directory for one kind.
type Document struct {
	GeneratedAt string      `json:"generated_at"`
	Kind        models.Kind `json:"kind"`
	Total       int         `json:"total"`
	Entities    []Entry     `json:"entities"`
}

// DomainEntities converts the document entries to domain entities.
func (d *Document) DomainEntities() []models.Entity {
	entities := make([]models.Entity, 0, len(d.Entities))
	for _, e := range d.Entities {
		kind := e.Kind
		if kind == "" {
			kind = d.Kind
		}
		entities = append(entities, models.Entity{
			ID:          e.ID,
			DisplayName: e.Name,
			Kind:        kind,
			Icon:        e.Icon,
			Description: e.Description,
		})
	}
	return entities
}

// Load reads a directory document and checks that it holds valid entities of kind.
func Load(path string, kind models.Kind) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrMissing)
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse directory %s: %w", path, err)
	}
	if doc.Kind == "" {
		doc.Kind = kind
	}
	if doc.Kind != kind {
		return nil, fmt.Errorf("directory %s holds %s entities, expected %s", path, doc.Kind, kind)
	}
	for _, e := range doc.DomainEntities() {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("directory %s: %w", path, err)
		}
	}
	return &doc, nil
}

// Save writes the document atomically.
func Save(path string, doc *Document) error {
	doc.Total = len(doc.Entities)
	if doc.Entities == nil {
		doc.Entities = []Entry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal directory: %w", err)
	}
	if err := atomicfile.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to save directory: %w", err)
	}
	return nil
}
