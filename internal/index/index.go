// Package index builds and persists the metadata index documents, one per
// entity kind, that map sanitized entity keys to their report summaries.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rewired-gh/pulsereport/internal/atomicfile"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/naming"
)

// Build assembles the index of kind from freshly built reports keyed by
// entity id. Every entity of kind appears, with an empty list when none of its
// days succeeded. Entities of other kinds are ignored.
func Build(kind models.Kind, entities []models.Entity, keys *naming.Keymap, reports map[string][]models.Report) (*models.MetadataIndex, error) {
	return assemble(kind, entities, keys, func(id string) []models.ReportSummary {
		out := make([]models.ReportSummary, 0, len(reports[id]))
		for i := range reports[id] {
			out = append(out, reports[id][i].Summary())
		}
		return out
	})
}

// FromLedger assembles the index of kind from persisted summaries keyed by
// entity id.
func FromLedger(kind models.Kind, entities []models.Entity, keys *naming.Keymap, summaries map[string][]models.ReportSummary) (*models.MetadataIndex, error) {
	return assemble(kind, entities, keys, func(id string) []models.ReportSummary {
		return append(make([]models.ReportSummary, 0, len(summaries[id])), summaries[id]...)
	})
}

func assemble(kind models.Kind, entities []models.Entity, keys *naming.Keymap, summariesOf func(id string) []models.ReportSummary) (*models.MetadataIndex, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("entity kind %q is not supported", kind)
	}
	if keys == nil {
		return nil, fmt.Errorf("keymap must not be nil")
	}

	idx := models.NewMetadataIndex(kind)
	for _, e := range entities {
		if e.Kind != kind {
			continue
		}
		key, ok := keys.Key(e.ID)
		if !ok {
			return nil, fmt.Errorf("no key assigned to entity %s", e.ID)
		}
		if _, dup := idx.Entries[key]; dup {
			return nil, fmt.Errorf("entity key %q assigned twice", key)
		}
		reports := summariesOf(e.ID)
		SortSummaries(reports)
		idx.Entries[key] = models.IndexEntry{Name: e.Name(), Reports: reports}
	}
	return idx, nil
}

// SortSummaries orders summaries by date descending, then filename descending.
func SortSummaries(s []models.ReportSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Date != s[j].Date {
			return s[i].Date > s[j].Date
		}
		return s[i].Filename > s[j].Filename
	})
}

// Save atomically replaces the index document at path.
func Save(path string, idx *models.MetadataIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := atomicfile.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Load reads the index document of kind from path.
func Load(path string, kind models.Kind) (*models.MetadataIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	idx := models.NewMetadataIndex(kind)
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return idx, nil
}
