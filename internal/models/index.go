package models

import (
	"encoding/json"
	"fmt"
)

// IndexEntry is the per-entity value of the metadata index.
type IndexEntry struct {
	Name    string
	Reports []ReportSummary // newest first
}

// MetadataIndex maps sanitized entity keys to their report summaries.
// One index document exists per entity kind; the kind selects the count field names.
type MetadataIndex struct {
	Kind    Kind
	Entries map[string]IndexEntry
}

// NewMetadataIndex returns an empty index for kind.
func NewMetadataIndex(kind Kind) *MetadataIndex {
	return &MetadataIndex{Kind: kind, Entries: make(map[string]IndexEntry)}
}

// chatSummaryJSON and repoSummaryJSON fix the on-disk field names per kind.
type chatSummaryJSON struct {
	Date               string `json:"date"`
	Filename           string `json:"filename"`
	StartDate          string `json:"start_date,omitempty"`
	EndDate            string `json:"end_date,omitempty"`
	TotalMessages      int    `json:"total_messages"`
	UniqueParticipants int    `json:"unique_participants"`
}

type repoSummaryJSON struct {
	Date         string `json:"date"`
	Filename     string `json:"filename"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Commits      int    `json:"commits"`
	Contributors int    `json:"contributors"`
}

type entryJSON[T any] struct {
	Name    string `json:"name"`
	Reports []T    `json:"reports"`
}

// CountFields returns the JSON names of the two count fields for kind.
func CountFields(kind Kind) (events, actors string, err error) {
	switch kind {
	case KindChat:
		return "total_messages", "unique_participants", nil
	case KindRepository:
		return "commits", "contributors", nil
	}
	return "", "", fmt.Errorf("entity kind %q is not supported", kind)
}

// MarshalJSON encodes the index as {"<key>": {"name": ..., "reports": [...]}}.
func (idx *MetadataIndex) MarshalJSON() ([]byte, error) {
	switch idx.Kind {
	case KindChat:
		doc := make(map[string]entryJSON[chatSummaryJSON], len(idx.Entries))
		for key, entry := range idx.Entries {
			reports := make([]chatSummaryJSON, 0, len(entry.Reports))
			for _, s := range entry.Reports {
				reports = append(reports, chatSummaryJSON{
					Date: s.Date, Filename: s.Filename, StartDate: s.StartDate, EndDate: s.EndDate,
					TotalMessages: s.EventCount, UniqueParticipants: s.UniqueActors,
				})
			}
			doc[key] = entryJSON[chatSummaryJSON]{Name: entry.Name, Reports: reports}
		}
		return json.Marshal(doc)
	case KindRepository:
		doc := make(map[string]entryJSON[repoSummaryJSON], len(idx.Entries))
		for key, entry := range idx.Entries {
			reports := make([]repoSummaryJSON, 0, len(entry.Reports))
			for _, s := range entry.Reports {
				reports = append(reports, repoSummaryJSON{
					Date: s.Date, Filename: s.Filename, StartDate: s.StartDate, EndDate: s.EndDate,
					Commits: s.EventCount, Contributors: s.UniqueActors,
				})
			}
			doc[key] = entryJSON[repoSummaryJSON]{Name: entry.Name, Reports: reports}
		}
		return json.Marshal(doc)
	}
	return nil, fmt.Errorf("entity kind %q is not supported", idx.Kind)
}

// UnmarshalJSON decodes a document produced by MarshalJSON. Kind must be set beforehand.
func (idx *MetadataIndex) UnmarshalJSON(data []byte) error {
	idx.Entries = make(map[string]IndexEntry)
	switch idx.Kind {
	case KindChat:
		var doc map[string]entryJSON[chatSummaryJSON]
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		for key, e := range doc {
			entry := IndexEntry{Name: e.Name, Reports: make([]ReportSummary, 0, len(e.Reports))}
			for _, s := range e.Reports {
				entry.Reports = append(entry.Reports, ReportSummary{
					Date: s.Date, Filename: s.Filename, StartDate: s.StartDate, EndDate: s.EndDate,
					EventCount: s.TotalMessages, UniqueActors: s.UniqueParticipants,
				})
			}
			idx.Entries[key] = entry
		}
		return nil
	case KindRepository:
		var doc map[string]entryJSON[repoSummaryJSON]
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		for key, e := range doc {
			entry := IndexEntry{Name: e.Name, Reports: make([]ReportSummary, 0, len(e.Reports))}
			for _, s := range e.Reports {
				entry.Reports = append(entry.Reports, ReportSummary{
					Date: s.Date, Filename: s.Filename, StartDate: s.StartDate, EndDate: s.EndDate,
					EventCount: s.Commits, UniqueActors: s.Contributors,
				})
			}
			idx.Entries[key] = entry
		}
		return nil
	}
	return fmt.Errorf("entity kind %q is not supported", idx.Kind)
}
