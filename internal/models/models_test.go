package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEntityValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr bool
	}{
		{"negative chat id", Entity{ID: "-1002009589709", Kind: KindChat}, false},
		{"positive chat id", Entity{ID: "5", Kind: KindChat}, false},
		{"non numeric chat id", Entity{ID: "ethresearch", Kind: KindChat}, true},
		{"repository", Entity{ID: "ethereum/go-ethereum", Kind: KindRepository}, false},
		{"repository without owner", Entity{ID: "/go-ethereum", Kind: KindRepository}, true},
		{"repository with extra segment", Entity{ID: "a/b/c", Kind: KindRepository}, true},
		{"empty id", Entity{Kind: KindChat}, true},
		{"unknown kind", Entity{ID: "1", Kind: "channel"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Entity.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"chats", KindChat, false},
		{"chat", KindChat, false},
		{"repos", KindRepository, false},
		{"Repositories", KindRepository, false},
		{"users", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v; expected %q, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestWindowContainsIsHalfOpen(t *testing.T) {
	start := time.Date(2025, 7, 17, 10, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(24 * time.Hour)}

	if !w.Contains(start) {
		t.Error("Expected window to contain its start")
	}
	if w.Contains(w.End) {
		t.Error("Expected window to exclude its end")
	}
	if w.Contains(start.Add(-time.Nanosecond)) {
		t.Error("Expected window to exclude instants before start")
	}
	if got := w.Previous(); !got.End.Equal(start) || got.Duration() != 24*time.Hour {
		t.Errorf("Unexpected previous window: %+v", got)
	}
	if w.Date() != "2025-07-17" {
		t.Errorf("Expected date 2025-07-17, got %s", w.Date())
	}
}

func TestTrendValidate(t *testing.T) {
	tests := []struct {
		name    string
		trend   Trend
		wantErr bool
	}{
		{"up", Trend{DeltaPercent: 12.5, Direction: DirectionUp}, false},
		{"zero is down", Trend{DeltaPercent: 0, Direction: DirectionDown}, false},
		{"down with positive delta", Trend{DeltaPercent: 3, Direction: DirectionDown}, true},
		{"up with negative delta", Trend{DeltaPercent: -3, Direction: DirectionUp}, true},
		{"unknown direction", Trend{DeltaPercent: 1, Direction: "flat"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trend.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Trend.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWindowStatsValidate(t *testing.T) {
	ok := WindowStats{EventCount: 3, UniqueActors: 2, Categories: map[string]int{"text": 2, "photo": 1}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Expected valid stats, got %v", err)
	}
	bad := WindowStats{EventCount: 3, UniqueActors: 2, Categories: map[string]int{"text": 2}}
	if err := bad.Validate(); err == nil {
		t.Error("Expected histogram sum mismatch to fail validation")
	}
	tooMany := WindowStats{EventCount: 1, UniqueActors: 2, Categories: map[string]int{"text": 1}}
	if err := tooMany.Validate(); err == nil {
		t.Error("Expected unique actors above event count to fail validation")
	}
}

func TestMetadataIndexJSONFieldNames(t *testing.T) {
	summary := ReportSummary{Date: "2025-07-17", Filename: "report_1_20250717.html", EventCount: 42, UniqueActors: 7}

	chat := NewMetadataIndex(KindChat)
	chat.Entries["1"] = IndexEntry{Name: "General", Reports: []ReportSummary{summary}}
	data, err := json.Marshal(chat)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"1":{"name":"General"`, `"total_messages":42`, `"unique_participants":7`} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %s in %s", want, got)
		}
	}

	repo := NewMetadataIndex(KindRepository)
	repo.Entries["ethereum_solidity"] = IndexEntry{Name: "Solidity", Reports: []ReportSummary{summary}}
	data, err = json.Marshal(repo)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got = string(data)
	for _, want := range []string{`"commits":42`, `"contributors":7`} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %s in %s", want, got)
		}
	}

	decoded := &MetadataIndex{Kind: KindRepository}
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Entries["ethereum_solidity"].Reports[0].EventCount != 42 {
		t.Errorf("Expected 42 commits after decode, got %+v", decoded.Entries)
	}
}

func TestMetadataIndexEmptyReportsEncodeAsArray(t *testing.T) {
	idx := NewMetadataIndex(KindChat)
	idx.Entries["9"] = IndexEntry{Name: "Quiet"}
	data, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"reports":[]`) {
		t.Errorf("Expected empty reports array, got %s", data)
	}
}

func TestReportSummary(t *testing.T) {
	start := time.Date(2025, 7, 17, 9, 30, 0, 0, time.UTC)
	r := Report{
		EntityID: "-1002009589709",
		Kind:     KindChat,
		Key:      "1002009589709",
		Date:     "2025-07-17",
		Window:   Window{Start: start, End: start.Add(24 * time.Hour)},
		Filename: "report_1002009589709_20250717.html",
		Stats:    WindowStats{EventCount: 4, UniqueActors: 2, Categories: map[string]int{"text": 4}},
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Expected valid report, got %v", err)
	}
	s := r.Summary()
	if s.StartDate != "2025-07-17 09:30:00" || s.EndDate != "2025-07-18 09:30:00" {
		t.Errorf("Unexpected summary bounds: %s - %s", s.StartDate, s.EndDate)
	}
	if s.EventCount != 4 || s.UniqueActors != 2 || s.Filename != r.Filename {
		t.Errorf("Unexpected summary: %+v", s)
	}
}
