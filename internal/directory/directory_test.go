package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/report"
)

var now = time.Date(2025, 7, 17, 18, 45, 0, 0, time.UTC)

type fakeChats []models.ChatInfo

func (f fakeChats) ActiveChats(ctx context.Context, since time.Time) ([]models.ChatInfo, error) {
	return f, nil
}

type fakeTitles map[string]string

func (f fakeTitles) LookupChat(ctx context.Context, id string) (*models.ChatInfo, error) {
	title, ok := f[id]
	if !ok {
		return nil, models.ErrEntityNotFound
	}
	return &models.ChatInfo{Title: title, Type: "channel"}, nil
}

type fakeRepos map[string]models.RepoInfo

func (f fakeRepos) Repository(ctx context.Context, id string) (*models.RepoInfo, error) {
	info, ok := f[id]
	if !ok {
		return nil, models.ErrEntityNotFound
	}
	return &info, nil
}

// burst returns n events by distinct actors, hoursAgo before now.
func burst(id string, n int, hoursAgo int) []models.RawEvent {
	events := make([]models.RawEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, models.RawEvent{
			EntityID:  id,
			Timestamp: now.Add(-time.Duration(hoursAgo)*time.Hour - time.Duration(i)*time.Minute),
			ActorID:   string(rune('a' + i)),
		})
	}
	return events
}

func fetcherOf(events map[string][]models.RawEvent, failing ...string) report.Fetcher {
	return report.FetcherFunc(func(ctx context.Context, id string, start, end time.Time) ([]models.RawEvent, error) {
		for _, f := range failing {
			if f == id {
				return nil, errors.New("connection reset")
			}
		}
		return events[id], nil
	})
}

func TestRefresh_Chats(t *testing.T) {
	events := map[string][]models.RawEvent{
		"-100": append(burst("-100", 6, 1), burst("-100", 3, 30)...), // +100%
		"-200": burst("-200", 6, 2),
		"-300": burst("-300", 2, 40), // nothing in the last 24h
		"-400": burst("-400", 9, 3),
	}
	r := &Refresher{
		Fetcher: fetcherOf(events, "-500"),
		Chats: fakeChats{
			{ID: -100, Title: "Ethereum Research", Type: "supergroup"},
			{ID: -200, Title: "Misc", Type: "group"},
			{ID: -300, Title: "Quiet", Type: "group"},
			{ID: -400, Title: "Alpha", Type: "channel"},
			{ID: -500, Title: "Broken", Type: "group"},
		},
		TopN: 2,
		Now:  func() time.Time { return now },
	}

	doc, errs, err := r.Refresh(context.Background(), models.KindChat)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(errs) != 1 || errs[0].EntityID != "-500" {
		t.Errorf("Expected one error for -500, got %v", errs)
	}
	if doc.Total != 2 || len(doc.Entities) != 2 {
		t.Fatalf("Expected top 2 chats, got %d", len(doc.Entities))
	}
	if doc.Entities[0].ID != "-400" {
		t.Errorf("Expected most active chat first, got %s", doc.Entities[0].ID)
	}
	// -100 and -200 tie on 6 events; id ascending puts -100 first.
	if doc.Entities[1].ID != "-100" {
		t.Errorf("Expected -100 to win the tie, got %s", doc.Entities[1].ID)
	}

	research := doc.Entities[1]
	if research.Icon != "🔬" || research.Name != "Ethereum Research" {
		t.Errorf("Unexpected entry %+v", research)
	}
	if research.Stats.Events24h != 6 || research.Stats.Actors24h != 6 {
		t.Errorf("Unexpected 24h stats %+v", research.Stats)
	}
	if research.Stats.ChangePercent != 100 || research.Stats.Trend != models.DirectionUp {
		t.Errorf("Expected +100%% up, got %+v", research.Stats)
	}
	if doc.GeneratedAt != "2025-07-17T18:45:00Z" || research.LastUpdate != doc.GeneratedAt {
		t.Errorf("Unexpected timestamps %s / %s", doc.GeneratedAt, research.LastUpdate)
	}
	if doc.Entities[0].Icon != "📢" {
		t.Errorf("Expected channel icon, got %s", doc.Entities[0].Icon)
	}
}

func TestRefresh_ChatTitleLookup(t *testing.T) {
	r := &Refresher{
		Fetcher: fetcherOf(map[string][]models.RawEvent{
			"-100": burst("-100", 1, 1),
			"-200": burst("-200", 1, 1),
		}),
		Chats:  fakeChats{{ID: -100, Title: "old"}, {ID: -200, Title: "gone"}},
		Titles: fakeTitles{"-100": "DAO Governance"},
		Now:    func() time.Time { return now },
	}

	doc, errs, err := r.Refresh(context.Background(), models.KindChat)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(doc.Entities) != 1 || doc.Entities[0].Name != "DAO Governance" || doc.Entities[0].Icon != "🏛️" {
		t.Errorf("Unexpected entities %+v", doc.Entities)
	}
	if len(errs) != 1 || !errors.Is(errs[0], models.ErrEntityNotFound) {
		t.Errorf("Expected not-found error for -200, got %v", errs)
	}
}

func TestRefresh_Repositories(t *testing.T) {
	r := &Refresher{
		Fetcher: fetcherOf(map[string][]models.RawEvent{
			"ethereum/solidity": burst("ethereum/solidity", 2, 5),
		}),
		Repos: fakeRepos{
			"ethereum/go-ethereum": {FullName: "ethereum/go-ethereum", Language: "Go", Description: "Go Ethereum"},
			"ethereum/solidity":    {FullName: "ethereum/solidity", Language: "C++"},
		},
		RepoIDs: []string{"ethereum/go-ethereum", "ethereum/solidity", "ethereum/missing"},
		TopN:    1,
		Now:     func() time.Time { return now },
	}

	doc, errs, err := r.Refresh(context.Background(), models.KindRepository)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(errs) != 1 || errs[0].EntityID != "ethereum/missing" {
		t.Errorf("Unexpected errors %v", errs)
	}
	// Repositories without activity are kept and TopN does not apply.
	if len(doc.Entities) != 2 {
		t.Fatalf("Expected 2 repositories, got %d", len(doc.Entities))
	}
	if doc.Entities[0].ID != "ethereum/solidity" || doc.Entities[0].Icon != "🔧" {
		t.Errorf("Unexpected first entry %+v", doc.Entities[0])
	}
	geth := doc.Entities[1]
	if geth.Icon != "⚡" || geth.Description != "Go Ethereum" || geth.Stats.Trend != models.DirectionDown {
		t.Errorf("Unexpected go-ethereum entry %+v", geth)
	}
}

func TestRefresh_NoFetcher(t *testing.T) {
	r := &Refresher{}
	if _, _, err := r.Refresh(context.Background(), models.KindChat); !errors.Is(err, report.ErrNoFetcher) {
		t.Errorf("Expected ErrNoFetcher, got %v", err)
	}
}

func TestChatIcon(t *testing.T) {
	tests := []struct {
		chatType, title, expected string
	}{
		{"supergroup", "Ethereum Core Devs", "⚡"},
		{"group", "Layer 2 Builders", "🛣️"},
		{"group", "Bitcoin Talk", "₿"},
		{"channel", "Daily Feed", "📢"},
		{"supergroup", "Friends", "👥"},
		{"private", "Ada", "💬"},
	}
	for _, tt := range tests {
		if got := ChatIcon(tt.chatType, tt.title); got != tt.expected {
			t.Errorf("ChatIcon(%q, %q) = %s, expected %s", tt.chatType, tt.title, got, tt.expected)
		}
	}
}

func TestRepoIcon(t *testing.T) {
	tests := []struct {
		name, language, expected string
	}{
		{"ethereum/EIPs", "Markdown", "📋"},
		{"ethereum/consensus-specs", "Python", "🔐"},
		{"paradigmxyz/reth", "Rust", "🦀"},
		{"ethereumjs/ethereumjs-monorepo", "TypeScript", "🟨"},
		{"foo/bar", "", "💻"},
	}
	for _, tt := range tests {
		if got := RepoIcon(tt.name, tt.language); got != tt.expected {
			t.Errorf("RepoIcon(%q, %q) = %s, expected %s", tt.name, tt.language, got, tt.expected)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "channels.json")
	doc := &Document{
		GeneratedAt: "2025-07-17T18:45:00Z",
		Kind:        models.KindChat,
		Entities: []Entry{
			{ID: "-100", Name: "Research", Kind: models.KindChat, Icon: "🔬", Stats: Activity{Events24h: 3, Trend: models.DirectionUp}},
		},
	}
	if err := Save(path, doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"events_24h": 3`) || !strings.Contains(string(data), `"total": 1`) {
		t.Errorf("Unexpected document:\n%s", data)
	}

	loaded, err := Load(path, models.KindChat)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	entities := loaded.DomainEntities()
	if len(entities) != 1 || entities[0].ID != "-100" || entities[0].Name() != "Research" {
		t.Errorf("Unexpected entities %+v", entities)
	}

	if _, err := Load(path, models.KindRepository); err == nil {
		t.Error("Expected kind mismatch error")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), models.KindChat)
	if !errors.Is(err, ErrMissing) {
		t.Errorf("Expected ErrMissing, got %v", err)
	}
}

func TestLoad_InvalidEntity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.json")
	if err := os.WriteFile(path, []byte(`{"kind":"repository","entities":[{"id":"not-a-repo","name":"x"}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, models.KindRepository); err == nil {
		t.Error("Expected validation error")
	}
}
