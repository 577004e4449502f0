package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
)

var (
	start = time.Date(2025, 7, 16, 18, 45, 0, 0, time.UTC)
	end   = start.Add(24 * time.Hour)
)

func testClient(url string) *Client {
	return NewClient(url, "secret", 5*time.Second, ClientConfig{MaxRetries: 3, RetryDelayBase: time.Millisecond, MaxPages: 5})
}

func TestFetchEvents(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		query := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/repos/ethereum/go-ethereum/commits":
			if query.Get("since") != "2025-07-16T18:45:00Z" || query.Get("until") != "2025-07-17T18:45:00Z" {
				t.Errorf("Unexpected commit window %s..%s", query.Get("since"), query.Get("until"))
			}
			fmt.Fprint(w, `[
				{"sha":"a1","commit":{"message":"core: fix sync\n\nlong body","author":{"name":"Alice","email":"alice@example.com","date":"2025-07-17T10:00:00Z"},"committer":{"date":"2025-07-17T11:00:00Z"}},"author":{"login":"alice"}},
				{"sha":"b2","commit":{"message":"docs","author":{"name":"Ghost","email":"ghost@example.com","date":"2025-07-17T09:00:00Z"},"committer":{"date":"2025-07-17T09:30:00Z"}},"author":null}
			]`)
		case "/repos/ethereum/go-ethereum/issues":
			if query.Get("state") != "all" {
				t.Errorf("Expected state=all, got %s", query.Get("state"))
			}
			fmt.Fprint(w, `[
				{"number":10,"title":"Crash on start","created_at":"2025-07-17T01:00:00Z","user":{"login":"bob"}},
				{"number":11,"title":"Add tracing","created_at":"2025-07-17T02:00:00Z","user":{"login":"carol"},"pull_request":{"url":"x"}},
				{"number":3,"title":"Old issue","created_at":"2025-01-01T00:00:00Z","user":{"login":"dave"}}
			]`)
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer mockServer.Close()

	events, err := testClient(mockServer.URL).FetchEvents(context.Background(), "ethereum/go-ethereum", start, end)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}

	first := events[0]
	if first.ActorID != "alice" || first.Payload != "core: fix sync" || first.Category != CategoryCommit {
		t.Errorf("Unexpected commit event %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2025, 7, 17, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected committer date, got %v", first.Timestamp)
	}
	if events[1].ActorID != "ghost@example.com" {
		t.Errorf("Expected email fallback for unlinked author, got %q", events[1].ActorID)
	}
	if events[2].Category != CategoryIssue || events[3].Category != CategoryPullRequest {
		t.Errorf("Unexpected issue categories %s %s", events[2].Category, events[3].Category)
	}
}

func TestFetchEvents_Pagination(t *testing.T) {
	var commitPages int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/o/r/issues" {
			fmt.Fprint(w, `[]`)
			return
		}
		atomic.AddInt32(&commitPages, 1)
		n := perPage
		if r.URL.Query().Get("page") == "2" {
			n = 1
		}
		fmt.Fprint(w, "[")
		for i := 0; i < n; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"sha":"%d","commit":{"message":"m","author":{"name":"a","date":"2025-07-17T00:00:00Z"},"committer":{"date":"2025-07-17T00:00:00Z"}},"author":{"login":"a"}}`, i)
		}
		fmt.Fprint(w, "]")
	}))
	defer mockServer.Close()

	events, err := testClient(mockServer.URL).FetchEvents(context.Background(), "o/r", start, end)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if len(events) != perPage+1 {
		t.Errorf("Expected %d events, got %d", perPage+1, len(events))
	}
	if got := atomic.LoadInt32(&commitPages); got != 2 {
		t.Errorf("Expected 2 commit pages, got %d", got)
	}
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"full_name":"o/r","name":"r","description":"d","language":"Go","stargazers_count":5,"forks_count":2}`)
	}))
	defer mockServer.Close()

	info, err := testClient(mockServer.URL).Repository(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}
	if info.Language != "Go" || info.Stars != 5 {
		t.Errorf("Unexpected repository info %+v", info)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestDoRequest_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    error
	}{
		{"not found", http.StatusNotFound, nil, models.ErrEntityNotFound},
		{"too many requests", http.StatusTooManyRequests, nil, models.ErrRateLimited},
		{"rate limit exhausted", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, models.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer mockServer.Close()

			_, err := testClient(mockServer.URL).FetchEvents(context.Background(), "o/r", start, end)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDoRequest_MaxRetriesExceeded(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer mockServer.Close()

	if _, err := testClient(mockServer.URL).Repository(context.Background(), "o/r"); err == nil {
		t.Error("Expected error after exhausting retries")
	}
}

func TestFetchEvents_InvalidID(t *testing.T) {
	if _, err := testClient("http://unused").FetchEvents(context.Background(), "not-a-repo", start, end); err == nil {
		t.Error("Expected error for id without owner")
	}
}
