package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var (
	chatColumns    = []string{"chat_id", "title", "chat_type", "username"}
	messageColumns = []string{"from_user_id", "date", "text", "message_type", "first_name", "username"}
	start          = time.Date(2025, 7, 16, 18, 45, 0, 0, time.UTC)
	end            = start.Add(24 * time.Hour)
)

func expectChat(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery("SELECT .+ FROM chats_v1 WHERE chat_id = \\$1").WithArgs(id).
		WillReturnRows(sqlmock.NewRows(chatColumns).AddRow(id, "Milady Research", "supergroup", "milady"))
}

func TestFetchEvents(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	expectChat(mock, -1002009589709)
	mock.ExpectQuery("SELECT .+ FROM messages_v1 m LEFT JOIN users_v1 u .+ ORDER BY m.date DESC").
		WithArgs(int64(-1002009589709), start, end).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(int64(42), start.Add(2*time.Hour), "gm", "text", "Alice", "alice").
			AddRow(nil, start.Add(time.Hour), "", "", "", "").
			AddRow(int64(7), start.Add(30*time.Minute), "", "photo", "", "bob"))

	events, err := s.FetchEvents(context.Background(), "-1002009589709", start, end)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].ActorID != "42" || events[0].ActorName != "Alice (@alice)" || events[0].Payload != "gm" {
		t.Errorf("Unexpected first event %+v", events[0])
	}
	if events[1].ActorID != "" || events[1].Category != DefaultCategory {
		t.Errorf("Expected anonymous text message, got %+v", events[1])
	}
	if events[2].ActorName != "@bob" || events[2].Category != "photo" {
		t.Errorf("Unexpected third event %+v", events[2])
	}
	for _, e := range events {
		if e.EntityID != "-1002009589709" {
			t.Errorf("Expected entity id to be kept, got %s", e.EntityID)
		}
	}
}

func TestFetchEvents_UnknownChat(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM chats_v1 WHERE chat_id = \\$1").WithArgs(int64(-5)).
		WillReturnRows(sqlmock.NewRows(chatColumns))

	_, err := s.FetchEvents(context.Background(), "-5", start, end)
	if !errors.Is(err, models.ErrEntityNotFound) {
		t.Errorf("Expected ErrEntityNotFound, got %v", err)
	}
}

func TestFetchEvents_InvalidID(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewWithDB(db)
	if _, err := s.FetchEvents(context.Background(), "owner/name", start, end); err == nil {
		t.Error("Expected error for non-numeric chat id")
	}
}

func TestFetchEvents_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	expectChat(mock, -100)
	mock.ExpectQuery("SELECT .+ FROM messages_v1").WillReturnError(errors.New("connection refused"))

	if _, err := s.FetchEvents(context.Background(), "-100", start, end); err == nil {
		t.Error("Expected query error to be returned")
	}
}

func TestActiveChats(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	since := end.Add(-7 * 24 * time.Hour)
	mock.ExpectQuery("SELECT .+ FROM chats_v1 c WHERE EXISTS").WithArgs(since).
		WillReturnRows(sqlmock.NewRows(chatColumns).
			AddRow(int64(-200), "DeFi Protocol Chat", "supergroup", "").
			AddRow(int64(-100), "News", "channel", "news"))

	chats, err := s.ActiveChats(context.Background(), since)
	if err != nil {
		t.Fatalf("ActiveChats failed: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != -200 || chats[1].Type != "channel" {
		t.Errorf("Unexpected chats %+v", chats)
	}
}
