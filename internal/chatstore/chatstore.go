// Package chatstore reads chat activity from the Postgres message archive.
//
// The archive has three tables: chats_v1 (one row per chat), messages_v1 (one
// row per message, with a nullable author) and users_v1 (author names).
package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// DefaultCategory is used for messages without a recorded type.
const DefaultCategory = "text"

// Store fetches chats and messages. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New opens a connection pool to the archive at databaseURL.
func New(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chat ID %q must be an integer", chatID)
	}
	return id, nil
}

// Chat returns the archived description of a chat, or ErrEntityNotFound.
func (s *Store) Chat(ctx context.Context, chatID string) (*models.ChatInfo, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}

	var info models.ChatInfo
	err = s.db.QueryRowContext(ctx, `
		SELECT chat_id, COALESCE(title, ''), COALESCE(chat_type, ''), COALESCE(username, '')
		FROM chats_v1 WHERE chat_id = $1`, id).
		Scan(&info.ID, &info.Title, &info.Type, &info.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat %s: %w", chatID, models.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query chat %s: %w", chatID, err)
	}
	return &info, nil
}

// FetchEvents returns the messages of chatID in [start, end), newest first.
func (s *Store) FetchEvents(ctx context.Context, chatID string, start, end time.Time) ([]models.RawEvent, error) {
	if _, err := s.Chat(ctx, chatID); err != nil {
		return nil, err
	}
	id, _ := parseChatID(chatID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.from_user_id, m.date, COALESCE(m.text, ''), COALESCE(m.message_type, ''),
		       COALESCE(u.first_name, ''), COALESCE(u.username, '')
		FROM messages_v1 m
		LEFT JOIN users_v1 u ON u.user_id = m.from_user_id
		WHERE m.chat_id = $1 AND m.date >= $2 AND m.date < $3
		ORDER BY m.date DESC`, id, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query messages of chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var events []models.RawEvent
	for rows.Next() {
		var (
			author    sql.NullInt64
			ts        time.Time
			text      string
			category  string
			firstName string
			username  string
		)
		if err := rows.Scan(&author, &ts, &text, &category, &firstName, &username); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if category == "" {
			category = DefaultCategory
		}
		ev := models.RawEvent{
			EntityID:  chatID,
			Timestamp: ts.UTC(),
			Category:  category,
			Payload:   text,
		}
		if author.Valid {
			ev.ActorID = strconv.FormatInt(author.Int64, 10)
			ev.ActorName = displayName(firstName, username)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return events, nil
}

// ActiveChats returns the chats that have at least one message since since.
func (s *Store) ActiveChats(ctx context.Context, since time.Time) ([]models.ChatInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chat_id, COALESCE(c.title, ''), COALESCE(c.chat_type, ''), COALESCE(c.username, '')
		FROM chats_v1 c
		WHERE EXISTS (SELECT 1 FROM messages_v1 m WHERE m.chat_id = c.chat_id AND m.date >= $1)
		ORDER BY c.chat_id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query active chats: %w", err)
	}
	defer rows.Close()

	var chats []models.ChatInfo
	for rows.Next() {
		var info models.ChatInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.Type, &info.Username); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

func displayName(firstName, username string) string {
	switch {
	case firstName != "" && username != "":
		return firstName + " (@" + username + ")"
	case firstName != "":
		return firstName
	case username != "":
		return "@" + username
	}
	return ""
}
