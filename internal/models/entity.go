// Package models defines the core domain entities for pulsereport.
// These models represent monitored entities, raw activity events, aggregation
// windows and the report records derived from them.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology:
//   - Entity: a monitored chat or repository.
//   - Window: a half-open [Start, End) interval, one lookback day.
//   - Report: the persisted per-entity, per-day artifact.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the entity families handled by the pipeline.
type Kind string

const (
	KindChat       Kind = "chat"
	KindRepository Kind = "repository"
)

// Kinds lists every supported kind in a fixed order.
var Kinds = []Kind{KindChat, KindRepository}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindRepository:
		return true
	}
	return false
}

// ParseKind accepts the kind name and a few plural aliases used on the command line.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat", "chats":
		return KindChat, nil
	case "repository", "repositories", "repo", "repos":
		return KindRepository, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Sentinel errors returned by event fetchers.
var (
	// ErrEntityNotFound means the upstream has no accessible entity with the given id.
	ErrEntityNotFound = errors.New("entity not found or inaccessible")
	// ErrRateLimited means the upstream refused the request because of rate limits.
	ErrRateLimited = errors.New("upstream rate limit exceeded")
)

// Entity represents a monitored source of events.
// Entities are rebuilt by the directory and read-only everywhere else.
type Entity struct {
	ID          string `json:"id"` // chat id ("-1002009589709") or "owner/name"
	DisplayName string `json:"name"`
	Kind        Kind   `json:"kind"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate checks that the entity id is well formed for its kind.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return errors.New("entity ID must not be empty")
	}
	switch e.Kind {
	case KindChat:
		if _, err := strconv.ParseInt(e.ID, 10, 64); err != nil {
			return fmt.Errorf("chat ID %q must be an integer", e.ID)
		}
	case KindRepository:
		owner, name, ok := strings.Cut(e.ID, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("repository ID %q must be owner/name", e.ID)
		}
	default:
		return fmt.Errorf("entity kind %q is not supported", e.Kind)
	}
	return nil
}

// Name returns the display name, falling back to the id.
func (e *Entity) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.ID
}

// ChatInfo is the upstream description of a chat.
type ChatInfo struct {
	ID       int64  `json:"chat_id"`
	Title    string `json:"title"`
	Type     string `json:"chat_type"` // private, group, supergroup, channel
	Username string `json:"username,omitempty"`
}

// RepoInfo is the upstream description of a repository.
type RepoInfo struct {
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
}
