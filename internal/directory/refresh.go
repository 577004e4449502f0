package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/report"
	"github.com/rewired-gh/pulsereport/internal/stats"
)

// timeLayout formats generated_at and last_update.
const timeLayout = "2006-01-02T15:04:05Z"

// ChatSource discovers chats with recent activity.
type ChatSource interface {
	ActiveChats(ctx context.Context, since time.Time) ([]models.ChatInfo, error)
}

// ChatLookup resolves the current title of a chat.
type ChatLookup interface {
	LookupChat(ctx context.Context, id string) (*models.ChatInfo, error)
}

// RepoSource resolves repository metadata.
type RepoSource interface {
	Repository(ctx context.Context, id string) (*models.RepoInfo, error)
}

// EntityError is a per-entity refresh failure. The entity is left out of
// the refreshed document.
type EntityError struct {
	EntityID string
	Err      error
}

func (e EntityError) Error() string {
	return fmt.Sprintf("refresh error for entity %s: %v", e.EntityID, e.Err)
}

func (e EntityError) Unwrap() error {
	return e.Err
}

// Refresher rebuilds directory documents from the upstream sources.
type Refresher struct {
	Fetcher      report.Fetcher
	Chats        ChatSource
	Titles       ChatLookup // optional
	Repos        RepoSource
	RepoIDs      []string
	ActiveWindow time.Duration // chat discovery lookback
	TopN         int           // chats kept, 0 for all
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Refresh builds a fresh document for kind. Per-entity failures are returned
// next to the document; only a failure of discovery itself is fatal.
func (r *Refresher) Refresh(ctx context.Context, kind models.Kind) (*Document, []EntityError, error) {
	if r.Fetcher == nil {
		return nil, nil, report.ErrNoFetcher
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	at := now().UTC()

	var candidates []Entry
	var errs []EntityError
	var err error
	switch kind {
	case models.KindChat:
		candidates, errs, err = r.chatCandidates(ctx, at)
	case models.KindRepository:
		candidates, errs, err = r.repoCandidates(ctx)
	default:
		return nil, nil, fmt.Errorf("entity kind %q is not supported", kind)
	}
	if err != nil {
		return nil, nil, err
	}

	entries := make([]Entry, 0, len(candidates))
	for _, entry := range candidates {
		activity, err := r.activity(ctx, entry.ID, at)
		if err != nil {
			logger.Warn("directory: skipping %s: %v", entry.ID, err)
			errs = append(errs, EntityError{EntityID: entry.ID, Err: err})
			continue
		}
		if kind == models.KindChat && activity.Events24h == 0 {
			logger.Debug("directory: %s has no activity in the last 24h", entry.ID)
			continue
		}
		entry.Kind = kind
		entry.LastUpdate = at.Format(timeLayout)
		entry.Stats = activity
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Stats.Events24h != entries[j].Stats.Events24h {
			return entries[i].Stats.Events24h > entries[j].Stats.Events24h
		}
		return entries[i].ID < entries[j].ID
	})
	if kind == models.KindChat && r.TopN > 0 && len(entries) > r.TopN {
		entries = entries[:r.TopN]
	}

	logger.Info("directory: %d %s entities (%d failed)", len(entries), kind, len(errs))
	return &Document{
		GeneratedAt: at.Format(timeLayout),
		Kind:        kind,
		Total:       len(entries),
		Entities:    entries,
	}, errs, nil
}

func (r *Refresher) chatCandidates(ctx context.Context, at time.Time) ([]Entry, []EntityError, error) {
	if r.Chats == nil {
		return nil, nil, errors.New("no chat source configured")
	}
	window := r.ActiveWindow
	if window <= 0 {
		window = 7 * report.Day
	}
	chats, err := r.Chats.ActiveChats(ctx, at.Add(-window))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover active chats: %w", err)
	}

	var errs []EntityError
	entries := make([]Entry, 0, len(chats))
	for _, chat := range chats {
		id := strconv.FormatInt(chat.ID, 10)
		if r.Titles != nil {
			live, err := r.Titles.LookupChat(ctx, id)
			switch {
			case errors.Is(err, models.ErrEntityNotFound):
				errs = append(errs, EntityError{EntityID: id, Err: err})
				continue
			case err != nil:
				logger.Warn("directory: keeping stored title of %s: %v", id, err)
			default:
				chat.Title = live.Title
				chat.Type = live.Type
			}
		}
		name := chat.Title
		if name == "" {
			name = "Unknown Chat"
		}
		entries = append(entries, Entry{ID: id, Name: name, Icon: ChatIcon(chat.Type, chat.Title)})
	}
	return entries, errs, nil
}

func (r *Refresher) repoCandidates(ctx context.Context) ([]Entry, []EntityError, error) {
	if r.Repos == nil {
		return nil, nil, errors.New("no repository source configured")
	}

	var errs []EntityError
	entries := make([]Entry, 0, len(r.RepoIDs))
	for _, id := range r.RepoIDs {
		info, err := r.Repos.Repository(ctx, id)
		if err != nil {
			logger.Warn("directory: skipping %s: %v", id, err)
			errs = append(errs, EntityError{EntityID: id, Err: err})
			continue
		}
		name := info.FullName
		if name == "" {
			name = id
		}
		entries = append(entries, Entry{
			ID:          id,
			Name:        name,
			Icon:        RepoIcon(id, info.Language),
			Description: info.Description,
		})
	}
	return entries, errs, nil
}

// activity compares the last 24h with the 24h before.
func (r *Refresher) activity(ctx context.Context, id string, at time.Time) (Activity, error) {
	windows := report.DailyWindows(at, 2)
	current, previous := windows[0], windows[1]

	fetchCtx := ctx
	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}
	events, err := r.Fetcher.FetchEvents(fetchCtx, id, previous.Start, current.End)
	if err != nil {
		return Activity{}, err
	}

	cur := stats.Aggregate(events, current)
	prev := stats.Aggregate(events, previous)
	trend := stats.Compare(cur, prev)
	return Activity{
		Events24h:     cur.EventCount,
		Actors24h:     cur.UniqueActors,
		ChangePercent: trend.DeltaPercent,
		Trend:         trend.Direction,
	}, nil
}
