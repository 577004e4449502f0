// Package github fetches repository activity from the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
)

// Event categories produced by FetchEvents.
const (
	CategoryCommit      = "commit"
	CategoryIssue       = "issue"
	CategoryPullRequest = "pull_request"
)

const perPage = 100

// ClientConfig tunes retries and pagination.
type ClientConfig struct {
	MaxRetries     int           // attempts per request, at least 1
	RetryDelayBase time.Duration // linear back-off: base * attempt
	MaxPages       int           // pages fetched per listing, 0 for unlimited
}

// Client provides access to the GitHub REST API
type Client struct {
	apiBaseURL string
	token      string
	httpClient *http.Client
	config     ClientConfig
}

// NewClient creates a new GitHub client
func NewClient(apiBaseURL, token string, timeout time.Duration, config ClientConfig) *Client {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &Client{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		token:      token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: config,
	}
}

type apiUser struct {
	Login string `json:"login"`
}

type apiCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
	Author *apiUser `json:"author"` // nil when the commit email maps to no account
}

type apiIssue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	CreatedAt   time.Time       `json:"created_at"`
	User        *apiUser        `json:"user"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

func splitRepo(id string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository ID %q must be owner/name", id)
	}
	return owner, name, nil
}

func (c *Client) repoURL(id string) (string, error) {
	owner, name, err := splitRepo(id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/repos/%s/%s", c.apiBaseURL, url.PathEscape(owner), url.PathEscape(name)), nil
}

// Repository retrieves repository metadata
func (c *Client) Repository(ctx context.Context, id string) (*models.RepoInfo, error) {
	base, err := c.repoURL(id)
	if err != nil {
		return nil, err
	}

	var info models.RepoInfo
	if err := c.getJSON(ctx, base, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch repository %s: %w", id, err)
	}
	return &info, nil
}

// FetchEvents retrieves the commits, issues and pull requests of repository
// id created in [start, end).
func (c *Client) FetchEvents(ctx context.Context, id string, start, end time.Time) ([]models.RawEvent, error) {
	base, err := c.repoURL(id)
	if err != nil {
		return nil, err
	}

	commits, err := c.fetchCommits(ctx, base, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commits of %s: %w", id, err)
	}
	issues, err := c.fetchIssues(ctx, base, start)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues of %s: %w", id, err)
	}

	events := make([]models.RawEvent, 0, len(commits)+len(issues))
	for _, cm := range commits {
		ts := cm.Commit.Committer.Date
		if ts.IsZero() {
			ts = cm.Commit.Author.Date
		}
		actor := cm.Commit.Author.Email
		if cm.Author != nil && cm.Author.Login != "" {
			actor = cm.Author.Login
		}
		message, _, _ := strings.Cut(cm.Commit.Message, "\n")
		events = append(events, models.RawEvent{
			EntityID:  id,
			Timestamp: ts.UTC(),
			ActorID:   actor,
			ActorName: cm.Commit.Author.Name,
			Category:  CategoryCommit,
			Payload:   message,
		})
	}

	window := models.Window{Start: start, End: end}
	for _, is := range issues {
		// since= filters on updated_at; only issues opened in the window count.
		if !window.Contains(is.CreatedAt) {
			continue
		}
		category := CategoryIssue
		if len(is.PullRequest) > 0 && string(is.PullRequest) != "null" {
			category = CategoryPullRequest
		}
		ev := models.RawEvent{
			EntityID:  id,
			Timestamp: is.CreatedAt.UTC(),
			Category:  category,
			Payload:   fmt.Sprintf("#%d %s", is.Number, is.Title),
		}
		if is.User != nil {
			ev.ActorID = is.User.Login
			ev.ActorName = is.User.Login
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) fetchCommits(ctx context.Context, base string, start, end time.Time) ([]apiCommit, error) {
	q := url.Values{}
	q.Set("since", start.UTC().Format(time.RFC3339))
	q.Set("until", end.UTC().Format(time.RFC3339))

	var all []apiCommit
	err := c.paginate(ctx, base+"/commits", q, func(body io.Reader) (int, error) {
		var page []apiCommit
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return 0, fmt.Errorf("failed to decode commits: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

func (c *Client) fetchIssues(ctx context.Context, base string, start time.Time) ([]apiIssue, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("since", start.UTC().Format(time.RFC3339))

	var all []apiIssue
	err := c.paginate(ctx, base+"/issues", q, func(body io.Reader) (int, error) {
		var page []apiIssue
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return 0, fmt.Errorf("failed to decode issues: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

// paginate requests pages until one is short or MaxPages is reached.
func (c *Client) paginate(ctx context.Context, endpoint string, q url.Values, decode func(io.Reader) (int, error)) error {
	q.Set("per_page", strconv.Itoa(perPage))
	for page := 1; c.config.MaxPages == 0 || page <= c.config.MaxPages; page++ {
		q.Set("page", strconv.Itoa(page))
		resp, err := c.doRequest(ctx, endpoint+"?"+q.Encode())
		if err != nil {
			return err
		}
		n, err := decode(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if n < perPage {
			return nil
		}
	}
	logger.Warn("GitHub listing truncated at %d pages: %s", c.config.MaxPages, endpoint)
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, endpoint string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		if i > 0 {
			if err := c.backoff(ctx, i); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		req.Header.Set("User-Agent", "pulsereport")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, models.ErrEntityNotFound
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			resp.Body.Close()
			return nil, fmt.Errorf("%w (reset %s)", models.ErrRateLimited, resp.Header.Get("X-RateLimit-Reset"))
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.config.RetryDelayBase * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
