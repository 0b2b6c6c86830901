package github

import (
	"context"
	"log/slog"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/mchan/issuelens/internal/retry"
)

// defaultPerPage is the GitHub maximum page size.
const defaultPerPage = 100

// Lister fetches a repository's issues page by page. Every request goes
// through the retry engine with a rate-limit-tuned profile.
type Lister struct {
	client   *gogithub.Client
	owner    string
	repo     string
	perPage  int
	maxPages int
	retryCfg retry.Config
	logger   *slog.Logger
}

// ListerOption configures a Lister.
type ListerOption func(*Lister)

// WithPerPage overrides the page size (default 100, the GitHub maximum).
func WithPerPage(n int) ListerOption {
	return func(l *Lister) { l.perPage = n }
}

// WithMaxPages caps how many pages a listing fetches. Zero means unbounded.
func WithMaxPages(n int) ListerOption {
	return func(l *Lister) { l.maxPages = n }
}

// WithRetryConfig overrides the retry profile used for API calls.
func WithRetryConfig(cfg retry.Config) ListerOption {
	return func(l *Lister) { l.retryCfg = cfg }
}

// NewLister creates a Lister for one repository.
func NewLister(client *gogithub.Client, owner, repo string, logger *slog.Logger, opts ...ListerOption) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lister{
		client:   client,
		owner:    owner,
		repo:     repo,
		perPage:  defaultPerPage,
		retryCfg: retry.GitHub,
		logger:   logger.With("repo", owner+"/"+repo),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StreamOptions controls a streaming issue listing.
type StreamOptions struct {
	// State filters by issue state: "open", "closed", or "all".
	State string

	// Sort and Direction order the listing ("created"/"updated",
	// "asc"/"desc"). Full syncs use created/asc so the resume filter works.
	Sort      string
	Direction string

	// Since restricts the listing to issues updated at or after this time.
	Since time.Time

	// SinceNumber drops fetched issues with a number at or below this value
	// before yielding. Only meaningful with ascending creation order; it lets
	// a restarted sync re-fetch a page without re-processing its issues.
	SinceNumber int
}

// Cursor is a pull-based pagination cursor over an issue listing. Callers
// drain it with repeated Next calls; it carries the advisory total estimate
// from the first page.
type Cursor struct {
	lister *Lister
	opts   StreamOptions

	page      int
	pagesDone int
	estimated int
	done      bool
}

// Stream starts a paginated listing and returns a cursor over its pages.
func (l *Lister) Stream(opts StreamOptions) *Cursor {
	if opts.State == "" {
		opts.State = "all"
	}
	return &Cursor{lister: l, opts: opts, page: 1}
}

// Next fetches the next page. It returns ok=false once the listing is
// drained or the configured page cap is reached. Pull requests are filtered
// out, so a returned page may hold fewer than perPage issues even when more
// pages follow.
func (c *Cursor) Next(ctx context.Context) (Page, bool, error) {
	if c.done {
		return Page{}, false, nil
	}
	if c.lister.maxPages > 0 && c.pagesDone >= c.lister.maxPages {
		c.done = true
		return Page{}, false, nil
	}

	issues, resp, err := c.lister.fetchPage(ctx, c.opts, c.page)
	if err != nil {
		c.done = true
		return Page{}, false, pageError(c.page, err)
	}

	// The total estimate comes from the first page's Link header only; it is
	// advisory and intentionally not recomputed as pages shift underneath us.
	if c.page == 1 {
		c.estimated = estimateTotal(resp, c.lister.perPage, len(issues))
	}

	page := Page{Number: c.page, EstimatedTotal: c.estimated}
	for _, issue := range issues {
		if c.opts.SinceNumber > 0 && issue.Number <= c.opts.SinceNumber {
			continue
		}
		page.Issues = append(page.Issues, issue)
	}

	c.pagesDone++
	if resp.NextPage == 0 {
		c.done = true
	} else {
		c.page = resp.NextPage
	}

	return page, true, nil
}

// EstimatedTotal returns the advisory issue count derived from the first
// page, or 0 before any page was fetched.
func (c *Cursor) EstimatedTotal() int { return c.estimated }

// ListUpdatedSince returns every issue updated at or after since, ascending
// by update time. Used for the "changed" half of an incremental sync.
func (l *Lister) ListUpdatedSince(ctx context.Context, since time.Time) ([]Issue, error) {
	cursor := l.Stream(StreamOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "asc",
		Since:     since,
	})
	return drain(ctx, cursor)
}

// ListCreatedAfter returns issues whose number is strictly greater than n.
// Issue numbers increase with creation time, so it walks the listing newest
// first and stops at the first page that falls at or below n.
func (l *Lister) ListCreatedAfter(ctx context.Context, n int) ([]Issue, error) {
	cursor := l.Stream(StreamOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
	})

	var out []Issue
	for {
		page, ok, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}

		exhausted := false
		for _, issue := range page.Issues {
			if issue.Number <= n {
				exhausted = true
				continue
			}
			out = append(out, issue)
		}
		if exhausted {
			return out, nil
		}
	}
}

// drain consumes a cursor to completion.
func drain(ctx context.Context, cursor *Cursor) ([]Issue, error) {
	var out []Issue
	for {
		page, ok, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, page.Issues...)
	}
}

// fetchPage performs one ListByRepo call under the retry profile and
// converts the result, dropping pull requests (the listing endpoint
// conflates them with issues).
func (l *Lister) fetchPage(ctx context.Context, opts StreamOptions, page int) ([]Issue, *gogithub.Response, error) {
	ghOpts := &gogithub.IssueListByRepoOptions{
		State:     opts.State,
		Sort:      opts.Sort,
		Direction: opts.Direction,
		ListOptions: gogithub.ListOptions{
			PerPage: l.perPage,
			Page:    page,
		},
	}
	if !opts.Since.IsZero() {
		ghOpts.Since = opts.Since
	}

	type result struct {
		issues []*gogithub.Issue
		resp   *gogithub.Response
	}

	res, err := retry.DoValue(ctx, l.logger, "github.list-issues", l.retryCfg, func() (result, error) {
		issues, resp, err := l.client.Issues.ListByRepo(ctx, l.owner, l.repo, ghOpts)
		if err != nil {
			return result{}, classifyError(resp, err)
		}
		return result{issues: issues, resp: resp}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	var out []Issue
	for _, gh := range res.issues {
		if gh.PullRequestLinks != nil {
			continue
		}
		out = append(out, convertIssue(gh))
	}
	return out, res.resp, nil
}

// convertIssue converts a go-github Issue to our internal Issue type.
func convertIssue(gh *gogithub.Issue) Issue {
	issue := Issue{
		Number:   gh.GetNumber(),
		Title:    gh.GetTitle(),
		Body:     gh.GetBody(),
		State:    gh.GetState(),
		Comments: gh.GetComments(),
	}

	for _, label := range gh.Labels {
		issue.Labels = append(issue.Labels, label.GetName())
	}

	if gh.Milestone != nil {
		issue.Milestone = gh.Milestone.GetTitle()
	}
	if gh.Reactions != nil {
		issue.Reactions = gh.Reactions.GetTotalCount()
	}
	if gh.CreatedAt != nil {
		issue.CreatedAt = gh.CreatedAt.Time
	}
	if gh.UpdatedAt != nil {
		issue.UpdatedAt = gh.UpdatedAt.Time
	}
	if gh.ClosedAt != nil {
		t := gh.ClosedAt.Time
		issue.ClosedAt = &t
	}

	return issue
}
