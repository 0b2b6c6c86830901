package github

import "time"

// Issue is the internal view of a GitHub issue, carrying only the fields the
// sync pipeline stores and scores.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	Milestone string
	Comments  int
	Reactions int
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Page is one fetched page of issues. EstimatedTotal is derived from the
// first response's pagination metadata and is advisory only; it is not
// recomputed on later pages.
type Page struct {
	Issues         []Issue
	Number         int
	EstimatedTotal int
}

// Release describes a repository's latest published release.
type Release struct {
	TagName     string
	Name        string
	URL         string
	PublishedAt time.Time
}
