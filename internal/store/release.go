package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ReleaseState records a repository's latest published release for the
// dashboard's version display.
type ReleaseState struct {
	Repo        string
	Tag         string
	Name        string
	URL         string
	Version     string
	PublishedAt *time.Time
	UpdatedAt   time.Time
}

// UpsertReleaseState stores the latest-release snapshot for a repository.
// The version field is the tag with any leading "v" stripped.
func (d *DB) UpsertReleaseState(state *ReleaseState) error {
	if state.Version == "" {
		state.Version = strings.TrimPrefix(state.Tag, "v")
	}

	var publishedAt any
	if state.PublishedAt != nil {
		publishedAt = state.PublishedAt.UTC().Format(time.RFC3339)
	}

	_, err := d.db.Exec(`
		INSERT INTO release_state (repo, tag, name, url, version, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			tag = excluded.tag,
			name = excluded.name,
			url = excluded.url,
			version = excluded.version,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`,
		state.Repo, state.Tag, state.Name, state.URL, state.Version,
		publishedAt, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting release state: %w", err)
	}
	return nil
}

// GetReleaseState returns the stored release snapshot for a repository, or
// nil when none has been recorded.
func (d *DB) GetReleaseState(repo string) (*ReleaseState, error) {
	var state ReleaseState
	var tag, name, url, version, publishedAt sql.NullString
	var updatedAt string

	err := d.db.QueryRow(`
		SELECT repo, tag, name, url, version, published_at, updated_at
		FROM release_state WHERE repo = ?`,
		repo,
	).Scan(&state.Repo, &tag, &name, &url, &version, &publishedAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting release state: %w", err)
	}

	state.Tag = tag.String
	state.Name = name.String
	state.URL = url.String
	state.Version = version.String
	if publishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, publishedAt.String)
		state.PublishedAt = &t
	}
	state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &state, nil
}
