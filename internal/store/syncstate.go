package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncState is the per-repository checkpoint: the timestamp watermark for
// incremental syncs and the highest issue number seen, which doubles as the
// full-sync resume point.
type SyncState struct {
	Repo            string
	LastSyncedAt    *time.Time
	LastIssueNumber int
}

// GetSyncState returns the checkpoint for a repository, or nil when the
// repository has never been synced.
func (d *DB) GetSyncState(repo string) (*SyncState, error) {
	var state SyncState
	var lastSynced sql.NullString

	err := d.db.QueryRow(
		`SELECT repo, last_synced_at, last_issue_number FROM sync_state WHERE repo = ?`,
		repo,
	).Scan(&state.Repo, &lastSynced, &state.LastIssueNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting sync state: %w", err)
	}

	if lastSynced.Valid {
		t, err := time.Parse(time.RFC3339, lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_synced_at: %w", err)
		}
		state.LastSyncedAt = &t
	}

	return &state, nil
}

// SetSyncState upserts the checkpoint row. Callers only ever advance the
// issue-number watermark, so writes are idempotent and monotone by
// convention.
func (d *DB) SetSyncState(state *SyncState) error {
	var lastSynced any
	if state.LastSyncedAt != nil {
		lastSynced = state.LastSyncedAt.UTC().Format(time.RFC3339)
	}

	_, err := d.db.Exec(`
		INSERT INTO sync_state (repo, last_synced_at, last_issue_number)
		VALUES (?, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			last_issue_number = excluded.last_issue_number`,
		state.Repo, lastSynced, state.LastIssueNumber,
	)
	if err != nil {
		return fmt.Errorf("setting sync state: %w", err)
	}
	return nil
}
