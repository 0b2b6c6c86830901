package store

import (
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testIssue(number int) *Issue {
	return &Issue{
		Repo:      "octocat/hello-world",
		Number:    number,
		Title:     "Crash on startup",
		Body:      "The app crashes immediately",
		State:     "open",
		Labels:    []string{"bug", "Product-Desktop"},
		CreatedAt: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 12, 9, 30, 0, 0, time.UTC),
	}
}

func TestMigration(t *testing.T) {
	db := setupTestDB(t)

	var version int
	err := db.Conn().QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected user_version 1, got %d", version)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("title", "body", []string{"b", "a"}, "v1.0", "1.0")
	h2 := ContentHash("title", "body", []string{"a", "b"}, "v1.0", "1.0")
	if h1 != h2 {
		t.Error("label order should not change the content hash")
	}

	h3 := ContentHash("title", "body changed", []string{"a", "b"}, "v1.0", "1.0")
	if h1 == h3 {
		t.Error("body change should change the content hash")
	}

	// Field boundaries must not collapse: ("ab", "c") != ("a", "bc").
	h4 := ContentHash("ab", "c", nil, "", "")
	h5 := ContentHash("a", "bc", nil, "", "")
	if h4 == h5 {
		t.Error("expected distinct hashes for shifted field boundaries")
	}
}

func TestUpsertIssueNewNeedsEmbedding(t *testing.T) {
	db := setupTestDB(t)

	res, err := db.UpsertIssue(testIssue(1))
	if err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}
	if !res.NeedsEmbedding {
		t.Error("new issue should need embedding")
	}
	if res.ContentHash == "" {
		t.Error("expected non-empty content hash")
	}
}

func TestUpsertIssueUnchangedKeepsEmbedding(t *testing.T) {
	db := setupTestDB(t)

	issue := testIssue(1)
	if _, err := db.UpsertIssue(issue); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}
	if err := db.SetIssueEmbedding(issue.Repo, 1, "[0.1,0.2]", "test-model", "hash1"); err != nil {
		t.Fatalf("SetIssueEmbedding failed: %v", err)
	}

	// Same content, new comment count: metadata changes alone must not
	// invalidate the embedding.
	issue.Comments = 7
	res, err := db.UpsertIssue(issue)
	if err != nil {
		t.Fatalf("second UpsertIssue failed: %v", err)
	}
	if res.NeedsEmbedding {
		t.Error("unchanged content should keep its embedding")
	}

	got, err := db.GetIssue(issue.Repo, 1)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Embedding != "[0.1,0.2]" {
		t.Errorf("expected embedding preserved, got %q", got.Embedding)
	}
	if got.Comments != 7 {
		t.Errorf("expected comments updated to 7, got %d", got.Comments)
	}
}

func TestUpsertIssueChangedInvalidatesEmbedding(t *testing.T) {
	db := setupTestDB(t)

	issue := testIssue(1)
	if _, err := db.UpsertIssue(issue); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}
	if err := db.SetIssueEmbedding(issue.Repo, 1, "[0.1,0.2]", "test-model", "hash1"); err != nil {
		t.Fatalf("SetIssueEmbedding failed: %v", err)
	}

	issue.Body = "The app crashes immediately, but only on Tuesdays"
	res, err := db.UpsertIssue(issue)
	if err != nil {
		t.Fatalf("second UpsertIssue failed: %v", err)
	}
	if !res.NeedsEmbedding {
		t.Error("changed content should need re-embedding")
	}

	got, err := db.GetIssue(issue.Repo, 1)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Embedding != "" || got.EmbeddingModel != "" || got.EmbeddingHash != "" {
		t.Errorf("expected embedding triple nulled, got %q/%q/%q",
			got.Embedding, got.EmbeddingModel, got.EmbeddingHash)
	}
}

func TestSetIssueEmbeddingMissingIssue(t *testing.T) {
	db := setupTestDB(t)

	err := db.SetIssueEmbedding("octocat/hello-world", 99, "[1]", "m", "h")
	if err == nil {
		t.Error("expected error setting embedding on missing issue")
	}
}

func TestFindReusableEmbedding(t *testing.T) {
	db := setupTestDB(t)

	a := testIssue(1)
	b := testIssue(2)
	for _, issue := range []*Issue{a, b} {
		if _, err := db.UpsertIssue(issue); err != nil {
			t.Fatalf("UpsertIssue failed: %v", err)
		}
	}
	if err := db.SetIssueEmbedding(a.Repo, 1, "[0.5,0.5]", "test-model", "samehash"); err != nil {
		t.Fatalf("SetIssueEmbedding failed: %v", err)
	}

	literal, found, err := db.FindReusableEmbedding(a.Repo, 2, "test-model", "samehash")
	if err != nil {
		t.Fatalf("FindReusableEmbedding failed: %v", err)
	}
	if !found || literal != "[0.5,0.5]" {
		t.Errorf("expected reusable embedding [0.5,0.5], got found=%v literal=%q", found, literal)
	}

	// Different model never matches.
	_, found, err = db.FindReusableEmbedding(a.Repo, 2, "other-model", "samehash")
	if err != nil {
		t.Fatalf("FindReusableEmbedding failed: %v", err)
	}
	if found {
		t.Error("embedding from a different model should not be reusable")
	}

	// The issue that owns the embedding is excluded.
	_, found, err = db.FindReusableEmbedding(a.Repo, 1, "test-model", "samehash")
	if err != nil {
		t.Fatalf("FindReusableEmbedding failed: %v", err)
	}
	if found {
		t.Error("an issue should not reuse its own embedding row")
	}
}

func TestIssueProducts(t *testing.T) {
	db := setupTestDB(t)

	issue := testIssue(1)
	if _, err := db.UpsertIssue(issue); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}

	if err := db.ReplaceIssueProducts(issue.Repo, 1, []string{"Desktop", "CLI"}); err != nil {
		t.Fatalf("ReplaceIssueProducts failed: %v", err)
	}

	products, err := db.GetIssueProducts(issue.Repo, 1)
	if err != nil {
		t.Fatalf("GetIssueProducts failed: %v", err)
	}
	if len(products) != 2 || products[0] != "CLI" || products[1] != "Desktop" {
		t.Errorf("unexpected products: %v", products)
	}

	// Replacement drops labels no longer present.
	if err := db.ReplaceIssueProducts(issue.Repo, 1, []string{"Desktop"}); err != nil {
		t.Fatalf("ReplaceIssueProducts failed: %v", err)
	}
	products, err = db.GetIssueProducts(issue.Repo, 1)
	if err != nil {
		t.Fatalf("GetIssueProducts failed: %v", err)
	}
	if len(products) != 1 || products[0] != "Desktop" {
		t.Errorf("unexpected products after replace: %v", products)
	}
}

func TestSyncState(t *testing.T) {
	db := setupTestDB(t)

	state, err := db.GetSyncState("octocat/hello-world")
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for unseen repo, got %+v", state)
	}

	// A mid-run checkpoint has a number but no timestamp.
	if err := db.SetSyncState(&SyncState{Repo: "octocat/hello-world", LastIssueNumber: 42}); err != nil {
		t.Fatalf("SetSyncState failed: %v", err)
	}
	state, err = db.GetSyncState("octocat/hello-world")
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state == nil || state.LastIssueNumber != 42 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.LastSyncedAt != nil {
		t.Errorf("expected nil LastSyncedAt, got %v", state.LastSyncedAt)
	}

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	if err := db.SetSyncState(&SyncState{Repo: "octocat/hello-world", LastSyncedAt: &now, LastIssueNumber: 50}); err != nil {
		t.Fatalf("SetSyncState failed: %v", err)
	}
	state, err = db.GetSyncState("octocat/hello-world")
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state.LastIssueNumber != 50 {
		t.Errorf("expected watermark 50, got %d", state.LastIssueNumber)
	}
	if state.LastSyncedAt == nil || !state.LastSyncedAt.Equal(now) {
		t.Errorf("expected LastSyncedAt %v, got %v", now, state.LastSyncedAt)
	}
}

func TestReleaseState(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetReleaseState("octocat/hello-world")
	if err != nil {
		t.Fatalf("GetReleaseState failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil release state, got %+v", got)
	}

	published := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	state := &ReleaseState{
		Repo:        "octocat/hello-world",
		Tag:         "v2.3.0",
		Name:        "Winter release",
		URL:         "https://github.com/octocat/hello-world/releases/tag/v2.3.0",
		PublishedAt: &published,
	}
	if err := db.UpsertReleaseState(state); err != nil {
		t.Fatalf("UpsertReleaseState failed: %v", err)
	}

	got, err = db.GetReleaseState("octocat/hello-world")
	if err != nil {
		t.Fatalf("GetReleaseState failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected release state")
	}
	if got.Tag != "v2.3.0" {
		t.Errorf("expected tag v2.3.0, got %q", got.Tag)
	}
	if got.Version != "2.3.0" {
		t.Errorf("expected version 2.3.0 (leading v stripped), got %q", got.Version)
	}
}
