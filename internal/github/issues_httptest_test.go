package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/mchan/issuelens/internal/retry"
)

// newTestClient points a go-github client at an httptest server.
func newTestClient(t *testing.T, srv *httptest.Server) *gogithub.Client {
	t.Helper()
	client := gogithub.NewClient(nil)
	baseURL, err := client.BaseURL.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing base URL: %v", err)
	}
	client.BaseURL = baseURL
	return client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeIssueJSON creates a JSON-compatible issue response.
func makeIssueJSON(number int, title, state string, updatedAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"number":     number,
		"title":      title,
		"body":       fmt.Sprintf("Body %d", number),
		"state":      state,
		"comments":   2,
		"updated_at": updatedAt.Format(time.RFC3339),
		"created_at": updatedAt.Add(-time.Hour).Format(time.RFC3339),
		"labels": []map[string]interface{}{
			{"name": "bug"},
		},
		"reactions": map[string]interface{}{
			"total_count": 3,
		},
	}
}

// makePullRequestJSON creates an issue payload carrying pull_request links,
// which the lister must drop.
func makePullRequestJSON(number int, updatedAt time.Time) map[string]interface{} {
	pr := makeIssueJSON(number, fmt.Sprintf("PR %d", number), "open", updatedAt)
	pr["pull_request"] = map[string]interface{}{
		"url": fmt.Sprintf("https://api.github.com/repos/o/r/pulls/%d", number),
	}
	return pr
}

func linkHeader(srvURL string, next, last int) string {
	h := ""
	if next > 0 {
		h = fmt.Sprintf("<%s/repos/testowner/testrepo/issues?page=%d>; rel=\"next\"", srvURL, next)
	}
	if last > 0 {
		if h != "" {
			h += ", "
		}
		h += fmt.Sprintf("<%s/repos/testowner/testrepo/issues?page=%d>; rel=\"last\"", srvURL, last)
	}
	return h
}

func TestStreamPagination(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		var issues []map[string]interface{}
		switch {
		case page == "" || page == "1":
			issues = []map[string]interface{}{
				makeIssueJSON(1, "Issue 1", "open", now.Add(-3*time.Minute)),
				makePullRequestJSON(2, now.Add(-2*time.Minute)),
			}
			w.Header().Set("Link", linkHeader(srv.URL, 2, 3))
		case page == "2":
			issues = []map[string]interface{}{
				makeIssueJSON(3, "Issue 3", "open", now.Add(-time.Minute)),
			}
			w.Header().Set("Link", linkHeader(srv.URL, 3, 3))
		case page == "3":
			issues = []map[string]interface{}{
				makeIssueJSON(4, "Issue 4", "closed", now),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issues)
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger(), WithPerPage(2))
	cursor := lister.Stream(StreamOptions{State: "all", Sort: "created", Direction: "asc"})

	var pages []Page
	for {
		page, ok, err := cursor.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		pages = append(pages, page)
	}

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}

	// Page 1 holds one issue: the pull request was filtered out.
	if len(pages[0].Issues) != 1 || pages[0].Issues[0].Number != 1 {
		t.Errorf("unexpected page 1 issues: %+v", pages[0].Issues)
	}

	// Estimate comes from the first page's last-page link: 3 pages * 2 per page.
	for i, page := range pages {
		if page.EstimatedTotal != 6 {
			t.Errorf("page %d: expected estimated total 6, got %d", i+1, page.EstimatedTotal)
		}
	}

	if pages[2].Issues[0].State != "closed" {
		t.Errorf("expected closed state preserved, got %q", pages[2].Issues[0].State)
	}
	if pages[2].Issues[0].Reactions != 3 {
		t.Errorf("expected reactions 3, got %d", pages[2].Issues[0].Reactions)
	}
}

func TestStreamSinceNumberFilter(t *testing.T) {
	now := time.Now().UTC()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		issues := []map[string]interface{}{
			makeIssueJSON(5, "Issue 5", "open", now),
			makeIssueJSON(6, "Issue 6", "open", now),
			makeIssueJSON(7, "Issue 7", "open", now),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issues)
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger())
	cursor := lister.Stream(StreamOptions{Sort: "created", Direction: "asc", SinceNumber: 6})

	page, ok, err := cursor.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next failed: ok=%v err=%v", ok, err)
	}
	if len(page.Issues) != 1 || page.Issues[0].Number != 7 {
		t.Errorf("expected only issue 7 past the watermark, got %+v", page.Issues)
	}
}

func TestStreamMaxPages(t *testing.T) {
	now := time.Now().UTC()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var requests atomic.Int32
	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		issues := []map[string]interface{}{
			makeIssueJSON(int(requests.Load()), "Issue", "open", now),
		}
		// Always advertise a next page; the cap must stop the walk.
		w.Header().Set("Link", linkHeader(srv.URL, int(requests.Load())+1, 0))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issues)
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger(), WithMaxPages(2))
	cursor := lister.Stream(StreamOptions{})

	count := 0
	for {
		_, ok, err := cursor.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 pages under the cap, got %d", count)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
}

func TestListUpdatedSincePassesSince(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	since := now.Add(-time.Hour)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var gotSince, gotSort string
	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotSort = r.URL.Query().Get("sort")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			makeIssueJSON(9, "Updated issue", "open", now),
		})
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger())
	issues, err := lister.ListUpdatedSince(context.Background(), since)
	if err != nil {
		t.Fatalf("ListUpdatedSince failed: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 9 {
		t.Errorf("unexpected issues: %+v", issues)
	}
	if gotSince == "" {
		t.Error("expected since query parameter")
	}
	if gotSort != "updated" {
		t.Errorf("expected sort=updated, got %q", gotSort)
	}
}

func TestListCreatedAfterStopsAtWatermark(t *testing.T) {
	now := time.Now().UTC()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var requests atomic.Int32
	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page := r.URL.Query().Get("page")

		var issues []map[string]interface{}
		switch {
		case page == "" || page == "1":
			// Newest first.
			issues = []map[string]interface{}{
				makeIssueJSON(12, "Issue 12", "open", now),
				makeIssueJSON(11, "Issue 11", "open", now),
			}
			w.Header().Set("Link", linkHeader(srv.URL, 2, 0))
		case page == "2":
			issues = []map[string]interface{}{
				makeIssueJSON(10, "Issue 10", "open", now),
				makeIssueJSON(9, "Issue 9", "open", now),
			}
			w.Header().Set("Link", linkHeader(srv.URL, 3, 0))
		default:
			t.Errorf("unexpected request for page %s", page)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issues)
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger())
	issues, err := lister.ListCreatedAfter(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListCreatedAfter failed: %v", err)
	}

	if len(issues) != 2 {
		t.Fatalf("expected issues 12 and 11, got %+v", issues)
	}
	if issues[0].Number != 12 || issues[1].Number != 11 {
		t.Errorf("unexpected issues: %+v", issues)
	}
	// The walk must stop once a page reaches the watermark.
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
}

func TestLatestRelease(t *testing.T) {
	published := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/testowner/testrepo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tag_name":     "v1.2.0",
			"name":         "Release 1.2.0",
			"html_url":     "https://github.com/testowner/testrepo/releases/tag/v1.2.0",
			"published_at": published.Format(time.RFC3339),
		})
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger())
	rel, ok, err := lister.LatestRelease(context.Background())
	if err != nil {
		t.Fatalf("LatestRelease failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a release")
	}
	if rel.TagName != "v1.2.0" {
		t.Errorf("expected tag v1.2.0, got %q", rel.TagName)
	}
	if !rel.PublishedAt.Equal(published) {
		t.Errorf("expected published at %v, got %v", published, rel.PublishedAt)
	}
}

func TestLatestReleaseNotFound(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/testowner/testrepo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	})

	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger())
	_, ok, err := lister.LatestRelease(context.Background())
	if err != nil {
		t.Fatalf("expected 404 to be absorbed, got error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a repository without releases")
	}
}

func TestStreamRetriesServerErrors(t *testing.T) {
	now := time.Now().UTC()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var requests atomic.Int32
	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"message": "bad gateway"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			makeIssueJSON(1, "Issue 1", "open", now),
		})
	})

	fastRetry := retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	lister := NewLister(newTestClient(t, srv), "testowner", "testrepo", testLogger(), WithRetryConfig(fastRetry))

	cursor := lister.Stream(StreamOptions{})
	page, ok, err := cursor.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !ok || len(page.Issues) != 1 {
		t.Fatalf("expected one issue after retry, got ok=%v issues=%+v", ok, page.Issues)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests (one retry), got %d", requests.Load())
	}
}
