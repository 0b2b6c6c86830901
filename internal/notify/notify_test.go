package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func syncReport() RunReport {
	return RunReport{
		Repo:      "octocat/hello-world",
		Kind:      "sync",
		Mode:      "incremental",
		Processed: 12,
		Embedded:  4,
		Reused:    2,
	}
}

func TestSummary(t *testing.T) {
	s := Summary(syncReport())
	if !strings.Contains(s, "12 issues processed") || !strings.Contains(s, "incremental") {
		t.Errorf("unexpected sync summary: %q", s)
	}
	if strings.Contains(s, "failures") {
		t.Errorf("summary should omit failures when zero: %q", s)
	}

	failed := syncReport()
	failed.EmbedFailed = 3
	if !strings.Contains(Summary(failed), "3 embedding failures") {
		t.Errorf("expected failure count in summary: %q", Summary(failed))
	}

	recluster := RunReport{
		Repo: "octocat/hello-world", Kind: "recluster",
		Product: "Desktop", ClustersCreated: 5, IssuesMapped: 40,
	}
	s = Summary(recluster)
	if !strings.Contains(s, "5 clusters") || !strings.Contains(s, "40 issues mapped") {
		t.Errorf("unexpected recluster summary: %q", s)
	}
}

func TestBuildSlackPayload(t *testing.T) {
	payload := BuildSlackPayload(syncReport())

	if len(payload.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(payload.Blocks))
	}
	if payload.Blocks[0].Type != "header" {
		t.Errorf("expected header block first, got %q", payload.Blocks[0].Type)
	}
	if !strings.Contains(payload.Blocks[1].Text.Text, "octocat/hello-world") {
		t.Errorf("expected repo in payload, got %q", payload.Blocks[1].Text.Text)
	}
}

func TestSlackNotifierPosts(t *testing.T) {
	var received slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL)
	if err := n.Notify(context.Background(), syncReport()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(received.Blocks) == 0 {
		t.Error("expected blocks in posted payload")
	}
}

func TestDiscordNotifierPosts(t *testing.T) {
	var received discordPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
	}))
	defer server.Close()

	n := NewDiscordNotifier(server.URL)
	if err := n.Notify(context.Background(), syncReport()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(received.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(received.Embeds))
	}
	if received.Embeds[0].Title != Title(syncReport()) {
		t.Errorf("unexpected embed title %q", received.Embeds[0].Title)
	}
}

func TestNotifierErrorOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL)
	if err := n.Notify(context.Background(), syncReport()); err == nil {
		t.Error("expected error on 400 response")
	}
}

func TestNewNotifier(t *testing.T) {
	n, err := NewNotifier("", "")
	if err != nil {
		t.Fatalf("NewNotifier failed: %v", err)
	}
	if n != nil {
		t.Error("expected nil notifier when nothing is configured")
	}

	n, err = NewNotifier("https://hooks.example.test/a", "")
	if err != nil {
		t.Fatalf("NewNotifier failed: %v", err)
	}
	if _, ok := n.(*SlackNotifier); !ok {
		t.Errorf("expected SlackNotifier, got %T", n)
	}

	n, err = NewNotifier("https://hooks.example.test/a", "https://hooks.example.test/b")
	if err != nil {
		t.Fatalf("NewNotifier failed: %v", err)
	}
	if _, ok := n.(*MultiNotifier); !ok {
		t.Errorf("expected MultiNotifier, got %T", n)
	}
}
