package config

import (
	"strings"
	"testing"
	"time"
)

const validConfig = `
github:
  auth: token
  token: ghp_testtoken
embedding:
  type: openai
  model: text-embedding-3-small
  api_key: sk-test
clustering:
  similarity_threshold: 0.9
  top_k: 3
sync:
  interval: 15m
repos:
  - name: octocat/hello-world
  - name: octocat/tuned
    similarity_threshold: 0.95
    top_k: 10
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.GitHub.Token != "ghp_testtoken" {
		t.Errorf("unexpected token %q", cfg.GitHub.Token)
	}
	if cfg.Clustering.SimilarityThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", cfg.Clustering.SimilarityThreshold)
	}
	if len(cfg.Repos) != 2 {
		t.Fatalf("expected 2 repos, got %d", len(cfg.Repos))
	}

	interval, err := cfg.Sync.Interval()
	if err != nil {
		t.Fatalf("Interval failed: %v", err)
	}
	if interval != 15*time.Minute {
		t.Errorf("expected 15m interval, got %v", interval)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("github:\n  token: x\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.GitHub.Auth != "token" {
		t.Errorf("expected default auth token, got %q", cfg.GitHub.Auth)
	}
	if cfg.Embedding.Type != "openai" {
		t.Errorf("expected default embedding type openai, got %q", cfg.Embedding.Type)
	}
	if cfg.Clustering.SimilarityThreshold != 0.85 {
		t.Errorf("expected default threshold 0.85, got %v", cfg.Clustering.SimilarityThreshold)
	}
	if cfg.Clustering.TopK != 5 {
		t.Errorf("expected default top_k 5, got %d", cfg.Clustering.TopK)
	}
	if cfg.Store.Path == "" {
		t.Error("expected default store path")
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("TEST_GH_TOKEN", "ghp_fromenv")

	cfg, err := Parse([]byte("github:\n  token: ${TEST_GH_TOKEN}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.GitHub.Token != "ghp_fromenv" {
		t.Errorf("expected expanded token, got %q", cfg.GitHub.Token)
	}
}

func TestParseMissingEnvVar(t *testing.T) {
	_, err := Parse([]byte("github:\n  token: ${DEFINITELY_UNSET_VAR_12345}\n"))
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "DEFINITELY_UNSET_VAR_12345") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"threshold above 1", "clustering:\n  similarity_threshold: 1.5\n"},
		{"negative top_k", "clustering:\n  top_k: -1\n"},
		{"bad interval", "sync:\n  interval: sometimes\n"},
		{"bad auth", "github:\n  auth: password\n"},
		{"bad embedding type", "embedding:\n  type: psychic\n"},
		{"repo threshold above 1", "repos:\n  - name: a/b\n    similarity_threshold: 2.0\n"},
	}

	for _, tc := range cases {
		if _, err := Parse([]byte(tc.yaml)); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestPerRepoOverrides(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := cfg.ThresholdFor("octocat/hello-world"); got != 0.9 {
		t.Errorf("expected global threshold 0.9, got %v", got)
	}
	if got := cfg.ThresholdFor("octocat/tuned"); got != 0.95 {
		t.Errorf("expected override 0.95, got %v", got)
	}
	if got := cfg.TopKFor("octocat/tuned"); got != 10 {
		t.Errorf("expected override 10, got %d", got)
	}
	if got := cfg.TopKFor("unknown/repo"); got != 3 {
		t.Errorf("expected global top_k 3, got %d", got)
	}
}
