// Package sync drives a repository's issue ingestion: list from GitHub,
// upsert into the store, and embed whatever changed, checkpointing as it
// goes so an interrupted run resumes where it left off.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mchan/issuelens/internal/embed"
	"github.com/mchan/issuelens/internal/github"
	"github.com/mchan/issuelens/internal/retry"
	"github.com/mchan/issuelens/internal/store"
	"github.com/mchan/issuelens/internal/vector"
)

// pageWorkers bounds the per-page issue-processing parallelism. Issues in a
// page are independent; pages are sequential because the checkpoint written
// after each page must cover only fully-processed pages.
const pageWorkers = 8

// Options controls one sync run.
type Options struct {
	// FullSync forces a full listing even when a checkpoint exists.
	FullSync bool
}

// Result summarizes a completed sync run.
type Result struct {
	Mode           string
	Processed      int
	Embedded       int
	Reused         int
	EmbedFailed    int
	Pages          int
	EstimatedTotal int
	MaxIssueNumber int
}

// Syncer ingests one repository's issues.
type Syncer struct {
	repo       string
	lister     *github.Lister
	store      store.IssueStore
	embedder   embed.Embedder
	embedRetry retry.Config
	logger     *slog.Logger

	mu       sync.Mutex
	cache    *embed.Cache
	result   *Result
	inflight map[string]*sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithRetryConfig overrides the backoff schedule for embedding calls.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Syncer) { s.embedRetry = cfg }
}

// New creates a Syncer for one repository.
func New(repo string, lister *github.Lister, st store.IssueStore, embedder embed.Embedder, logger *slog.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		repo:       repo,
		lister:     lister,
		store:      st,
		embedder:   embedder,
		embedRetry: retry.Default,
		logger:     logger.With("repo", repo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one sync: a best-effort latest-release refresh, a full or
// incremental ingest, and a final checkpoint. Per-issue embedding failures
// are logged and skipped; listing and storage failures abort the run and
// leave the checkpoint at its last persisted value.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	// Fresh run-scoped state; Syncer is reusable across runs.
	s.cache = embed.NewCache()
	s.result = &Result{}
	s.inflight = make(map[string]*sync.Mutex)

	s.refreshRelease(ctx)

	state, err := s.store.GetSyncState(s.repo)
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}

	// A checkpoint without a timestamp belongs to a full run that never
	// finished; resume it rather than syncing incrementally from nothing.
	full := opts.FullSync || state == nil || state.LastSyncedAt == nil

	if full {
		s.result.Mode = "full"
		err = s.runFull(ctx, state)
	} else {
		s.result.Mode = "incremental"
		err = s.runIncremental(ctx, state)
	}
	if err != nil {
		return nil, err
	}

	// The timestamp watermark is "now", not the max updated_at seen:
	// incremental runs legitimately revisit older issues.
	now := time.Now().UTC()
	final := &store.SyncState{
		Repo:            s.repo,
		LastSyncedAt:    &now,
		LastIssueNumber: s.watermark(state),
	}
	if err := s.store.SetSyncState(final); err != nil {
		return nil, fmt.Errorf("writing final sync state: %w", err)
	}

	s.logger.Info("sync complete",
		"mode", s.result.Mode,
		"processed", s.result.Processed,
		"embedded", s.result.Embedded,
		"reused", s.result.Reused,
		"embed_failed", s.result.EmbedFailed,
		"duration", time.Since(start),
	)
	return s.result, nil
}

// refreshRelease records the repository's latest release. Failure here never
// fails a sync; the release row feeds a dashboard, not the pipeline.
func (s *Syncer) refreshRelease(ctx context.Context) {
	rel, ok, err := s.lister.LatestRelease(ctx)
	if err != nil {
		s.logger.Warn("latest release lookup failed", "error", err)
		return
	}
	if !ok {
		s.logger.Debug("repository has no releases")
		return
	}

	state := &store.ReleaseState{
		Repo: s.repo,
		Tag:  rel.TagName,
		Name: rel.Name,
		URL:  rel.URL,
	}
	if !rel.PublishedAt.IsZero() {
		t := rel.PublishedAt
		state.PublishedAt = &t
	}
	if err := s.store.UpsertReleaseState(state); err != nil {
		s.logger.Warn("storing release state failed", "error", err)
	}
}

// runFull streams every issue oldest-first, resuming just past the
// checkpointed issue number. The checkpoint advances after each fully
// processed page, so a crash loses at most one in-flight page.
func (s *Syncer) runFull(ctx context.Context, state *store.SyncState) error {
	sinceNumber := 0
	var keepTimestamp *time.Time
	if state != nil {
		sinceNumber = state.LastIssueNumber
		keepTimestamp = state.LastSyncedAt
	}

	cursor := s.lister.Stream(github.StreamOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		SinceNumber: sinceNumber,
	})

	for {
		page, ok, err := cursor.Next(ctx)
		if err != nil {
			return fmt.Errorf("streaming issues: %w", err)
		}
		if !ok {
			break
		}

		s.mu.Lock()
		s.result.Pages++
		s.result.EstimatedTotal = page.EstimatedTotal
		s.mu.Unlock()

		if err := s.processBatch(ctx, page.Issues); err != nil {
			return err
		}

		// Intermediate checkpoints keep the previous timestamp: the run
		// isn't complete, only its prefix is.
		checkpoint := &store.SyncState{
			Repo:            s.repo,
			LastSyncedAt:    keepTimestamp,
			LastIssueNumber: s.watermark(state),
		}
		if err := s.store.SetSyncState(checkpoint); err != nil {
			return fmt.Errorf("checkpointing after page %d: %w", page.Number, err)
		}

		s.logger.Info("page processed",
			"page", page.Number,
			"issues", len(page.Issues),
			"estimated_total", page.EstimatedTotal,
			"watermark", checkpoint.LastIssueNumber,
		)
	}

	return nil
}

// runIncremental merges the "updated since checkpoint" and "created after
// checkpoint number" issue sets and processes them once, number-sorted.
func (s *Syncer) runIncremental(ctx context.Context, state *store.SyncState) error {
	updated, err := s.lister.ListUpdatedSince(ctx, *state.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("listing updated issues: %w", err)
	}

	created, err := s.lister.ListCreatedAfter(ctx, state.LastIssueNumber)
	if err != nil {
		return fmt.Errorf("listing new issues: %w", err)
	}

	// Later entry wins on conflict.
	merged := make(map[int]github.Issue, len(updated)+len(created))
	for _, issue := range updated {
		merged[issue.Number] = issue
	}
	for _, issue := range created {
		merged[issue.Number] = issue
	}

	issues := make([]github.Issue, 0, len(merged))
	for _, issue := range merged {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })

	s.logger.Info("incremental sync",
		"updated", len(updated),
		"created", len(created),
		"merged", len(issues),
	)

	return s.processBatch(ctx, issues)
}

// processBatch handles one page's issues with bounded parallelism. Only
// fatal errors (store, provider construction) propagate; per-issue embedding
// failures are logged inside processIssue.
func (s *Syncer) processBatch(ctx context.Context, issues []github.Issue) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pageWorkers)

	for _, issue := range issues {
		issue := issue
		g.Go(func() error {
			return s.processIssue(ctx, issue)
		})
	}
	return g.Wait()
}

// processIssue upserts one issue with its product labels and, when its
// content changed, re-embeds it, reusing existing vectors where the input
// is byte-identical.
func (s *Syncer) processIssue(ctx context.Context, issue github.Issue) error {
	targetVersion := TargetVersion(issue)
	products := ProductLabels(issue)

	rec := &store.Issue{
		Repo:          s.repo,
		Number:        issue.Number,
		Title:         issue.Title,
		Body:          issue.Body,
		State:         issue.State,
		Labels:        issue.Labels,
		Milestone:     issue.Milestone,
		TargetVersion: targetVersion,
		Comments:      issue.Comments,
		Reactions:     issue.Reactions,
		CreatedAt:     issue.CreatedAt,
		UpdatedAt:     issue.UpdatedAt,
		ClosedAt:      issue.ClosedAt,
	}

	res, err := s.store.UpsertIssue(rec)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceIssueProducts(s.repo, issue.Number, products); err != nil {
		return err
	}

	s.mu.Lock()
	s.result.Processed++
	if issue.Number > s.result.MaxIssueNumber {
		s.result.MaxIssueNumber = issue.Number
	}
	s.mu.Unlock()

	if !res.NeedsEmbedding {
		return nil
	}

	if err := s.embedIssue(ctx, issue); err != nil {
		// Recoverable: the issue stays un-embedded and the next sync pass
		// picks it up again.
		s.logger.Warn("embedding failed, leaving issue un-embedded",
			"issue", issue.Number, "error", err)
		s.mu.Lock()
		s.result.EmbedFailed++
		s.mu.Unlock()
	}
	return nil
}

// embedIssue resolves an issue's vector: run cache, then stored-embedding
// reuse, then the provider.
func (s *Syncer) embedIssue(ctx context.Context, issue github.Issue) error {
	text := embed.InputText(issue.Title, issue.Body)
	inputHash := embed.InputHash(text)
	model := s.embedder.Model()

	// Workers holding the same input hash queue up behind one lock, so the
	// first resolves the vector and the rest hit the run cache.
	lock := s.inflightLock(model + "\x00" + inputHash)
	lock.Lock()
	defer lock.Unlock()

	if vec, ok := s.cache.Get(model, inputHash); ok {
		if err := s.store.SetIssueEmbedding(s.repo, issue.Number, vector.Encode(vec), model, inputHash); err != nil {
			return err
		}
		s.mu.Lock()
		s.result.Reused++
		s.mu.Unlock()
		return nil
	}

	if literal, found, err := s.store.FindReusableEmbedding(s.repo, issue.Number, model, inputHash); err != nil {
		return err
	} else if found {
		if err := s.store.SetIssueEmbedding(s.repo, issue.Number, literal, model, inputHash); err != nil {
			return err
		}
		if vec, err := vector.Decode(literal); err == nil {
			s.cache.Put(model, inputHash, vec)
		}
		s.mu.Lock()
		s.result.Reused++
		s.mu.Unlock()
		return nil
	}

	vec, err := retry.DoValue(ctx, s.logger, "embed.issue", s.embedRetry, func() ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	})
	if err != nil {
		return err
	}

	if err := s.store.SetIssueEmbedding(s.repo, issue.Number, vector.Encode(vec), model, inputHash); err != nil {
		return err
	}
	s.cache.Put(model, inputHash, vec)

	s.mu.Lock()
	s.result.Embedded++
	s.mu.Unlock()
	return nil
}

// inflightLock returns the per-input lock for an embedding key, creating it
// on first use.
func (s *Syncer) inflightLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.inflight[key]
	if !ok {
		l = &sync.Mutex{}
		s.inflight[key] = l
	}
	return l
}

// watermark returns the issue-number checkpoint: the max of the previous
// checkpoint and the highest number processed this run.
func (s *Syncer) watermark(prev *store.SyncState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.result.MaxIssueNumber
	if prev != nil && prev.LastIssueNumber > w {
		w = prev.LastIssueNumber
	}
	return w
}
