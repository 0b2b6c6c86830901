// Package cluster groups a bucket's open, embedded issues into clusters by
// streaming them through a threshold-based nearest-centroid assignment.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchan/issuelens/internal/store"
	"github.com/mchan/issuelens/internal/vector"
)

// Params identifies the bucket to rebuild and the assignment knobs recorded
// on each cluster it produces.
type Params struct {
	Repo          string
	Product       string
	TargetVersion string
	Threshold     float64
	TopK          int
}

// Result reports what a rebuild produced.
type Result struct {
	ClustersCreated int
	IssuesMapped    int
}

// Engine rebuilds issue clusters one bucket at a time.
type Engine struct {
	store  store.ClusterStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a clustering Engine.
func New(st store.ClusterStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger, now: time.Now}
}

// Recluster wipes and rebuilds the bucket's clusters. Issues are scanned in
// ascending number order and assigned sequentially: each assignment moves a
// centroid, so the loop must see centroids in a deterministic state. Runs
// are idempotent because the bucket starts empty every time.
func (e *Engine) Recluster(ctx context.Context, p Params) (*Result, error) {
	if p.Threshold < 0 || p.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1], got %v", p.Threshold)
	}
	if p.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", p.TopK)
	}
	if p.TargetVersion == "" {
		p.TargetVersion = store.NoTargetVersion
	}

	logger := e.logger.With("repo", p.Repo, "product", p.Product)
	start := e.now()

	if err := e.store.DeleteClusters(p.Repo, p.Product); err != nil {
		return nil, fmt.Errorf("wiping bucket: %w", err)
	}

	issues, err := e.store.ListOpenEmbeddedIssues(p.Repo, p.Product)
	if err != nil {
		return nil, fmt.Errorf("loading bucket issues: %w", err)
	}

	result := &Result{}
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.assign(issue, p, result); err != nil {
			return nil, fmt.Errorf("assigning issue #%d: %w", issue.Number, err)
		}
	}

	if err := e.recomputeRepresentatives(p.Repo, p.Product); err != nil {
		return nil, err
	}

	logger.Info("recluster complete",
		"issues", len(issues),
		"clusters", result.ClustersCreated,
		"mapped", result.IssuesMapped,
		"threshold", p.Threshold,
		"top_k", p.TopK,
		"duration", e.now().Sub(start),
	)
	return result, nil
}

// assign places one issue: into the most similar existing cluster when that
// similarity meets the threshold (inclusive), otherwise into a new
// singleton. Ties keep the first-encountered candidate.
func (e *Engine) assign(issue store.EmbeddedIssue, p Params, result *Result) error {
	neighbors, err := e.store.NearestClusters(p.Repo, p.Product, issue.Embedding, p.TopK)
	if err != nil {
		return err
	}

	pop := Popularity(issue.Comments, issue.Reactions, issue.UpdatedAt, e.now())

	if len(neighbors) > 0 && neighbors[0].Similarity >= p.Threshold {
		best := neighbors[0]
		centroid, err := vector.RunningMean(best.Cluster.Centroid, best.Cluster.Size, issue.Embedding)
		if err != nil {
			return err
		}
		err = e.store.AppendClusterMember(
			best.Cluster.ID, p.Repo, issue.Number,
			best.Similarity,
			centroid, best.Cluster.Size+1, best.Cluster.Popularity+pop,
		)
		if err != nil {
			return err
		}
		result.IssuesMapped++
		return nil
	}

	rep := issue.Number
	cluster := &store.Cluster{
		Repo:           p.Repo,
		Product:        p.Product,
		TargetVersion:  p.TargetVersion,
		Centroid:       issue.Embedding,
		Size:           1,
		Popularity:     pop,
		Representative: &rep,
		Threshold:      p.Threshold,
		TopK:           p.TopK,
	}
	id, err := e.store.CreateCluster(cluster)
	if err != nil {
		return err
	}

	// The seed issue gets a mapping row like any other member; its
	// similarity to the centroid it just defined is exact.
	if err := e.store.AppendClusterMember(id, p.Repo, issue.Number, 1.0, issue.Embedding, 1, pop); err != nil {
		return err
	}
	result.ClustersCreated++
	result.IssuesMapped++
	return nil
}

// recomputeRepresentatives picks each cluster's member nearest its final
// centroid. The centroid moved during accretion, so this is a best-effort
// nearest-neighbor pass, not a true medoid selection.
func (e *Engine) recomputeRepresentatives(repo, product string) error {
	clusters, err := e.store.ListClusters(repo, product)
	if err != nil {
		return fmt.Errorf("listing clusters for representatives: %w", err)
	}

	for _, c := range clusters {
		members, err := e.store.ClusterMembers(c.ID)
		if err != nil {
			return fmt.Errorf("cluster %d members: %w", c.ID, err)
		}
		if len(members) == 0 {
			continue
		}

		bestNumber := 0
		bestSim := -2.0
		for _, m := range members {
			sim, err := vector.CosineSimilarity(m.Embedding, c.Centroid)
			if err != nil {
				return fmt.Errorf("cluster %d member #%d: %w", c.ID, m.Number, err)
			}
			if sim > bestSim {
				bestSim = sim
				bestNumber = m.Number
			}
		}

		if err := e.store.SetClusterRepresentative(c.ID, bestNumber); err != nil {
			return err
		}
	}
	return nil
}
