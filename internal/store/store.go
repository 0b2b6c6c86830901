package store

// IssueStore defines the storage operations used by the sync orchestrator.
// It is satisfied by *DB and can be replaced with a mock for testing.
type IssueStore interface {
	// UpsertIssue inserts or updates an issue, invalidating a stale
	// embedding when the content hash changed.
	UpsertIssue(issue *Issue) (UpsertResult, error)

	// SetIssueEmbedding stores the embedding triple for an issue.
	SetIssueEmbedding(repo string, number int, literal, model, inputHash string) error

	// FindReusableEmbedding looks up an existing embedding produced by the
	// same model from identical input.
	FindReusableEmbedding(repo string, excludeNumber int, model, inputHash string) (string, bool, error)

	// ReplaceIssueProducts replaces an issue's product labels.
	ReplaceIssueProducts(repo string, number int, products []string) error

	// GetSyncState reads the per-repository checkpoint; nil when absent.
	GetSyncState(repo string) (*SyncState, error)

	// SetSyncState upserts the per-repository checkpoint.
	SetSyncState(state *SyncState) error

	// UpsertReleaseState stores the latest-release snapshot.
	UpsertReleaseState(state *ReleaseState) error
}

// ClusterStore defines the storage operations used by the clustering engine.
type ClusterStore interface {
	// ListOpenEmbeddedIssues returns the bucket's clusterable issues in
	// ascending number order.
	ListOpenEmbeddedIssues(repo, product string) ([]EmbeddedIssue, error)

	// DeleteClusters wipes a bucket before a rebuild.
	DeleteClusters(repo, product string) error

	// CreateCluster inserts a new cluster, returning its id.
	CreateCluster(c *Cluster) (int64, error)

	// NearestClusters ranks the bucket's clusters by similarity to a vector.
	NearestClusters(repo, product string, vec []float32, k int) ([]ClusterNeighbor, error)

	// AppendClusterMember records an assignment and the cluster's updated
	// centroid, size, and popularity.
	AppendClusterMember(clusterID int64, repo string, number int, similarity float64, centroid []float32, size int, popularity float64) error

	// ClusterMembers returns a cluster's assigned issues with embeddings.
	ClusterMembers(clusterID int64) ([]ClusterMember, error)

	// SetClusterRepresentative records the cluster's representative issue.
	SetClusterRepresentative(clusterID int64, number int) error

	// ListClusters returns a bucket's clusters ordered by id.
	ListClusters(repo, product string) ([]Cluster, error)
}

// Compile-time checks that *DB satisfies both interfaces.
var (
	_ IssueStore   = (*DB)(nil)
	_ ClusterStore = (*DB)(nil)
)
