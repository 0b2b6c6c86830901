package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/mchan/issuelens/internal/vector"
)

// NoTargetVersion is the storage sentinel for clusters built without a
// target-version filter.
const NoTargetVersion = "none"

// Cluster is a group of semantically similar issues within one
// (repo, product) bucket.
type Cluster struct {
	ID             int64
	Repo           string
	Product        string
	TargetVersion  string
	Centroid       []float32
	Size           int
	Popularity     float64
	Representative *int
	Threshold      float64
	TopK           int
	UpdatedAt      time.Time
}

// ClusterNeighbor is a cluster candidate with its cosine similarity to a
// query vector.
type ClusterNeighbor struct {
	Cluster    Cluster
	Similarity float64
}

// EmbeddedIssue is the slice of an issue the clustering engine needs.
type EmbeddedIssue struct {
	Number    int
	Embedding []float32
	Comments  int
	Reactions int
	UpdatedAt time.Time
}

// ClusterMember is one issue assigned to a cluster.
type ClusterMember struct {
	Number     int
	Embedding  []float32
	Similarity float64
}

// DeleteClusters removes every cluster and mapping row for a bucket, making
// a re-cluster run start from a clean slate.
func (d *DB) DeleteClusters(repo, product string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM cluster_map WHERE cluster_id IN
			(SELECT id FROM clusters WHERE repo = ? AND product = ?)`,
		repo, product,
	); err != nil {
		return fmt.Errorf("deleting cluster mappings: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM clusters WHERE repo = ? AND product = ?`,
		repo, product,
	); err != nil {
		return fmt.Errorf("deleting clusters: %w", err)
	}

	return tx.Commit()
}

// CreateCluster inserts a new cluster and returns its generated id.
func (d *DB) CreateCluster(c *Cluster) (int64, error) {
	if c.TargetVersion == "" {
		c.TargetVersion = NoTargetVersion
	}

	var rep any
	if c.Representative != nil {
		rep = *c.Representative
	}

	res, err := d.db.Exec(`
		INSERT INTO clusters (repo, product, target_version, centroid, size,
			popularity, representative, threshold, top_k, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Repo, c.Product, c.TargetVersion, vector.Encode(c.Centroid),
		c.Size, c.Popularity, rep, c.Threshold, c.TopK,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("creating cluster: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting cluster id: %w", err)
	}
	c.ID = id
	return id, nil
}

// NearestClusters returns up to k clusters in the bucket ranked by cosine
// similarity to vec, highest first. Ties keep the earlier-created cluster.
func (d *DB) NearestClusters(repo, product string, vec []float32, k int) ([]ClusterNeighbor, error) {
	clusters, err := d.ListClusters(repo, product)
	if err != nil {
		return nil, err
	}

	neighbors := make([]ClusterNeighbor, 0, len(clusters))
	for _, c := range clusters {
		sim, err := vector.CosineSimilarity(vec, c.Centroid)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", c.ID, err)
		}
		neighbors = append(neighbors, ClusterNeighbor{Cluster: c, Similarity: sim})
	}

	// Stable sort with strict-greater comparison keeps the first-encountered
	// candidate on ties.
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})

	if k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// AppendClusterMember records an issue's assignment to a cluster: the
// mapping row with its achieved similarity plus the cluster's new centroid,
// size, and popularity, all in one transaction.
func (d *DB) AppendClusterMember(clusterID int64, repo string, number int, similarity float64, centroid []float32, size int, popularity float64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning assignment transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO cluster_map (repo, number, cluster_id, similarity, assigned_at)
		VALUES (?, ?, ?, ?, ?)`,
		repo, number, clusterID, similarity,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting cluster mapping: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE clusters SET centroid = ?, size = ?, popularity = ?, updated_at = ?
		WHERE id = ?`,
		vector.Encode(centroid), size, popularity,
		time.Now().UTC().Format(time.RFC3339), clusterID,
	); err != nil {
		return fmt.Errorf("updating cluster %d: %w", clusterID, err)
	}

	return tx.Commit()
}

// SetClusterRepresentative records the member issue chosen to represent a
// cluster.
func (d *DB) SetClusterRepresentative(clusterID int64, number int) error {
	_, err := d.db.Exec(
		`UPDATE clusters SET representative = ? WHERE id = ?`,
		number, clusterID,
	)
	if err != nil {
		return fmt.Errorf("setting representative for cluster %d: %w", clusterID, err)
	}
	return nil
}

// ListClusters returns all clusters in a bucket ordered by id.
func (d *DB) ListClusters(repo, product string) ([]Cluster, error) {
	rows, err := d.db.Query(`
		SELECT id, repo, product, target_version, centroid, size, popularity,
		       representative, threshold, top_k, updated_at
		FROM clusters WHERE repo = ? AND product = ? ORDER BY id`,
		repo, product,
	)
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, *c)
	}
	return clusters, rows.Err()
}

// ClusterMembers returns the issues mapped to a cluster with their
// embeddings, ordered by issue number.
func (d *DB) ClusterMembers(clusterID int64) ([]ClusterMember, error) {
	rows, err := d.db.Query(`
		SELECT cm.number, i.embedding, cm.similarity
		FROM cluster_map cm
		JOIN issues i ON i.repo = cm.repo AND i.number = cm.number
		WHERE cm.cluster_id = ? AND i.embedding IS NOT NULL
		ORDER BY cm.number`,
		clusterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cluster members: %w", err)
	}
	defer rows.Close()

	var members []ClusterMember
	for rows.Next() {
		var m ClusterMember
		var literal string
		if err := rows.Scan(&m.Number, &literal, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning cluster member: %w", err)
		}
		vec, err := vector.Decode(literal)
		if err != nil {
			return nil, fmt.Errorf("member #%d: %w", m.Number, err)
		}
		m.Embedding = vec
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListOpenEmbeddedIssues returns every open, embedded issue carrying the
// given product label, ordered by ascending issue number so cluster runs
// are deterministic.
func (d *DB) ListOpenEmbeddedIssues(repo, product string) ([]EmbeddedIssue, error) {
	rows, err := d.db.Query(`
		SELECT i.number, i.embedding, i.comments, i.reactions, i.updated_at
		FROM issues i
		JOIN issue_products ip ON ip.repo = i.repo AND ip.number = i.number
		WHERE i.repo = ? AND ip.product = ? AND i.state = 'open'
		  AND i.embedding IS NOT NULL
		ORDER BY i.number`,
		repo, product,
	)
	if err != nil {
		return nil, fmt.Errorf("listing open embedded issues: %w", err)
	}
	defer rows.Close()

	var issues []EmbeddedIssue
	for rows.Next() {
		var e EmbeddedIssue
		var literal, updatedAt string
		if err := rows.Scan(&e.Number, &literal, &e.Comments, &e.Reactions, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning embedded issue: %w", err)
		}
		vec, err := vector.Decode(literal)
		if err != nil {
			return nil, fmt.Errorf("issue #%d: %w", e.Number, err)
		}
		e.Embedding = vec
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		issues = append(issues, e)
	}
	return issues, rows.Err()
}

// ListProducts returns the distinct product labels present in a repository.
func (d *DB) ListProducts(repo string) ([]string, error) {
	rows, err := d.db.Query(
		`SELECT DISTINCT product FROM issue_products WHERE repo = ? ORDER BY product`,
		repo,
	)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// TopClusters returns a bucket's clusters ordered by descending popularity.
func (d *DB) TopClusters(repo, product string, limit int) ([]Cluster, error) {
	rows, err := d.db.Query(`
		SELECT id, repo, product, target_version, centroid, size, popularity,
		       representative, threshold, top_k, updated_at
		FROM clusters WHERE repo = ? AND product = ?
		ORDER BY popularity DESC, id LIMIT ?`,
		repo, product, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing top clusters: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, *c)
	}
	return clusters, rows.Err()
}

func scanCluster(rows *sql.Rows) (*Cluster, error) {
	var c Cluster
	var centroid, updatedAt string
	var rep sql.NullInt64

	err := rows.Scan(
		&c.ID, &c.Repo, &c.Product, &c.TargetVersion, &centroid,
		&c.Size, &c.Popularity, &rep, &c.Threshold, &c.TopK, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning cluster: %w", err)
	}

	vec, err := vector.Decode(centroid)
	if err != nil {
		return nil, fmt.Errorf("cluster %d centroid: %w", c.ID, err)
	}
	c.Centroid = vec

	if rep.Valid {
		n := int(rep.Int64)
		c.Representative = &n
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &c, nil
}
