package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Issue represents a stored GitHub issue.
type Issue struct {
	ID             int64
	Repo           string
	Number         int
	Title          string
	Body           string
	State          string
	Labels         []string
	Milestone      string
	TargetVersion  string
	Comments       int
	Reactions      int
	ContentHash    string
	Embedding      string // vector literal, empty until embedded
	EmbeddingModel string
	EmbeddingHash  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
	FetchedAt      time.Time
}

// UpsertResult reports the embedding state of an issue after an upsert.
type UpsertResult struct {
	// NeedsEmbedding is true when the post-write row has no embedding,
	// either because the issue is new or its content changed.
	NeedsEmbedding bool

	// ContentHash is the hash computed over the issue's mutable fields.
	ContentHash string
}

// ContentHash digests the fields whose change invalidates an embedding:
// title, body, sorted label names, milestone, and target version.
func ContentHash(title, body string, labels []string, milestone, targetVersion string) string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{0})
	h.Write([]byte(milestone))
	h.Write([]byte{0})
	h.Write([]byte(targetVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// UpsertIssue inserts or updates an issue keyed by (repo, number). When the
// row pre-existed with a different content hash, the embedding triple is
// nulled in the same write; an unchanged hash leaves it untouched. The
// returned result tells the caller whether the issue still needs embedding.
func (d *DB) UpsertIssue(issue *Issue) (UpsertResult, error) {
	hash := ContentHash(issue.Title, issue.Body, issue.Labels, issue.Milestone, issue.TargetVersion)
	issue.ContentHash = hash

	labelsJSON, err := json.Marshal(issue.Labels)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshaling labels: %w", err)
	}

	var closedAt any
	if issue.ClosedAt != nil {
		closedAt = issue.ClosedAt.UTC().Format(time.RFC3339)
	}

	_, err = d.db.Exec(`
		INSERT INTO issues (repo, number, title, body, state, labels, milestone,
			target_version, comments, reactions, content_hash,
			created_at, updated_at, closed_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, number) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			state = excluded.state,
			labels = excluded.labels,
			milestone = excluded.milestone,
			target_version = excluded.target_version,
			comments = excluded.comments,
			reactions = excluded.reactions,
			embedding = CASE WHEN issues.content_hash = excluded.content_hash
				THEN issues.embedding ELSE NULL END,
			embedding_model = CASE WHEN issues.content_hash = excluded.content_hash
				THEN issues.embedding_model ELSE NULL END,
			embedding_hash = CASE WHEN issues.content_hash = excluded.content_hash
				THEN issues.embedding_hash ELSE NULL END,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at,
			fetched_at = excluded.fetched_at`,
		issue.Repo, issue.Number, issue.Title, issue.Body, issue.State,
		string(labelsJSON), issue.Milestone, issue.TargetVersion,
		issue.Comments, issue.Reactions, hash,
		issue.CreatedAt.UTC().Format(time.RFC3339),
		issue.UpdatedAt.UTC().Format(time.RFC3339),
		closedAt,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upserting issue %s#%d: %w", issue.Repo, issue.Number, err)
	}

	var embedding sql.NullString
	err = d.db.QueryRow(
		`SELECT embedding FROM issues WHERE repo = ? AND number = ?`,
		issue.Repo, issue.Number,
	).Scan(&embedding)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("reading back issue %s#%d: %w", issue.Repo, issue.Number, err)
	}

	return UpsertResult{
		NeedsEmbedding: !embedding.Valid || embedding.String == "",
		ContentHash:    hash,
	}, nil
}

// GetIssue retrieves an issue by repo and number.
func (d *DB) GetIssue(repo string, number int) (*Issue, error) {
	row := d.db.QueryRow(`
		SELECT id, repo, number, title, body, state, labels, milestone,
		       target_version, comments, reactions, content_hash,
		       embedding, embedding_model, embedding_hash,
		       created_at, updated_at, closed_at, fetched_at
		FROM issues WHERE repo = ? AND number = ?`,
		repo, number,
	)
	return scanIssue(row)
}

// SetIssueEmbedding stores the embedding triple for an issue: the vector
// literal, the model that produced it, and the hash of the embedded input.
func (d *DB) SetIssueEmbedding(repo string, number int, literal, model, inputHash string) error {
	res, err := d.db.Exec(`
		UPDATE issues SET embedding = ?, embedding_model = ?, embedding_hash = ?
		WHERE repo = ? AND number = ?`,
		literal, model, inputHash, repo, number,
	)
	if err != nil {
		return fmt.Errorf("setting embedding for %s#%d: %w", repo, number, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("setting embedding for %s#%d: issue not found", repo, number)
	}
	return nil
}

// FindReusableEmbedding looks for another issue in the same repository whose
// stored embedding was produced by the same model from byte-identical input.
// Templated duplicate reports hit this often enough to make provider calls
// worth skipping.
func (d *DB) FindReusableEmbedding(repo string, excludeNumber int, model, inputHash string) (literal string, found bool, err error) {
	err = d.db.QueryRow(`
		SELECT embedding FROM issues
		WHERE repo = ? AND number != ? AND embedding_model = ? AND embedding_hash = ?
		  AND embedding IS NOT NULL
		LIMIT 1`,
		repo, excludeNumber, model, inputHash,
	).Scan(&literal)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("looking up reusable embedding: %w", err)
	}
	return literal, true, nil
}

// ReplaceIssueProducts replaces the product labels for one issue with the
// given set. An empty set is a no-op; callers guarantee at least the
// uncategorized sentinel.
func (d *DB) ReplaceIssueProducts(repo string, number int, products []string) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning products transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM issue_products WHERE repo = ? AND number = ?`,
		repo, number,
	); err != nil {
		return fmt.Errorf("deleting issue products: %w", err)
	}

	for _, p := range products {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO issue_products (repo, number, product) VALUES (?, ?, ?)`,
			repo, number, p,
		); err != nil {
			return fmt.Errorf("inserting issue product %q: %w", p, err)
		}
	}

	return tx.Commit()
}

// GetIssueProducts returns the product labels attached to an issue.
func (d *DB) GetIssueProducts(repo string, number int) ([]string, error) {
	rows, err := d.db.Query(
		`SELECT product FROM issue_products WHERE repo = ? AND number = ? ORDER BY product`,
		repo, number,
	)
	if err != nil {
		return nil, fmt.Errorf("querying issue products: %w", err)
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

func scanIssue(row *sql.Row) (*Issue, error) {
	var issue Issue
	var body, labels, milestone, targetVersion sql.NullString
	var embedding, embeddingModel, embeddingHash, closedAt sql.NullString
	var createdAt, updatedAt, fetchedAt string

	err := row.Scan(
		&issue.ID, &issue.Repo, &issue.Number, &issue.Title,
		&body, &issue.State, &labels, &milestone, &targetVersion,
		&issue.Comments, &issue.Reactions, &issue.ContentHash,
		&embedding, &embeddingModel, &embeddingHash,
		&createdAt, &updatedAt, &closedAt, &fetchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	issue.Body = body.String
	issue.Milestone = milestone.String
	issue.TargetVersion = targetVersion.String
	issue.Embedding = embedding.String
	issue.EmbeddingModel = embeddingModel.String
	issue.EmbeddingHash = embeddingHash.String
	issue.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	issue.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	issue.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)

	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339, closedAt.String)
		issue.ClosedAt = &t
	}

	if labels.Valid && labels.String != "" {
		_ = json.Unmarshal([]byte(labels.String), &issue.Labels)
	}

	return &issue, nil
}
