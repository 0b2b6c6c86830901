// Package embed turns issue text into fixed-dimension vectors via an
// external embedding API, with a run-scoped cache so identical inputs are
// only embedded once per sync.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Sentinel errors for provider operations.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// maxInputChars bounds the text sent to the provider. Issue bodies can be
// pasted logs running to hundreds of kilobytes.
const maxInputChars = 8000

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model identifies the embedding model, stored alongside each vector.
	Model() string
}

// InputText composes the text to embed from an issue's title and body,
// truncating to the input bound while preserving the title and as much body
// as fits.
func InputText(title, body string) string {
	if body == "" {
		if len(title) > maxInputChars {
			return title[:maxInputChars]
		}
		return title
	}

	text := title + "\n\n" + body
	if len(text) > maxInputChars {
		prefix := title + "\n\n"
		remaining := maxInputChars - len(prefix)
		if remaining <= 0 {
			return title[:maxInputChars]
		}
		return prefix + body[:remaining]
	}
	return text
}

// InputHash returns the hex SHA-256 digest of an embedding input. Issues
// with identical composed text hash identically, which is what makes
// embedding reuse safe.
func InputHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
