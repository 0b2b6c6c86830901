package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mchan/issuelens/internal/retry"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder implements the Embedder interface using the OpenAI
// embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates a new OpenAIEmbedder.
// If model is empty, it defaults to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return newOpenAIEmbedderWithClient(openai.NewClient(apiKey), model)
}

// newOpenAIEmbedderWithClient allows injecting a client for testing.
func newOpenAIEmbedderWithClient(client *openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIEmbedder{client: client, model: model}
}

// Model returns the configured embedding model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed returns a vector embedding for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		// Transient statuses are wrapped into the retry taxonomy so the
		// retry engine backs off instead of failing on the first attempt.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
				return nil, &retry.RateLimitError{Err: fmt.Errorf("%w: %s", ErrRateLimit, err)}
			case apiErr.HTTPStatusCode == http.StatusRequestTimeout || apiErr.HTTPStatusCode == http.StatusGatewayTimeout:
				return nil, &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Err: fmt.Errorf("%w: %s", ErrTimeout, err)}
			case apiErr.HTTPStatusCode >= 500:
				return nil, &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Err: fmt.Errorf("openai embedding: %w", err)}
			}
			return nil, fmt.Errorf("openai embedding: %w", err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no data in embeddings response", ErrInvalidResponse)
	}
	if len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding vector", ErrInvalidResponse)
	}

	return resp.Data[0].Embedding, nil
}

// Verify OpenAIEmbedder implements Embedder.
var _ Embedder = (*OpenAIEmbedder)(nil)
