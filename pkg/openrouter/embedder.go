package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
)

var ErrNoClient = errors.New("openrouter: embedding client is not configured")

// Embedder calls the OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client *openaisdk.Client
	model  string
}

// NewEmbedder returns an embedder for the given model. The config's Model
// field is ignored; embeddings usually use a different model than chat.
func NewEmbedder(cfg Config, embeddingModel string) (*Embedder, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, ErrNoClient
	}
	embeddingModel = strings.TrimSpace(embeddingModel)
	if embeddingModel == "" {
		return nil, fmt.Errorf("openrouter: embedding model is required")
	}
	return &Embedder{client: client, model: embeddingModel}, nil
}

func (e *Embedder) Model() string { return e.model }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openrouter: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openrouter: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
