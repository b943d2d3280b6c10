package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Veraticus/modality/internal/model"
	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaBackend generates embeddings through the Ollama embed API.
type OllamaBackend struct {
	client         *api.Client
	model          string
	useAccelerator bool
}

// NewOllamaBackend creates a backend for host. An empty host falls back to
// OLLAMA_HOST or the Ollama default.
func NewOllamaBackend(host, modelName string, useAccelerator bool) (*OllamaBackend, error) {
	if modelName == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}

	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}

	return &OllamaBackend{
		client:         api.NewClient(hostURL, http.DefaultClient),
		model:          modelName,
		useAccelerator: useAccelerator,
	}, nil
}

// ModelName returns the embedding model identifier.
func (o *OllamaBackend) ModelName() string {
	return o.model
}

// Embed embeds a single text.
func (o *OllamaBackend) Embed(ctx context.Context, text string) (model.Vector, error) {
	vecs, err := o.embed(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, preserving order.
func (o *OllamaBackend) EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return o.embed(ctx, texts, len(texts))
}

func (o *OllamaBackend) embed(ctx context.Context, input any, want int) ([]model.Vector, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model:   o.model,
		Input:   input,
		Options: o.options(),
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrCountMismatch, want, len(resp.Embeddings))
	}

	out := make([]model.Vector, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		v := make(model.Vector, len(emb))
		for j, x := range emb {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out, nil
}

// options disables GPU offload when the accelerator is turned off.
func (o *OllamaBackend) options() map[string]any {
	if o.useAccelerator {
		return map[string]any{}
	}
	return map[string]any{"num_gpu": 0}
}
