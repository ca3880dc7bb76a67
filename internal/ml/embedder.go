package ml

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/ports"
)

// Embedder calls the text embeddings model server.
type Embedder struct {
	endpoint string
	dim      int
	client   *http.Client
	logger   ports.Logger
}

// NewEmbedder creates an embedder client. dim is the fixed vector width of
// the deployed model; responses with any other width are rejected.
func NewEmbedder(cfg *config.MLConfig, dim int, logger ports.Logger) *Embedder {
	return &Embedder{
		endpoint: strings.TrimRight(cfg.EmbeddingsEndpoint, "/") + "/embed",
		dim:      dim,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger.WithFields(ports.Field{Key: "component", Value: "embedder"}),
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Encode embeds all texts in one call, returning one fixed-width vector per
// input text.
func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Info("embedding batch of documents", ports.Field{Key: "count", Value: len(texts)})

	var res embedResponse
	if err := postJSON(ctx, e.client, e.endpoint, embedRequest{Texts: texts}, &res); err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(res.Embeddings), len(texts))
	}
	for i, vector := range res.Embeddings {
		if len(vector) != e.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vector), e.dim)
		}
	}
	return res.Embeddings, nil
}
