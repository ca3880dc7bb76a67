package ml

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/ports"
)

// Classifier calls the multi-label category classifier model server.
type Classifier struct {
	endpoint string
	client   *http.Client
	logger   ports.Logger
}

// NewClassifier creates a classifier client from the ML config.
func NewClassifier(cfg *config.MLConfig, logger ports.Logger) *Classifier {
	return &Classifier{
		endpoint: strings.TrimRight(cfg.ClassifierEndpoint, "/") + "/predict",
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger.WithFields(ports.Field{Key: "component", Value: "classifier"}),
	}
}

type predictRequest struct {
	Texts []string `json:"texts"`
}

type predictResponse struct {
	Labels [][]string `json:"labels"`
}

// PredictBatch classifies all texts in one call. The result has the same
// length and order as the input; inner label lists may be empty.
func (c *Classifier) PredictBatch(ctx context.Context, texts []string) ([][]string, error) {
	c.logger.Info("predicting category for batch of documents", ports.Field{Key: "count", Value: len(texts)})

	var res predictResponse
	if err := postJSON(ctx, c.client, c.endpoint, predictRequest{Texts: texts}, &res); err != nil {
		return nil, err
	}
	if len(res.Labels) != len(texts) {
		return nil, fmt.Errorf("classifier returned %d label lists for %d texts", len(res.Labels), len(texts))
	}
	return res.Labels, nil
}
