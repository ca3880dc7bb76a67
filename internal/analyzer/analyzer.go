// Package analyzer orchestrates classification, embedding, and indexing of scraped article batches.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/parser"
	"github.com/beacon-news/analyzer/golang/internal/ports"
)

// Analyzer turns a batch of scraped payloads into enriched, indexed articles.
// Classifier and embedder are each called once per batch; categories are
// reconciled through a content-addressed catalog and written before the
// articles that reference them.
type Analyzer struct {
	logger     ports.Logger
	metrics    *domain.Metrics
	parser     *parser.Parser
	classifier ports.Classifier
	embedder   ports.Embedder
	writer     ports.IndexWriter
	indexCB    ports.CircuitBreaker
	dim        int
}

// New creates an analyzer. The circuit breaker guards the bulk index calls.
func New(
	logger ports.Logger,
	metrics *domain.Metrics,
	p *parser.Parser,
	classifier ports.Classifier,
	embedder ports.Embedder,
	writer ports.IndexWriter,
	indexCB ports.CircuitBreaker,
	embeddingsDim int,
) *Analyzer {
	return &Analyzer{
		logger:     logger.WithFields(ports.Field{Key: "component", Value: "analyzer"}),
		metrics:    metrics,
		parser:     p,
		classifier: classifier,
		embedder:   embedder,
		writer:     writer,
		indexCB:    indexCB,
		dim:        embeddingsDim,
	}
}

// Process enriches and stores one batch. It returns the ids of the stored
// articles in parser-surviving input order. A non-nil error means nothing in
// the batch may be acknowledged.
func (a *Analyzer) Process(ctx context.Context, payloads [][]byte) ([]string, error) {
	start := time.Now()
	defer func() {
		a.metrics.AnalyzeTimeNs.Add(uint64(time.Since(start).Nanoseconds()))
	}()

	scraped := make([]*domain.ScrapedArticle, 0, len(payloads))
	for _, payload := range payloads {
		// Rejects are logged by the parser and skipped.
		if article := a.parser.Parse(payload); article != nil {
			scraped = append(scraped, article)
		}
	}

	if len(scraped) == 0 {
		a.logger.Warn("no text found in documents in scraped batch, skipping batch")
		return nil, nil
	}

	texts := extractTexts(scraped)

	labels, err := a.classifier.PredictBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to classify batch: %w", err)
	}
	if len(labels) != len(texts) {
		return nil, fmt.Errorf("classifier returned %d label lists for %d texts", len(labels), len(texts))
	}

	embeddings, err := a.embedder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embeddings), len(texts))
	}
	for i, vector := range embeddings {
		if len(vector) != a.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vector), a.dim)
		}
	}

	categories, articles := buildCategoriesAndArticles(scraped, labels, embeddings)

	var catIDs []string
	if cbErr := a.indexCB.Execute(func() error {
		var storeErr error
		catIDs, storeErr = a.writer.StoreCategories(ctx, categories)
		return storeErr
	}); cbErr != nil {
		return nil, fmt.Errorf("failed to store categories: %w", cbErr)
	}
	a.logger.Info("stored categories", ports.Field{Key: "count", Value: len(catIDs)})

	var ids []string
	if cbErr := a.indexCB.Execute(func() error {
		var storeErr error
		ids, storeErr = a.writer.StoreArticles(ctx, articles)
		return storeErr
	}); cbErr != nil {
		return nil, fmt.Errorf("failed to store articles: %w", cbErr)
	}
	a.logger.Info("done storing batch of articles",
		ports.Field{Key: "batch", Value: len(articles)},
		ports.Field{Key: "stored", Value: len(ids)},
	)

	return ids, nil
}

// extractTexts builds the analysis text per article: newline-joined titles
// directly followed by newline-joined paragraphs. There is no separator
// between the two joins; keeping the exact concatenation keeps embeddings
// reproducible across deployments.
func extractTexts(scraped []*domain.ScrapedArticle) []string {
	texts := make([]string, 0, len(scraped))
	for _, article := range scraped {
		texts = append(texts, strings.Join(article.Title, "\n")+strings.Join(article.Paragraphs, "\n"))
	}
	return texts
}

// buildCategoriesAndArticles reconciles metadata and predicted category
// names through a batch-level catalog and constructs the enriched records.
// The same analyze time applies to the whole batch.
func buildCategoriesAndArticles(
	scraped []*domain.ScrapedArticle,
	labels [][]string,
	embeddings [][]float32,
) ([]domain.Category, []domain.EnrichedArticle) {
	catalog := make(map[string]domain.Category)
	var catalogOrder []string

	analyzeTime := time.Now()
	articles := make([]domain.EnrichedArticle, 0, len(scraped))

	intern := func(name string) (domain.Category, bool) {
		normalized := domain.NormalizeCategoryName(name)
		if normalized == "" {
			return domain.Category{}, false
		}
		cat, ok := catalog[normalized]
		if !ok {
			cat = domain.NewCategory(normalized)
			catalog[normalized] = cat
			catalogOrder = append(catalogOrder, normalized)
		}
		return cat, true
	}

	for i, article := range scraped {
		var merged []domain.Category
		seen := make(map[string]bool)

		// Metadata categories first, then predictions; duplicate normalized
		// names collapse to the first occurrence.
		for _, name := range article.Metadata.Categories {
			if cat, ok := intern(name); ok && !seen[cat.ID] {
				seen[cat.ID] = true
				merged = append(merged, cat)
			}
		}

		var predicted []domain.Category
		predictedSeen := make(map[string]bool)
		for _, name := range labels[i] {
			cat, ok := intern(name)
			if !ok {
				continue
			}
			if !predictedSeen[cat.ID] {
				predictedSeen[cat.ID] = true
				predicted = append(predicted, cat)
			}
			if !seen[cat.ID] {
				seen[cat.ID] = true
				merged = append(merged, cat)
			}
		}

		articles = append(articles, domain.EnrichedArticle{
			ScrapedArticle:     *article,
			AnalyzeTime:        analyzeTime,
			Categories:         merged,
			AnalyzedCategories: predicted,
			Embeddings:         embeddings[i],
		})
	}

	categories := make([]domain.Category, 0, len(catalogOrder))
	for _, name := range catalogOrder {
		categories = append(categories, catalog[name])
	}

	return categories, articles
}
