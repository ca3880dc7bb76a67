// Package elastic implements the search index writer using streaming bulk requests.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/ports"
	"github.com/beacon-news/analyzer/golang/pkg/jsonx"
)

const (
	articlesIndex   = "articles"
	categoriesIndex = "categories"
)

// Writer bulk-writes categories and enriched articles. Documents are keyed
// by their content-addressed (categories) or scraper-assigned (articles) ids,
// so re-writing the same input upserts instead of duplicating.
type Writer struct {
	es      *elasticsearch.Client
	logger  ports.Logger
	metrics *domain.Metrics
}

// NewWriter connects to the search index and asserts both indices.
func NewWriter(ctx context.Context, cfg *config.ElasticConfig, logger ports.Logger, metrics *domain.Metrics) (*Writer, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.User,
		Password:  cfg.Password,
	}

	if cfg.TLSInsecure {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- explicit opt-in for test setups
		}
	} else if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read elasticsearch CA bundle: %w", err)
		}
		esCfg.CACert = caCert
	}

	logger.Info("connecting to elasticsearch", ports.Field{Key: "host", Value: cfg.Host})
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	w := &Writer{
		es:      es,
		logger:  logger.WithFields(ports.Field{Key: "component", Value: "index-writer"}),
		metrics: metrics,
	}

	if err := w.assertIndex(ctx, articlesIndex, articlesMappings(cfg.EmbeddingsDim)); err != nil {
		return nil, err
	}
	if err := w.assertIndex(ctx, categoriesIndex, categoriesMappings()); err != nil {
		return nil, err
	}

	return w, nil
}

// assertIndex creates an index, tolerating one that already exists.
func (w *Writer) assertIndex(ctx context.Context, name, body string) error {
	w.logger.Info("creating/asserting index", ports.Field{Key: "index", Value: name})

	res, err := w.es.Indices.Create(
		name,
		w.es.Indices.Create.WithBody(strings.NewReader(body)),
		w.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if strings.Contains(res.String(), "resource_already_exists_exception") {
			w.logger.Info("index already exists", ports.Field{Key: "index", Value: name})
			return nil
		}
		return fmt.Errorf("failed to create index %s: %s", name, res.String())
	}
	return nil
}

// StoreCategories bulk-writes the categories and returns the ids of the
// successfully stored documents in input order.
func (w *Writer) StoreCategories(ctx context.Context, categories []domain.Category) ([]string, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	w.logger.Info("attempting to insert categories",
		ports.Field{Key: "index", Value: categoriesIndex},
		ports.Field{Key: "count", Value: len(categories)},
	)

	items := make([]bulkDoc, 0, len(categories))
	for _, cat := range categories {
		body, err := jsonx.Marshal(categoryDoc{Name: cat.Name})
		if err != nil {
			return nil, fmt.Errorf("failed to encode category %s: %w", cat.ID, err)
		}
		items = append(items, bulkDoc{id: cat.ID, body: body})
	}

	stored, err := w.bulkStore(ctx, categoriesIndex, items)
	if err != nil {
		return nil, err
	}
	w.metrics.CategoriesIndexed.Add(uint64(len(stored)))
	return stored, nil
}

// StoreArticles bulk-writes the enriched articles and returns the ids of the
// successfully stored documents in input order.
func (w *Writer) StoreArticles(ctx context.Context, articles []domain.EnrichedArticle) ([]string, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	w.logger.Info("attempting to insert articles",
		ports.Field{Key: "index", Value: articlesIndex},
		ports.Field{Key: "count", Value: len(articles)},
	)

	items := make([]bulkDoc, 0, len(articles))
	for _, article := range articles {
		body, err := jsonx.Marshal(mapToRepoDoc(&article))
		if err != nil {
			return nil, fmt.Errorf("failed to encode article %s: %w", article.ID, err)
		}
		items = append(items, bulkDoc{id: article.ID, body: body})
	}

	stored, err := w.bulkStore(ctx, articlesIndex, items)
	if err != nil {
		return nil, err
	}
	w.metrics.ArticlesIndexed.Add(uint64(len(stored)))
	return stored, nil
}

// bulkDoc is one document of a streaming bulk request.
type bulkDoc struct {
	id   string
	body []byte
}

// bulkStore streams the documents through a single bulk indexer. Documents
// that fail individually are logged and omitted from the result; only
// call-wide failures surface as errors.
func (w *Writer) bulkStore(ctx context.Context, index string, docs []bulkDoc) ([]string, error) {
	var mu sync.Mutex
	var callErr error
	ok := make([]bool, len(docs))

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     w.es,
		Index:      index,
		NumWorkers: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer for %s: %w", index, err)
	}

	for i, doc := range docs {
		i := i
		item := esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.id,
			Body:       bytes.NewReader(doc.body),
			OnSuccess: func(_ context.Context, _ esutil.BulkIndexerItem, _ esutil.BulkIndexerResponseItem) {
				mu.Lock()
				ok[i] = true
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				w.metrics.IndexFailures.Add(1)
				if err != nil && callErr == nil {
					// A non-nil err means the bulk request itself failed, not
					// just this document; the whole call must error out.
					callErr = err
				}
				mu.Unlock()
				w.logger.Error("failed to bulk store document",
					ports.Field{Key: "index", Value: index},
					ports.Field{Key: "documentID", Value: item.DocumentID},
					ports.Field{Key: "status", Value: res.Status},
					ports.Field{Key: "errorType", Value: res.Error.Type},
					ports.Field{Key: "errorReason", Value: res.Error.Reason},
					ports.Field{Key: "error", Value: err},
				)
			},
		}
		if err := bi.Add(ctx, item); err != nil {
			_ = bi.Close(ctx)
			return nil, fmt.Errorf("failed to enqueue document for %s: %w", index, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, fmt.Errorf("bulk flush to %s failed: %w", index, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if callErr != nil {
		return nil, fmt.Errorf("bulk request to %s failed: %w", index, callErr)
	}

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		if ok[i] {
			ids = append(ids, doc.id)
		}
	}
	return ids, nil
}

// Repository document shapes.

type categoryDoc struct {
	Name string `json:"name"`
}

type articleRepoDoc struct {
	AnalyzeTime string          `json:"analyze_time"`
	Analyzer    analyzerSection `json:"analyzer"`
	Article     articleSection  `json:"article"`
	// topics are NOT added here, they will be added by the topic modeler
}

type analyzerSection struct {
	CategoryIDs []string  `json:"category_ids"`
	Embeddings  []float32 `json:"embeddings"`
}

type articleSection struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Source      *string      `json:"source"`
	PublishDate string       `json:"publish_date"`
	Image       *string      `json:"image"`
	Author      []string     `json:"author"`
	Title       []string     `json:"title"`
	Paragraphs  []string     `json:"paragraphs"`
	Categories  categoryRefs `json:"categories"`
}

type categoryRefs struct {
	IDs   []string `json:"ids"`
	Names []string `json:"names"`
}

// mapToRepoDoc creates the repository model from an enriched article.
func mapToRepoDoc(article *domain.EnrichedArticle) articleRepoDoc {
	catIDs := make([]string, 0, len(article.Categories))
	catNames := make([]string, 0, len(article.Categories))
	for _, cat := range article.Categories {
		catIDs = append(catIDs, cat.ID)
		catNames = append(catNames, cat.Name)
	}

	analyzedIDs := make([]string, 0, len(article.AnalyzedCategories))
	for _, cat := range article.AnalyzedCategories {
		analyzedIDs = append(analyzedIDs, cat.ID)
	}

	return articleRepoDoc{
		AnalyzeTime: article.AnalyzeTime.Format(time.RFC3339),
		Analyzer: analyzerSection{
			CategoryIDs: analyzedIDs,
			Embeddings:  article.Embeddings,
		},
		Article: articleSection{
			ID:          article.ID,
			URL:         article.URL,
			Source:      optString(article.Metadata.Source),
			PublishDate: article.PublishDate.Format(time.RFC3339),
			Image:       optString(article.Image),
			Author:      article.Author,
			Title:       article.Title,
			Paragraphs:  article.Paragraphs,
			Categories: categoryRefs{
				IDs:   catIDs,
				Names: catNames,
			},
		},
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
