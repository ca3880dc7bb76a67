package analyzer

import (
	"context"
	"crypto/sha1" // #nosec G505 -- mirrors the content addressing under test
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/logger"
	"github.com/beacon-news/analyzer/golang/internal/parser"
	"github.com/beacon-news/analyzer/golang/pkg/circuitbreaker"
)

// ---------- Fakes ----------

type fakeClassifier struct {
	labels   [][]string
	err      error
	gotTexts []string
	calls    int
}

func (f *fakeClassifier) PredictBatch(_ context.Context, texts []string) ([][]string, error) {
	f.calls++
	f.gotTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	if f.labels != nil {
		return f.labels, nil
	}
	labels := make([][]string, len(texts))
	return labels, nil
}

type fakeEmbedder struct {
	dim      int
	vectors  [][]float32
	err      error
	gotTexts []string
	calls    int
}

func (f *fakeEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.gotTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, f.dim)
	}
	return vectors, nil
}

type fakeWriter struct {
	categories []domain.Category
	articles   []domain.EnrichedArticle

	catErr  error
	artErr  error
	dropIDs map[string]bool // simulated per-document failures

	categoryCalls int
	articleCalls  int
}

func (f *fakeWriter) StoreCategories(_ context.Context, categories []domain.Category) ([]string, error) {
	f.categoryCalls++
	if f.catErr != nil {
		return nil, f.catErr
	}
	f.categories = categories
	ids := make([]string, 0, len(categories))
	for _, cat := range categories {
		ids = append(ids, cat.ID)
	}
	return ids, nil
}

func (f *fakeWriter) StoreArticles(_ context.Context, articles []domain.EnrichedArticle) ([]string, error) {
	f.articleCalls++
	if f.artErr != nil {
		return nil, f.artErr
	}
	f.articles = articles
	var ids []string
	for _, article := range articles {
		if f.dropIDs[article.ID] {
			continue
		}
		ids = append(ids, article.ID)
	}
	return ids, nil
}

// ---------- Helpers ----------

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newTestAnalyzer(t *testing.T, clf *fakeClassifier, emb *fakeEmbedder, w *fakeWriter, dim int) *Analyzer {
	t.Helper()
	logr, err := logger.NewLogrusLogger("fatal", "text")
	require.NoError(t, err)
	metrics := domain.NewMetrics()
	cb := circuitbreaker.New("test-index", 50, 5, time.Second, 100, 20)
	return New(logr, metrics, parser.New(logr, metrics), clf, emb, w, cb, dim)
}

func articlePayload(id string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"url": "http://x/%s",
		"metadata": {"categories": [" Sports "]},
		"components": {"article": [
			{"title": "T"},
			{"paragraphs": ["p1", "p2"]},
			{"publish_date": "2024-03-10T12:34:56"}
		]}
	}`, id, id))
}

func categoryIDs(categories []domain.Category) []string {
	ids := make([]string, 0, len(categories))
	for _, cat := range categories {
		ids = append(ids, cat.ID)
	}
	return ids
}

// ---------- Tests ----------

func TestProcessSingleArticleHappyPath(t *testing.T) {
	clf := &fakeClassifier{labels: [][]string{{"politics"}}}
	emb := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3, 0.4}}}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	ids, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids)

	// One model call each for the whole batch, with the exact concatenation:
	// joined titles directly followed by joined paragraphs.
	require.Equal(t, 1, clf.calls)
	require.Equal(t, 1, emb.calls)
	assert.Equal(t, []string{"Tp1\np2"}, clf.gotTexts)
	assert.Equal(t, clf.gotTexts, emb.gotTexts)

	// Categories are written before articles, normalized and content-addressed.
	require.Equal(t, 1, w.categoryCalls)
	require.Len(t, w.categories, 2)
	assert.Equal(t, domain.Category{ID: sha1Hex("sports"), Name: "sports"}, w.categories[0])
	assert.Equal(t, domain.Category{ID: sha1Hex("politics"), Name: "politics"}, w.categories[1])

	require.Len(t, w.articles, 1)
	article := w.articles[0]
	assert.Equal(t, "A", article.ID)
	assert.ElementsMatch(t, []string{sha1Hex("sports"), sha1Hex("politics")}, categoryIDs(article.Categories))
	assert.Equal(t, []string{sha1Hex("politics")}, categoryIDs(article.AnalyzedCategories))
	assert.Len(t, article.Embeddings, 4)
	assert.Equal(t, 0, article.PublishDate.Second())
	assert.False(t, article.AnalyzeTime.IsZero())
}

func TestProcessAnalyzedCategoriesSubsetOfCategories(t *testing.T) {
	clf := &fakeClassifier{labels: [][]string{{"politics", "economy"}}}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.NoError(t, err)

	require.Len(t, w.articles, 1)
	all := map[string]bool{}
	for _, id := range categoryIDs(w.articles[0].Categories) {
		all[id] = true
	}
	for _, id := range categoryIDs(w.articles[0].AnalyzedCategories) {
		assert.True(t, all[id], "analyzed category %s missing from categories", id)
	}
}

func TestProcessSkipsParserRejects(t *testing.T) {
	// The middle payload misses publish_date; the batch continues without it.
	invalid := []byte(`{"id":"B","url":"http://x/B","components":{"article":[{"title":"T"},{"paragraphs":["p"]}]}}`)

	clf := &fakeClassifier{labels: [][]string{{}, {}}}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	ids, err := a.Process(context.Background(), [][]byte{articlePayload("A"), invalid, articlePayload("C")})
	require.NoError(t, err)

	// Surviving input order is preserved.
	assert.Equal(t, []string{"A", "C"}, ids)
	require.Len(t, w.articles, 2)
	assert.Equal(t, "A", w.articles[0].ID)
	assert.Equal(t, "C", w.articles[1].ID)
}

func TestProcessEmptyBatchSkipsCollaborators(t *testing.T) {
	clf := &fakeClassifier{}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	ids, err := a.Process(context.Background(), [][]byte{[]byte(`{"garbage":true}`)})
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.Equal(t, 0, clf.calls)
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, 0, w.categoryCalls)
	assert.Equal(t, 0, w.articleCalls)
}

func TestProcessClassifierErrorAbortsBatch(t *testing.T) {
	clf := &fakeClassifier{err: errors.New("model unavailable")}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.Error(t, err)
	assert.Equal(t, 0, w.categoryCalls)
	assert.Equal(t, 0, w.articleCalls)
}

func TestProcessEmbedderErrorAbortsBatch(t *testing.T) {
	clf := &fakeClassifier{}
	emb := &fakeEmbedder{err: errors.New("model unavailable")}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.Error(t, err)
	assert.Equal(t, 0, w.articleCalls)
}

func TestProcessRejectsWrongEmbeddingDimension(t *testing.T) {
	clf := &fakeClassifier{}
	emb := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestProcessRejectsLabelCountMismatch(t *testing.T) {
	clf := &fakeClassifier{labels: [][]string{{"a"}, {"b"}}}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.Error(t, err)
}

func TestProcessWriterErrorAbortsBatch(t *testing.T) {
	clf := &fakeClassifier{}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{artErr: errors.New("index unavailable")}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.Error(t, err)
}

func TestProcessReportsOnlySuccessfullyStoredIDs(t *testing.T) {
	clf := &fakeClassifier{labels: [][]string{{}, {}}}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{dropIDs: map[string]bool{"A": true}}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	ids, err := a.Process(context.Background(), [][]byte{articlePayload("A"), articlePayload("C")})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, ids)
}

func TestProcessCollapsesEquivalentCategoryNames(t *testing.T) {
	// Metadata says " Sports ", prediction says "SPORTS": one catalog entry.
	clf := &fakeClassifier{labels: [][]string{{"SPORTS"}}}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A")})
	require.NoError(t, err)

	require.Len(t, w.categories, 1)
	assert.Equal(t, "sports", w.categories[0].Name)

	require.Len(t, w.articles, 1)
	assert.Len(t, w.articles[0].Categories, 1)
	assert.Len(t, w.articles[0].AnalyzedCategories, 1)
	assert.Equal(t, w.articles[0].Categories[0].ID, w.articles[0].AnalyzedCategories[0].ID)
}

func TestProcessSharesCatalogAcrossBatch(t *testing.T) {
	clf := &fakeClassifier{labels: [][]string{{"politics"}, {"politics"}}}
	emb := &fakeEmbedder{dim: 4}
	w := &fakeWriter{}
	a := newTestAnalyzer(t, clf, emb, w, 4)

	_, err := a.Process(context.Background(), [][]byte{articlePayload("A"), articlePayload("C")})
	require.NoError(t, err)

	// sports (metadata, both docs) + politics (predicted, both docs)
	require.Len(t, w.categories, 2)

	require.Len(t, w.articles, 2)
	assert.Equal(t, w.articles[0].AnalyzedCategories[0].ID, w.articles[1].AnalyzedCategories[0].ID)

	// The analyze time is a single value for the whole batch.
	assert.True(t, w.articles[0].AnalyzeTime.Equal(w.articles[1].AnalyzeTime))
}
