// Package domain contains the core article, category, and stream entry types shared by the pipeline.
package domain

import (
	"context"
	"crypto/sha1" // #nosec G505 -- content addressing, not password hashing
	"encoding/hex"
	"strings"
	"time"
)

// Acker acknowledges a single stream entry at the broker. Acking is
// idempotent: only the first call retires the entry from the pending set.
type Acker interface {
	Ack(ctx context.Context) error
}

// StreamEntry is one delivered stream entry: the broker-assigned id, the
// JSON-encoded payload bytes, and the deferred acknowledgement handle.
// The entry is owned by the batcher from delivery until its batch is
// acknowledged or abandoned.
type StreamEntry struct {
	ID      string
	Payload []byte
	Ack     Acker
}

// ScrapedArticleMetadata carries optional scraper-supplied metadata.
type ScrapedArticleMetadata struct {
	Source     string
	Categories []string
}

// ScrapedArticle is the canonical shape of a scraped document after parsing.
// Title, Paragraphs, and PublishDate are mandatory; the parser rejects
// payloads missing any of them.
type ScrapedArticle struct {
	ID          string
	URL         string
	Metadata    ScrapedArticleMetadata
	PublishDate time.Time
	Image       string
	Author      []string
	Title       []string
	Paragraphs  []string
}

// Category is a content-addressed catalog entry: the id is the SHA-1 hex
// digest of the normalized (lowercased, trimmed) name.
type Category struct {
	ID   string
	Name string
}

// NormalizeCategoryName trims and lowercases a free-text category name.
// Names differing only in case or surrounding whitespace collapse to one.
func NormalizeCategoryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewCategory mints a Category from a free-text name.
func NewCategory(name string) Category {
	normalized := NormalizeCategoryName(name)
	sum := sha1.Sum([]byte(normalized)) // #nosec G401 -- content addressing, not password hashing
	return Category{
		ID:   hex.EncodeToString(sum[:]),
		Name: normalized,
	}
}

// EnrichedArticle is the pipeline output record: the parsed article fields
// plus analyzer labels and the dense embedding vector.
type EnrichedArticle struct {
	ScrapedArticle

	AnalyzeTime time.Time

	// Categories contains both the metadata-derived and the predicted
	// categories; AnalyzedCategories is the subset contributed by the
	// classifier.
	Categories         []Category
	AnalyzedCategories []Category

	Embeddings []float32
}
