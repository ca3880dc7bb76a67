// Package parser validates loosely-typed scraped documents into canonical articles.
package parser

import (
	"time"

	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/ports"
	"github.com/beacon-news/analyzer/golang/pkg/jsonx"
)

// timestampLayouts are the accepted publish_date formats, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parser maps scraped payloads to ScrapedArticles, rejecting payloads that
// miss mandatory fields. Rejects are logged and counted, never fatal.
type Parser struct {
	logger  ports.Logger
	metrics *domain.Metrics
}

// New creates a parser.
func New(logger ports.Logger, metrics *domain.Metrics) *Parser {
	return &Parser{
		logger:  logger.WithFields(ports.Field{Key: "component", Value: "parser"}),
		metrics: metrics,
	}
}

// Parse validates a single payload. It returns nil when the payload is
// rejected; the batch containing it continues without the document.
func (p *Parser) Parse(payload []byte) *domain.ScrapedArticle {
	var doc map[string]interface{}
	if err := jsonx.Unmarshal(payload, &doc); err != nil {
		return p.reject(payload, "payload is not a JSON object")
	}

	id, ok := stringField(doc, "id")
	if !ok {
		return p.reject(payload, "no 'id' in doc")
	}
	url, ok := stringField(doc, "url")
	if !ok {
		return p.reject(payload, "no 'url' in doc")
	}

	// metadata is optional
	meta := domain.ScrapedArticleMetadata{}
	if metadata, ok := doc["metadata"].(map[string]interface{}); ok {
		meta.Source, _ = stringField(metadata, "source")
		if rawCats, ok := metadata["categories"].([]interface{}); ok {
			for _, rawCat := range rawCats {
				if cat, ok := rawCat.(string); ok {
					meta.Categories = append(meta.Categories, cat)
				}
			}
		}
	}

	comps, ok := doc["components"].(map[string]interface{})
	if !ok {
		return p.reject(payload, "no 'components' in doc")
	}
	fragments, ok := comps["article"].([]interface{})
	if !ok {
		return p.reject(payload, "'components.article' is not an array")
	}

	// Should only contain one title and one paragraphs section, but just in case.
	var titles, paras, authors []string
	var publishDate time.Time
	var image string

	for _, rawFragment := range fragments {
		fragment, ok := rawFragment.(map[string]interface{})
		if !ok {
			continue
		}
		switch {
		case hasKey(fragment, "title"):
			if title, ok := stringField(fragment, "title"); ok {
				titles = append(titles, title)
			}
		case hasKey(fragment, "paragraphs"):
			rawParas, ok := fragment["paragraphs"].([]interface{})
			if !ok {
				return p.reject(payload, "'components.article.paragraphs' is not an array")
			}
			for _, rawPara := range rawParas {
				if para, ok := rawPara.(string); ok {
					paras = append(paras, para)
				}
			}
		case hasKey(fragment, "author"):
			switch v := fragment["author"].(type) {
			case string:
				authors = append(authors, v)
			case []interface{}:
				for _, rawAuthor := range v {
					if author, ok := rawAuthor.(string); ok {
						authors = append(authors, author)
					}
				}
			}
		case hasKey(fragment, "publish_date"):
			raw, ok := stringField(fragment, "publish_date")
			if !ok {
				return p.reject(payload, "'publish_date' is not a string")
			}
			parsed, err := parseTimestamp(raw)
			if err != nil {
				return p.reject(payload, "'publish_date' is not a valid timestamp")
			}
			// Minute resolution; the last occurrence wins.
			publishDate = parsed.Truncate(time.Minute)
		case hasKey(fragment, "image"):
			if img, ok := stringField(fragment, "image"); ok {
				image = img
			}
		}
	}

	// verify essential attributes
	if publishDate.IsZero() {
		return p.reject(payload, "'publish_date' not found in doc")
	}
	if len(titles) == 0 {
		return p.reject(payload, "'title' not found in doc")
	}
	if len(paras) == 0 {
		return p.reject(payload, "'paragraphs' not found in doc")
	}

	return &domain.ScrapedArticle{
		ID:          id,
		URL:         url,
		Metadata:    meta,
		PublishDate: publishDate,
		Image:       image,
		Author:      authors,
		Title:       titles,
		Paragraphs:  paras,
	}
}

func (p *Parser) reject(payload []byte, reason string) *domain.ScrapedArticle {
	p.metrics.PayloadsRejected.Add(1)
	p.logger.Error("skipping unparseable payload",
		ports.Field{Key: "reason", Value: reason},
		ports.Field{Key: "payload", Value: string(payload)},
	)
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func hasKey(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}
