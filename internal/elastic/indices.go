package elastic

import "fmt"

// articlesMappings returns the articles index mapping. The embeddings width
// is a deploy-time constant tied to the embeddings model; the topics section
// is reserved for the downstream topic modeler.
func articlesMappings(embeddingsDim int) string {
	return fmt.Sprintf(`{
  "mappings": {
    "properties": {
      "topics": {
        "properties": {
          "topic_ids": {"type": "keyword"},
          "topic_names": {"type": "text"}
        }
      },
      "analyzer": {
        "properties": {
          "category_ids": {"type": "keyword", "enabled": "false"},
          "embeddings": {"type": "dense_vector", "dims": %d}
        }
      },
      "article": {
        "properties": {
          "id": {"type": "keyword"},
          "url": {"type": "keyword"},
          "source": {
            "type": "text",
            "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}
          },
          "publish_date": {"type": "date"},
          "image": {"type": "keyword", "enabled": "false"},
          "author": {"type": "text"},
          "title": {"type": "text"},
          "paragraphs": {"type": "text"},
          "categories": {
            "properties": {
              "ids": {"type": "keyword"},
              "names": {
                "type": "text",
                "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}
              }
            }
          }
        }
      }
    }
  }
}`, embeddingsDim)
}

// categoriesMappings returns the categories index mapping.
func categoriesMappings() string {
	return `{
  "mappings": {
    "properties": {
      "name": {"type": "text"}
    }
  }
}`
}
