package scraper

import (
	"fmt"

	"github.com/beacon-news/analyzer/golang/pkg/jsonx"
)

// DoneNotification is one scraper-done event: the id of a freshly scraped
// document available in the scraper repository.
type DoneNotification struct {
	ID string `json:"id"`
}

// DecodeNotifications decodes a notification stream payload, which carries a
// JSON list of done notifications.
func DecodeNotifications(payload []byte) ([]string, error) {
	var notifications []DoneNotification
	if err := jsonx.Unmarshal(payload, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode scraper notifications: %w", err)
	}

	ids := make([]string, 0, len(notifications))
	for _, n := range notifications {
		if n.ID != "" {
			ids = append(ids, n.ID)
		}
	}
	return ids, nil
}
