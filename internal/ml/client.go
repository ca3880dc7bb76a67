// Package ml provides HTTP clients for the model-serving collaborators.
package ml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/beacon-news/analyzer/golang/pkg/jsonx"
)

// maxErrorBodyBytes caps how much of an error response is echoed into logs.
const maxErrorBodyBytes = 1024

// postJSON sends a JSON request body and decodes a JSON response body.
func postJSON(ctx context.Context, client *http.Client, url string, request, response interface{}) error {
	body, err := jsonx.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		return fmt.Errorf("%s returned status %d: %s", url, res.StatusCode, string(snippet))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if err := jsonx.Unmarshal(data, response); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
