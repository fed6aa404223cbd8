package sources

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/httpclient"
)

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// fetchBody GETs the URL and returns the body, treating any non-200 status as
// an error with a snippet of the payload for diagnostics.
func fetchBody(ctx context.Context, client httpclient.Client, url, label string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", label, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d body: %s", label, resp.StatusCode(), responseSnippet(body))
	}

	return body, nil
}

// probeURL HEADs the URL, falling back to GET for endpoints that reject HEAD.
func probeURL(ctx context.Context, client httpclient.Client, url string, headers map[string]string) error {
	resp, err := client.Head(ctx, url, headers)
	if err == nil && resp.StatusCode() < http.StatusBadRequest {
		return nil
	}

	resp, err = client.Get(ctx, url, headers)
	if err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("probe %s: status %d", url, resp.StatusCode())
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
