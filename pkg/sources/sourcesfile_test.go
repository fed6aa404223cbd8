package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadSourcesFileYAML(t *testing.T) {
	path := writeTempFile(t, "sources.yaml", `
sources:
  - name: feed1
    source_type: rss
    url: https://example.com/rss
    fetch_interval: 300
    tags: [news]
  - name: hn
    source_type: hackernews
    enabled: false
    config:
      max_items: 25
`)

	cfgs, err := LoadSourcesFile(path)
	if err != nil {
		t.Fatalf("LoadSourcesFile: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfgs))
	}

	feed := cfgs[0]
	if feed.Name != "feed1" || feed.SourceType != "rss" || !feed.Enabled {
		t.Fatalf("first source wrong (enabled should default true): %+v", feed)
	}
	if feed.FetchInterval != 300 {
		t.Fatalf("fetch interval wrong: %d", feed.FetchInterval)
	}

	hn := cfgs[1]
	if hn.Enabled {
		t.Fatalf("explicit enabled: false ignored")
	}
	if hn.Config["max_items"] != 25 {
		t.Fatalf("adapter config lost: %v", hn.Config)
	}
}

func TestLoadSourcesFileJSON(t *testing.T) {
	path := writeTempFile(t, "sources.json",
		`{"sources": [{"name": "feed1", "source_type": "rss", "url": "https://example.com/rss"}]}`)

	cfgs, err := LoadSourcesFile(path)
	if err != nil {
		t.Fatalf("LoadSourcesFile: %v", err)
	}
	if len(cfgs) != 1 || cfgs[0].FetchInterval != 300 {
		t.Fatalf("json sources not loaded with defaults: %+v", cfgs)
	}
}

func TestLoadSourcesFileRejectsDuplicateNames(t *testing.T) {
	path := writeTempFile(t, "sources.yaml", `
sources:
  - name: feed1
    source_type: rss
  - name: feed1
    source_type: hackernews
`)

	_, err := LoadSourcesFile(path)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestLoadSourcesFileRejectsInvalidEntries(t *testing.T) {
	path := writeTempFile(t, "sources.yaml", `
sources:
  - source_type: rss
`)

	if _, err := LoadSourcesFile(path); err == nil {
		t.Fatalf("expected validation error for missing name")
	}

	empty := writeTempFile(t, "empty.yaml", "sources: []\n")
	if _, err := LoadSourcesFile(empty); err == nil {
		t.Fatalf("expected error for empty sources list")
	}
}
