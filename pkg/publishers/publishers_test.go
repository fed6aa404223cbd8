package publishers

import (
	"os"
	"path/filepath"
	"testing"
)

func writePublishersFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	path := writePublishersFile(t, "publishers.yaml", `
publishers:
  - id: queue-1
    type: sqs
    sqs:
      uri: https://sqs.example.com/queue
      region: us-east-1
  - id: alerts
    type: sns
    enabled: false
    sns:
      topic_arn: arn:aws:sns:::topic
      region: us-east-1
  - id: events
    type: pubsub
    pubsub:
      project_id: proj-1
      topic: content-events
  - id: hook
    type: http
    http:
      url: https://example.com/ingest
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := len(reg.All()); got != 4 {
		t.Fatalf("expected 4 publishers, got %d", got)
	}
	if got := len(reg.Enabled()); got != 3 {
		t.Fatalf("expected 3 enabled publishers, got %d", got)
	}

	hook, ok := reg.ByID("hook")
	if !ok {
		t.Fatalf("hook publisher missing")
	}
	if hook.HTTP.Method != "POST" {
		t.Fatalf("expected default method POST, got %s", hook.HTTP.Method)
	}
	if hook.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("expected default timeout, got %d", hook.HTTP.TimeoutSeconds)
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing sqs section", "publishers:\n  - id: q\n    type: sqs\n"},
		{"missing sns topic", "publishers:\n  - id: a\n    type: sns\n    sns:\n      region: us-east-1\n"},
		{"missing pubsub project", "publishers:\n  - id: p\n    type: pubsub\n    pubsub:\n      topic: t\n"},
		{"duplicate id", "publishers:\n  - id: h\n    type: http\n    http:\n      url: https://a\n  - id: h\n    type: http\n    http:\n      url: https://b\n"},
		{"empty list", "publishers: []\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writePublishersFile(t, "publishers.yaml", tc.content)
			if _, err := LoadRegistry(path); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}
