package storage

import (
	"testing"
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

func openTestGateways(t *testing.T) map[string]Gateway {
	t.Helper()
	boltGw, err := NewGateway("bbolt", t.TempDir()+"/aggregator.db")
	if err != nil {
		t.Fatalf("open bbolt gateway: %v", err)
	}
	t.Cleanup(func() { boltGw.Close() })
	return map[string]Gateway{
		"bbolt":  boltGw,
		"memory": NewMemoryGateway(),
	}
}

func TestContentRecordUpsertAndRoundTrip(t *testing.T) {
	// URL with percent-escapes and query ordering that must survive untouched.
	const rawURL = "https://example.com/a%20b?z=1&a=%2Ffoo#frag"

	for name, gw := range openTestGateways(t) {
		t.Run(name, func(t *testing.T) {
			if rec, err := gw.ContentRecord("missing"); err != nil || rec != nil {
				t.Fatalf("lookup of missing id = (%v, %v), want (nil, nil)", rec, err)
			}

			rec := domain.ContentRecord{
				ID:         "a",
				Source:     "feed1",
				SourceType: "rss",
				Title:      "first",
				Content:    "body",
				Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				URL:        rawURL,
				Tags:       []string{"x"},
			}
			if err := gw.SaveContentRecord(rec); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := gw.ContentRecord("a")
			if err != nil || got == nil {
				t.Fatalf("lookup: (%v, %v)", got, err)
			}
			if got.URL != rawURL {
				t.Fatalf("url changed through round-trip: %q", got.URL)
			}
			if got.MediaURLs == nil || got.Metadata == nil || got.Embedding == nil {
				t.Fatalf("collections not normalized on save: %+v", got)
			}

			rec.Title = "replaced"
			if err := gw.SaveContentRecord(rec); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			got, err = gw.ContentRecord("a")
			if err != nil || got == nil || got.Title != "replaced" {
				t.Fatalf("upsert did not replace: %+v err=%v", got, err)
			}
		})
	}
}

func TestSaveContentRecordRejectsInvalid(t *testing.T) {
	for name, gw := range openTestGateways(t) {
		t.Run(name, func(t *testing.T) {
			err := gw.SaveContentRecord(domain.ContentRecord{ID: "a", Source: "s", SourceType: "rss", Title: "t"})
			if err == nil {
				t.Fatalf("expected validation error for empty url")
			}
		})
	}
}

func TestSourceConfigsByType(t *testing.T) {
	for name, gw := range openTestGateways(t) {
		t.Run(name, func(t *testing.T) {
			cfgs := []domain.SourceConfiguration{
				{Name: "feed1", SourceType: "rss", Enabled: true, FetchInterval: 300},
				{Name: "feed2", SourceType: "RSS", Enabled: false, FetchInterval: 600},
				{Name: "hn", SourceType: "hackernews", Enabled: true, FetchInterval: 300},
			}
			for _, cfg := range cfgs {
				if err := gw.SaveSourceConfig(cfg); err != nil {
					t.Fatalf("save config %s: %v", cfg.Name, err)
				}
			}

			rss, err := gw.SourceConfigsByType("rss")
			if err != nil {
				t.Fatalf("by type: %v", err)
			}
			if len(rss) != 2 {
				t.Fatalf("expected 2 rss configs, got %d", len(rss))
			}

			all, err := gw.SourceConfigs()
			if err != nil || len(all) != 3 {
				t.Fatalf("expected 3 configs, got %d err=%v", len(all), err)
			}
		})
	}
}

func TestSaveSourceConfigFloorsInterval(t *testing.T) {
	for name, gw := range openTestGateways(t) {
		t.Run(name, func(t *testing.T) {
			if err := gw.SaveSourceConfig(domain.SourceConfiguration{Name: "f", SourceType: "rss", FetchInterval: 5}); err != nil {
				t.Fatalf("save: %v", err)
			}
			cfgs, err := gw.SourceConfigsByType("rss")
			if err != nil || len(cfgs) != 1 {
				t.Fatalf("lookup: %v (%d)", err, len(cfgs))
			}
			if cfgs[0].FetchInterval != domain.MinFetchInterval {
				t.Fatalf("interval not floored at validation boundary: %d", cfgs[0].FetchInterval)
			}
		})
	}
}

func TestSourceMetadataRoundTrip(t *testing.T) {
	for name, gw := range openTestGateways(t) {
		t.Run(name, func(t *testing.T) {
			if meta, err := gw.SourceMetadata("feed1"); err != nil || meta != nil {
				t.Fatalf("missing metadata = (%v, %v), want (nil, nil)", meta, err)
			}

			attempt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			meta := domain.NewSourceMetadata("feed1", attempt)
			meta.RecordFailure(errTest("boom"))
			if err := gw.SaveSourceMetadata(meta); err != nil {
				t.Fatalf("save metadata: %v", err)
			}

			got, err := gw.SourceMetadata("feed1")
			if err != nil || got == nil {
				t.Fatalf("lookup: (%v, %v)", got, err)
			}
			if !got.LastFetchAttempt.Equal(attempt) || got.ErrorCount != 1 || got.LastError != "boom" {
				t.Fatalf("metadata mismatch: %+v", got)
			}
			if got.LastFetchSuccess != nil {
				t.Fatalf("success timestamp should be nil before first success")
			}

			if err := gw.SaveSourceMetadata(domain.SourceMetadata{}); err == nil {
				t.Fatalf("expected error for metadata without source_id")
			}
		})
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
