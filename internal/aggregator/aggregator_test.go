package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/logger"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/storage"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/publishers"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/sources"
)

type fakeAdapter struct {
	name       string
	caps       []string
	cfgErr     error
	fetchErr   error
	records    []domain.ContentRecord
	configured []map[string]any
	fetches    int
	resets     int
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) Capabilities() []string { return f.caps }

func (f *fakeAdapter) Configure(opts map[string]any) error {
	if f.cfgErr != nil {
		return f.cfgErr
	}
	f.configured = append(f.configured, opts)
	return nil
}

func (f *fakeAdapter) Fetch(context.Context) ([]domain.ContentRecord, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]domain.ContentRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeAdapter) TestConnection(context.Context) error { return nil }
func (f *fakeAdapter) ResetThrottle()                       { f.resets++ }

type capturingSink struct {
	events []publishers.Event
	err    error
}

func (c *capturingSink) Publish(_ context.Context, evt publishers.Event) (int, error) {
	c.events = append(c.events, evt)
	if c.err != nil {
		return 0, c.err
	}
	return 1, nil
}

func testRecord(id, title string) domain.ContentRecord {
	return domain.ContentRecord{
		ID:         id,
		Source:     "adapter-reported",
		SourceType: "rss",
		Title:      title,
		Content:    title + " body",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		URL:        "https://example.com/" + id,
	}
}

func seedConfig(t *testing.T, store storage.Gateway, cfg domain.SourceConfiguration) {
	t.Helper()
	if err := store.SaveSourceConfig(cfg); err != nil {
		t.Fatalf("seed config %s: %v", cfg.Name, err)
	}
}

func newTestService(t *testing.T, adapters ...sources.Adapter) (*Service, storage.Gateway) {
	t.Helper()
	store := storage.NewMemoryGateway()
	svc := NewService(store, sources.NewRegistry(adapters...), nil, &logger.NopLogger{})
	return svc, store
}

func TestFetchAllSavesNewRecordsWithCanonicalSource(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First"), testRecord("r2", "Second")},
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{
		Name:       "tech-blog",
		SourceType: "rss",
		URL:        "https://example.com/feed.xml",
		Enabled:    true,
	})

	results := svc.FetchAll(context.Background())
	if got := results["tech-blog"]; got != 2 {
		t.Fatalf("expected 2 new records, got %d (results %v)", got, results)
	}

	saved, err := store.ContentRecord("r1")
	if err != nil || saved == nil {
		t.Fatalf("record r1 not saved: %v", err)
	}
	if saved.Source != "tech-blog" {
		t.Fatalf("record source should be the configuration name, got %q", saved.Source)
	}
	if saved.URL != "https://example.com/r1" {
		t.Fatalf("record url not preserved: %q", saved.URL)
	}

	meta, err := store.SourceMetadata("tech-blog")
	if err != nil || meta == nil {
		t.Fatalf("metadata missing: %v", err)
	}
	if meta.TotalItemsFetched != 2 || meta.LastItemCount != 2 {
		t.Fatalf("unexpected stats: %+v", meta)
	}
	if meta.LastFetchSuccess == nil {
		t.Fatalf("success timestamp not recorded")
	}
}

func TestFetchAllCountsOnlyNewRecords(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First"), testRecord("r2", "Second")},
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{
		Name:       "tech-blog",
		SourceType: "rss",
		Enabled:    true,
	})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if got := svc.FetchAll(context.Background())["tech-blog"]; got != 2 {
		t.Fatalf("first pass expected 2 new, got %d", got)
	}

	// Second pass returns the same items plus one unseen.
	adapter.records = append(adapter.records, testRecord("r3", "Third"))
	now = now.Add(10 * time.Minute)

	if got := svc.FetchAll(context.Background())["tech-blog"]; got != 1 {
		t.Fatalf("second pass expected 1 new, got %d", got)
	}

	// Raw totals keep counting every fetched item regardless of duplication.
	meta, _ := store.SourceMetadata("tech-blog")
	if meta.TotalItemsFetched != 5 {
		t.Fatalf("expected raw total 5, got %d", meta.TotalItemsFetched)
	}
	if meta.LastItemCount != 3 {
		t.Fatalf("expected last item count 3, got %d", meta.LastItemCount)
	}
}

func TestFetchAllSkipsSourcesNotYetDue(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First")},
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{
		Name:          "tech-blog",
		SourceType:    "rss",
		Enabled:       true,
		FetchInterval: 120,
	})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.FetchAll(context.Background())
	if adapter.fetches != 1 {
		t.Fatalf("expected initial fetch, got %d", adapter.fetches)
	}

	// Within the interval the source is skipped and omitted from results.
	now = now.Add(60 * time.Second)
	results := svc.FetchAll(context.Background())
	if _, present := results["tech-blog"]; present {
		t.Fatalf("skipped source should be absent from results, got %v", results)
	}
	if adapter.fetches != 1 {
		t.Fatalf("adapter fetched during cooldown, fetches=%d", adapter.fetches)
	}

	now = now.Add(61 * time.Second)
	if _, present := svc.FetchAll(context.Background())["tech-blog"]; !present {
		t.Fatalf("source should be due after the interval elapsed")
	}
	if adapter.fetches != 2 {
		t.Fatalf("expected second fetch, got %d", adapter.fetches)
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	failing := &fakeAdapter{
		name:     "rss",
		caps:     []string{"rss"},
		fetchErr: errors.New("connection refused"),
	}
	healthy := &fakeAdapter{
		name:    "hackernews",
		caps:    []string{"hackernews"},
		records: []domain.ContentRecord{testRecord("hn_1", "Story")},
	}
	svc, store := newTestService(t, failing, healthy)
	seedConfig(t, store, domain.SourceConfiguration{Name: "broken-feed", SourceType: "rss", Enabled: true})
	seedConfig(t, store, domain.SourceConfiguration{Name: "hn-front", SourceType: "hackernews", Enabled: true})

	results := svc.FetchAll(context.Background())
	if got := results["broken-feed"]; got != 0 {
		t.Fatalf("failed source should report 0, got %d", got)
	}
	if got := results["hn-front"]; got != 1 {
		t.Fatalf("healthy source should report 1, got %d", got)
	}

	meta, _ := store.SourceMetadata("broken-feed")
	if meta == nil || meta.ConsecutiveErrors != 1 {
		t.Fatalf("failure not recorded: %+v", meta)
	}
	if meta.LastError == "" {
		t.Fatalf("last error message missing")
	}
	if meta.LastFetchSuccess != nil {
		t.Fatalf("failed source must not record a success")
	}
}

func TestFetchAllConfigureFailureRecordsAttempt(t *testing.T) {
	adapter := &fakeAdapter{
		name:   "rss",
		caps:   []string{"rss"},
		cfgErr: errors.New("url is required"),
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{Name: "misconfigured", SourceType: "rss", Enabled: true})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	results := svc.FetchAll(context.Background())
	got, present := results["misconfigured"]
	if !present || got != 0 {
		t.Fatalf("configure failure should yield a zero entry, got %v", results)
	}
	if adapter.fetches != 0 {
		t.Fatalf("fetch must not run after configure failure")
	}

	meta, _ := store.SourceMetadata("misconfigured")
	if meta == nil {
		t.Fatalf("attempt was not persisted")
	}
	if !meta.LastFetchAttempt.Equal(now) {
		t.Fatalf("attempt time = %v, want %v", meta.LastFetchAttempt, now)
	}
	if meta.ConsecutiveErrors != 1 {
		t.Fatalf("configure failure not counted: %+v", meta)
	}

	// The recorded attempt means the broken source backs off on its normal
	// interval rather than being hammered every pass.
	now = now.Add(30 * time.Second)
	if _, present := svc.FetchAll(context.Background())["misconfigured"]; present {
		t.Fatalf("misconfigured source should cool down like any other")
	}
}

func TestFetchAllSkipsDisabledSources(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First")},
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{Name: "dormant", SourceType: "rss", Enabled: false})

	results := svc.FetchAll(context.Background())
	if len(results) != 0 {
		t.Fatalf("disabled source should produce no results, got %v", results)
	}
	if adapter.fetches != 0 || len(adapter.configured) != 0 {
		t.Fatalf("disabled source touched the adapter")
	}
	if meta, _ := store.SourceMetadata("dormant"); meta != nil {
		t.Fatalf("disabled source should not gain metadata")
	}
}

func TestFetchAllProcessesEachConfigOnce(t *testing.T) {
	first := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss", "atom"},
		records: []domain.ContentRecord{testRecord("r1", "First")},
	}
	second := &fakeAdapter{
		name:    "rss-alt",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r2", "Second")},
	}
	svc, store := newTestService(t, first, second)
	seedConfig(t, store, domain.SourceConfiguration{Name: "tech-blog", SourceType: "rss", Enabled: true})

	results := svc.FetchAll(context.Background())
	if got := results["tech-blog"]; got != 1 {
		t.Fatalf("expected 1 new record, got %d", got)
	}
	if first.fetches != 1 {
		t.Fatalf("first registered adapter should handle the source, fetches=%d", first.fetches)
	}
	if second.fetches != 0 {
		t.Fatalf("config processed twice, second adapter fetches=%d", second.fetches)
	}
}

func TestFetchAllResetsAdapterThrottle(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First")},
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{Name: "tech-blog", SourceType: "rss", Enabled: true})

	svc.FetchAll(context.Background())
	if adapter.resets != 1 {
		t.Fatalf("throttle should be reset before the fetch, resets=%d", adapter.resets)
	}
}

func TestFetchAllPassesMergedAdapterOptions(t *testing.T) {
	adapter := &fakeAdapter{name: "rss", caps: []string{"rss"}}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{
		Name:          "tech-blog",
		SourceType:    "rss",
		URL:           "https://example.com/feed.xml",
		Enabled:       true,
		FetchInterval: 300,
		Config:        map[string]any{"max_items": 10},
	})

	svc.FetchAll(context.Background())
	if len(adapter.configured) != 1 {
		t.Fatalf("expected one configure call, got %d", len(adapter.configured))
	}
	opts := adapter.configured[0]
	if opts["url"] != "https://example.com/feed.xml" {
		t.Fatalf("url option missing: %v", opts)
	}
	if opts["fetch_interval"] != 300 {
		t.Fatalf("fetch_interval option missing: %v", opts)
	}
	if opts["max_items"] != 10 {
		t.Fatalf("custom option missing: %v", opts)
	}
}

func TestFetchAllPublishesOnlyNewRecords(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First")},
	}
	store := storage.NewMemoryGateway()
	sink := &capturingSink{}
	svc := NewService(store, sources.NewRegistry(adapter), sink, &logger.NopLogger{})
	seedConfig(t, store, domain.SourceConfiguration{Name: "tech-blog", SourceType: "rss", Enabled: true})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.FetchAll(context.Background())
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(sink.events))
	}
	evt := sink.events[0]
	if evt.SourceName != "tech-blog" || evt.Record.ID != "r1" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	// A repeat of the same record is an upsert, not a new event.
	now = now.Add(10 * time.Minute)
	svc.FetchAll(context.Background())
	if len(sink.events) != 1 {
		t.Fatalf("duplicate record must not be re-published, events=%d", len(sink.events))
	}
}

func TestFetchAllPublishFailureDoesNotAffectCounts(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "rss",
		caps:    []string{"rss"},
		records: []domain.ContentRecord{testRecord("r1", "First")},
	}
	store := storage.NewMemoryGateway()
	sink := &capturingSink{err: errors.New("sink offline")}
	svc := NewService(store, sources.NewRegistry(adapter), sink, &logger.NopLogger{})
	seedConfig(t, store, domain.SourceConfiguration{Name: "tech-blog", SourceType: "rss", Enabled: true})

	results := svc.FetchAll(context.Background())
	if got := results["tech-blog"]; got != 1 {
		t.Fatalf("publish failures must not change counts, got %d", got)
	}

	meta, _ := store.SourceMetadata("tech-blog")
	if meta.ConsecutiveErrors != 0 {
		t.Fatalf("publish failure must not mark the source failed: %+v", meta)
	}
}

func TestFetchAllSuccessResetsErrorStreak(t *testing.T) {
	adapter := &fakeAdapter{
		name:     "rss",
		caps:     []string{"rss"},
		fetchErr: errors.New("temporarily down"),
	}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{Name: "tech-blog", SourceType: "rss", Enabled: true})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.FetchAll(context.Background())
	now = now.Add(10 * time.Minute)
	svc.FetchAll(context.Background())

	meta, _ := store.SourceMetadata("tech-blog")
	if meta.ConsecutiveErrors != 2 {
		t.Fatalf("expected 2 consecutive errors, got %d", meta.ConsecutiveErrors)
	}

	adapter.fetchErr = nil
	adapter.records = []domain.ContentRecord{testRecord("r1", "Recovered")}
	now = now.Add(10 * time.Minute)
	svc.FetchAll(context.Background())

	meta, _ = store.SourceMetadata("tech-blog")
	if meta.ConsecutiveErrors != 0 || meta.ErrorCount != 0 {
		t.Fatalf("success should reset the error streak: %+v", meta)
	}
	if meta.LastFetchSuccess == nil || !meta.LastFetchSuccess.Equal(now) {
		t.Fatalf("success timestamp not updated: %+v", meta)
	}
}

func TestFetchAllStopsWhenContextCancelled(t *testing.T) {
	adapter := &fakeAdapter{name: "rss", caps: []string{"rss"}}
	svc, store := newTestService(t, adapter)
	seedConfig(t, store, domain.SourceConfiguration{Name: "tech-blog", SourceType: "rss", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.FetchAll(ctx)
	if len(results) != 0 {
		t.Fatalf("cancelled pass should return early, got %v", results)
	}
	if adapter.fetches != 0 {
		t.Fatalf("cancelled pass should not fetch")
	}
}
