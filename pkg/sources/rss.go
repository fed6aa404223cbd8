package sources

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/logger"
)

const (
	AdapterRSS    = "rss"
	sourceTypeRSS = "rss"
)

// rssAdapter fetches RSS and Atom feeds via gofeed.
type rssAdapter struct {
	client   HTTPClient
	throttle Throttle
	now      func() time.Time

	mu      sync.Mutex
	url     string
	headers map[string]string
}

// NewRSSAdapter builds the RSS/Atom source adapter.
func NewRSSAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &rssAdapter{client: client, now: time.Now}
}

func (a *rssAdapter) Name() string { return AdapterRSS }

func (a *rssAdapter) Capabilities() []string { return []string{"rss", "atom", "xml"} }

// Configure requires an http(s) url; fetch_interval feeds the local throttle.
func (a *rssAdapter) Configure(opts map[string]any) error {
	url := OptionString(opts, ConfigURLKey, "")
	if url == "" {
		return fmt.Errorf("rss adapter requires a url")
	}
	if !isHTTPURL(url) {
		return fmt.Errorf("rss adapter url %q must be http or https", url)
	}

	a.mu.Lock()
	a.url = url
	a.headers = OptionHeaders(opts)
	a.mu.Unlock()

	interval := OptionInt(opts, ConfigFetchIntervalKey, domain.DefaultFetchInterval)
	a.throttle.SetInterval(time.Duration(interval) * time.Second)
	return nil
}

func (a *rssAdapter) ResetThrottle() { a.throttle.Reset() }

func (a *rssAdapter) Fetch(ctx context.Context) ([]domain.ContentRecord, error) {
	a.mu.Lock()
	url, headers := a.url, a.headers
	a.mu.Unlock()

	if url == "" {
		return nil, fmt.Errorf("rss adapter is not configured")
	}

	now := a.now()
	if !a.throttle.Due(now) {
		return []domain.ContentRecord{}, nil
	}

	body, err := fetchBody(ctx, a.client, url, "rss feed", headers)
	if err != nil {
		a.throttle.Failure(now)
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		a.throttle.Failure(now)
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	records := make([]domain.ContentRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		rec, err := a.recordFromItem(feed, item, url, now)
		if err != nil {
			logger.WarnObj("rss entry skipped", "rss_entry_error", map[string]any{
				"feed":  url,
				"error": err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	a.throttle.Success(now)
	return records, nil
}

func (a *rssAdapter) recordFromItem(feed *gofeed.Feed, item *gofeed.Item, feedURL string, now time.Time) (domain.ContentRecord, error) {
	id := firstNonEmpty(item.GUID, item.Link)
	if id == "" {
		return domain.ContentRecord{}, fmt.Errorf("entry has neither guid nor link")
	}

	ts := now
	if item.PublishedParsed != nil {
		ts = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		ts = *item.UpdatedParsed
	}

	content := firstNonEmpty(item.Content, item.Description, item.Title)

	rec, err := domain.NewContentRecord(
		id,
		firstNonEmpty(feed.Title, feedURL),
		sourceTypeRSS,
		firstNonEmpty(item.Title, "No Title"),
		content,
		ts,
		firstNonEmpty(item.Link, feedURL),
	)
	if err != nil {
		return domain.ContentRecord{}, err
	}

	if item.Author != nil {
		rec.Author = item.Author.Name
	}
	for _, cat := range item.Categories {
		if cat != "" {
			rec.Tags = append(rec.Tags, cat)
		}
	}
	seen := make(map[string]struct{})
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			if _, dup := seen[enc.URL]; dup {
				continue
			}
			seen[enc.URL] = struct{}{}
			rec.MediaURLs = append(rec.MediaURLs, enc.URL)
		}
	}
	// gofeed mirrors image enclosures into item.Image; skip it when already
	// collected above.
	if item.Image != nil && item.Image.URL != "" {
		if _, dup := seen[item.Image.URL]; !dup {
			rec.MediaURLs = append(rec.MediaURLs, item.Image.URL)
		}
	}
	rec.Metadata["feed_url"] = feedURL

	return rec, nil
}

func (a *rssAdapter) TestConnection(ctx context.Context) error {
	a.mu.Lock()
	url, headers := a.url, a.headers
	a.mu.Unlock()

	if url == "" {
		return fmt.Errorf("rss adapter is not configured")
	}
	return probeURL(ctx, a.client, url, headers)
}
