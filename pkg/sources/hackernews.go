package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/logger"
)

const (
	AdapterHackerNews = "hackernews"

	hackerNewsAPIBase = "https://hacker-news.firebaseio.com/v0"

	hackerNewsDefaultMaxItems = 20
	// hackerNewsMaxItemsCap bounds per-cycle item fetches so a generous config
	// cannot hammer the API.
	hackerNewsMaxItemsCap = 50
)

// hackerNewsAdapter fetches top stories from the Hacker News Firebase API.
type hackerNewsAdapter struct {
	client   HTTPClient
	throttle Throttle
	now      func() time.Time
	apiBase  string

	mu       sync.Mutex
	maxItems int
}

// NewHackerNewsAdapter builds the Hacker News source adapter.
func NewHackerNewsAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &hackerNewsAdapter{
		client:   client,
		now:      time.Now,
		apiBase:  hackerNewsAPIBase,
		maxItems: hackerNewsDefaultMaxItems,
	}
}

func (a *hackerNewsAdapter) Name() string { return AdapterHackerNews }

func (a *hackerNewsAdapter) Capabilities() []string { return []string{"hackernews", "tech"} }

func (a *hackerNewsAdapter) Configure(opts map[string]any) error {
	maxItems := OptionInt(opts, "max_items", hackerNewsDefaultMaxItems)
	if maxItems <= 0 {
		return fmt.Errorf("hackernews adapter max_items must be positive, got %d", maxItems)
	}
	if maxItems > hackerNewsMaxItemsCap {
		maxItems = hackerNewsMaxItemsCap
	}

	a.mu.Lock()
	a.maxItems = maxItems
	a.mu.Unlock()

	interval := OptionInt(opts, ConfigFetchIntervalKey, domain.DefaultFetchInterval)
	a.throttle.SetInterval(time.Duration(interval) * time.Second)
	return nil
}

func (a *hackerNewsAdapter) ResetThrottle() { a.throttle.Reset() }

type hackerNewsStory struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
}

func (a *hackerNewsAdapter) Fetch(ctx context.Context) ([]domain.ContentRecord, error) {
	a.mu.Lock()
	maxItems := a.maxItems
	a.mu.Unlock()

	now := a.now()
	if !a.throttle.Due(now) {
		return []domain.ContentRecord{}, nil
	}

	body, err := fetchBody(ctx, a.client, a.apiBase+"/topstories.json", "hackernews top stories", nil)
	if err != nil {
		a.throttle.Failure(now)
		return nil, err
	}

	var storyIDs []int
	if err := json.Unmarshal(body, &storyIDs); err != nil {
		a.throttle.Failure(now)
		return nil, fmt.Errorf("decode top stories: %w", err)
	}
	if len(storyIDs) > maxItems {
		storyIDs = storyIDs[:maxItems]
	}

	records := make([]domain.ContentRecord, 0, len(storyIDs))
	for _, sid := range storyIDs {
		story, err := a.fetchStory(ctx, sid)
		if err != nil {
			logger.WarnObj("hackernews item skipped", "hn_item_error", map[string]any{
				"story_id": sid,
				"error":    err.Error(),
			})
			continue
		}
		if story == nil || story.Type != "story" {
			continue
		}
		records = append(records, a.recordFromStory(story))
	}

	a.throttle.Success(now)
	return records, nil
}

func (a *hackerNewsAdapter) fetchStory(ctx context.Context, id int) (*hackerNewsStory, error) {
	body, err := fetchBody(ctx, a.client, fmt.Sprintf("%s/item/%d.json", a.apiBase, id), "hackernews item", nil)
	if err != nil {
		return nil, err
	}

	var story hackerNewsStory
	if err := json.Unmarshal(body, &story); err != nil {
		return nil, fmt.Errorf("decode item %d: %w", id, err)
	}
	if story.ID == 0 {
		return nil, nil
	}
	return &story, nil
}

func (a *hackerNewsAdapter) recordFromStory(story *hackerNewsStory) domain.ContentRecord {
	itemURL := story.URL
	if itemURL == "" {
		itemURL = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", story.ID)
	}

	ts := time.Unix(story.Time, 0)
	if story.Time == 0 {
		ts = a.now()
	}

	rec := domain.ContentRecord{
		ID:         fmt.Sprintf("hn_%d", story.ID),
		Source:     "Hacker News",
		SourceType: AdapterHackerNews,
		Title:      firstNonEmpty(story.Title, "No Title"),
		Content:    firstNonEmpty(story.Text, story.URL),
		Timestamp:  ts,
		URL:        itemURL,
		Author:     story.By,
		Tags:       []string{"tech", "hackernews"},
		Metadata: map[string]any{
			"score":       story.Score,
			"descendants": story.Descendants,
		},
	}
	rec.Normalize()
	return rec
}

func (a *hackerNewsAdapter) TestConnection(ctx context.Context) error {
	_, err := fetchBody(ctx, a.client, a.apiBase+"/maxitem.json", "hackernews maxitem", nil)
	return err
}
