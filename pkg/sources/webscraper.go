package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

const (
	AdapterWebScraper = "web_scraper"

	sourceTypeHTML = "html"

	// maxHTMLBodyBytes caps parsed page size.
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
)

// webScraperAdapter extracts content items from a page using CSS selectors:
// every element matching content_selector becomes one record.
type webScraperAdapter struct {
	client   HTTPClient
	throttle Throttle
	now      func() time.Time

	mu              sync.Mutex
	url             string
	contentSelector string
	titleSelector   string
	headers         map[string]string
}

// NewWebScraperAdapter builds the CSS-selector scraping adapter.
func NewWebScraperAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &webScraperAdapter{client: client, now: time.Now}
}

func (a *webScraperAdapter) Name() string { return AdapterWebScraper }

func (a *webScraperAdapter) Capabilities() []string { return []string{"html", "web_scraper", "scraping"} }

func (a *webScraperAdapter) Configure(opts map[string]any) error {
	url := OptionString(opts, ConfigURLKey, "")
	if url == "" {
		return fmt.Errorf("web scraper requires a url")
	}
	if !isHTTPURL(url) {
		return fmt.Errorf("web scraper url %q must be http or https", url)
	}
	contentSelector := OptionString(opts, "content_selector", "")
	if contentSelector == "" {
		return fmt.Errorf("web scraper requires a content_selector")
	}

	a.mu.Lock()
	a.url = url
	a.contentSelector = contentSelector
	a.titleSelector = OptionString(opts, "title_selector", "title")
	a.headers = OptionHeaders(opts)
	a.mu.Unlock()

	interval := OptionInt(opts, ConfigFetchIntervalKey, domain.DefaultFetchInterval)
	a.throttle.SetInterval(time.Duration(interval) * time.Second)
	return nil
}

func (a *webScraperAdapter) ResetThrottle() { a.throttle.Reset() }

func (a *webScraperAdapter) Fetch(ctx context.Context) ([]domain.ContentRecord, error) {
	a.mu.Lock()
	url, contentSel, titleSel, headers := a.url, a.contentSelector, a.titleSelector, a.headers
	a.mu.Unlock()

	if url == "" || contentSel == "" {
		return nil, fmt.Errorf("web scraper is not configured")
	}

	now := a.now()
	if !a.throttle.Due(now) {
		return []domain.ContentRecord{}, nil
	}

	body, err := fetchBody(ctx, a.client, url, "page", headers)
	if err != nil {
		a.throttle.Failure(now)
		return nil, err
	}
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		a.throttle.Failure(now)
		return nil, fmt.Errorf("parse html %s: %w", url, err)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())

	var records []domain.ContentRecord
	doc.Find(contentSel).Each(func(i int, el *goquery.Selection) {
		content := strings.TrimSpace(el.Text())
		if content == "" {
			return
		}

		// Title selector is element-relative, with the page title as fallback.
		title := pageTitle
		if titleSel != "" {
			if node := el.Find(titleSel).First(); node.Length() > 0 {
				title = firstNonEmpty(strings.TrimSpace(node.Text()), pageTitle)
			}
		}

		snippet := content
		if len(snippet) > 50 {
			snippet = snippet[:50]
		}

		rec := domain.ContentRecord{
			ID:         fmt.Sprintf("%s#%d-%s", url, i, hashString(snippet)),
			Source:     url,
			SourceType: sourceTypeHTML,
			Title:      firstNonEmpty(title, "No Title"),
			Content:    content,
			Timestamp:  now,
			URL:        url,
			Metadata:   map[string]any{"selector": contentSel},
		}
		rec.Normalize()
		records = append(records, rec)
	})

	a.throttle.Success(now)
	if records == nil {
		records = []domain.ContentRecord{}
	}
	return records, nil
}

func (a *webScraperAdapter) TestConnection(ctx context.Context) error {
	a.mu.Lock()
	url, headers := a.url, a.headers
	a.mu.Unlock()

	if url == "" {
		return fmt.Errorf("web scraper is not configured")
	}
	return probeURL(ctx, a.client, url, headers)
}
