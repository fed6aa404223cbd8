package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain contains the shared data shapes passed between adapters, the
// aggregator, and storage.

// ContentRecord is the normalized unit of content produced by any source
// adapter. The aggregator overwrites Source with the owning configuration's
// name before persisting.
type ContentRecord struct {
	ID             string         `json:"id"`
	Source         string         `json:"source"`
	SourceType     string         `json:"source_type"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	URL            string         `json:"url"`
	Author         string         `json:"author,omitempty"`
	Tags           []string       `json:"tags"`
	MediaURLs      []string       `json:"media_urls"`
	Metadata       map[string]any `json:"metadata"`
	RelevanceScore float64        `json:"relevance_score"`
	Embedding      []float64      `json:"embedding"`
}

// NewContentRecord builds a record and enforces the required-field invariant:
// id, source, source_type, title, and url must all be non-empty.
func NewContentRecord(id, source, sourceType, title, content string, ts time.Time, url string) (ContentRecord, error) {
	rec := ContentRecord{
		ID:         id,
		Source:     source,
		SourceType: sourceType,
		Title:      title,
		Content:    content,
		Timestamp:  ts,
		URL:        url,
	}
	if err := rec.Validate(); err != nil {
		return ContentRecord{}, err
	}
	rec.Normalize()
	return rec, nil
}

// Validate checks the required-field invariant.
func (r ContentRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return errors.New("content record id cannot be empty")
	case strings.TrimSpace(r.Source) == "":
		return errors.New("content record source cannot be empty")
	case strings.TrimSpace(r.SourceType) == "":
		return errors.New("content record source_type cannot be empty")
	case strings.TrimSpace(r.Title) == "":
		return errors.New("content record title cannot be empty")
	case strings.TrimSpace(r.URL) == "":
		return errors.New("content record url cannot be empty")
	}
	return nil
}

// Normalize replaces nil collections with empty ones so stored records never
// round-trip null tags, media_urls, metadata, or embedding.
func (r *ContentRecord) Normalize() {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.MediaURLs == nil {
		r.MediaURLs = []string{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	if r.Embedding == nil {
		r.Embedding = []float64{}
	}
}

// MinFetchInterval is the floor applied to configured fetch intervals at the
// validation boundary.
const MinFetchInterval = 60

// DefaultFetchInterval is used when a configuration omits fetch_interval.
const DefaultFetchInterval = 300

// SourceConfiguration describes one source to poll. Name is the unique key
// across all configurations; the aggregator never mutates these.
type SourceConfiguration struct {
	Name          string         `json:"name" yaml:"name"`
	SourceType    string         `json:"source_type" yaml:"source_type"`
	URL           string         `json:"url,omitempty" yaml:"url"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	FetchInterval int            `json:"fetch_interval" yaml:"fetch_interval"`
	Tags          []string       `json:"tags" yaml:"tags"`
	Config        map[string]any `json:"config" yaml:"config"`
}

// Sanitize trims identity fields and fills defaults.
func (c SourceConfiguration) Sanitize() SourceConfiguration {
	c.Name = strings.TrimSpace(c.Name)
	c.SourceType = strings.ToLower(strings.TrimSpace(c.SourceType))
	c.URL = strings.TrimSpace(c.URL)
	if c.FetchInterval == 0 {
		c.FetchInterval = DefaultFetchInterval
	}
	if c.FetchInterval < MinFetchInterval {
		c.FetchInterval = MinFetchInterval
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Config == nil {
		c.Config = map[string]any{}
	}
	return c
}

// Validate checks the fields required for scheduling.
func (c SourceConfiguration) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.SourceType == "" {
		return fmt.Errorf("source_type is required for source %q", c.Name)
	}
	if c.FetchInterval < MinFetchInterval {
		return fmt.Errorf("fetch_interval for source %q must be at least %d seconds", c.Name, MinFetchInterval)
	}
	return nil
}

// Interval returns the fetch interval as a duration.
func (c SourceConfiguration) Interval() time.Duration {
	return time.Duration(c.FetchInterval) * time.Second
}

// AdapterConfig merges the adapter-specific options with the configuration's
// url and fetch_interval, the shape handed to Adapter.Configure.
func (c SourceConfiguration) AdapterConfig() map[string]any {
	merged := make(map[string]any, len(c.Config)+2)
	for k, v := range c.Config {
		merged[k] = v
	}
	if c.URL != "" {
		merged["url"] = c.URL
	}
	merged["fetch_interval"] = c.FetchInterval
	return merged
}

// SourceMetadata tracks runtime statistics and health per source, keyed by
// the configuration name. A row exists only after the first fetch attempt;
// absence means "never fetched".
type SourceMetadata struct {
	SourceID          string     `json:"source_id"`
	LastFetchAttempt  time.Time  `json:"last_fetch_attempt"`
	LastFetchSuccess  *time.Time `json:"last_fetch_success,omitempty"`
	LastItemCount     int        `json:"last_item_count"`
	TotalItemsFetched int        `json:"total_items_fetched"`
	ErrorCount        int        `json:"error_count"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	LastError         string     `json:"last_error,omitempty"`
}

// NewSourceMetadata creates the first metadata row for a source.
func NewSourceMetadata(sourceID string, attempt time.Time) SourceMetadata {
	return SourceMetadata{
		SourceID:         sourceID,
		LastFetchAttempt: attempt,
	}
}

// RecordSuccess applies the post-fetch bookkeeping for a successful attempt:
// raw item counts accumulate and the error streak resets.
func (m *SourceMetadata) RecordSuccess(at time.Time, itemCount int) {
	m.LastFetchSuccess = &at
	m.LastItemCount = itemCount
	m.TotalItemsFetched += itemCount
	m.ErrorCount = 0
	m.ConsecutiveErrors = 0
	m.LastError = ""
}

// RecordFailure applies the bookkeeping for a failed attempt.
func (m *SourceMetadata) RecordFailure(err error) {
	m.ErrorCount++
	m.ConsecutiveErrors++
	if err != nil {
		m.LastError = err.Error()
	}
}
