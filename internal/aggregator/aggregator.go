package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/logger"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/storage"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/publishers"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/sources"
)

// EventPublisher forwards newly inserted records downstream. Publishing is
// best effort and never affects scheduling or counts.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Service drives periodic, deduplicated, failure-isolated fetching across all
// enabled source configurations. One scheduling pass processes sources
// strictly one at a time; a failure in one source never prevents another from
// being attempted. FetchAll is not safe for concurrent invocation with
// itself; callers run a single active pass at a time.
type Service struct {
	registry sources.Registry
	store    storage.Gateway
	events   EventPublisher
	log      logger.Logger
	now      func() time.Time
}

// NewService wires the aggregator with its persistence gateway, adapter
// registry, and optional downstream event publisher.
func NewService(store storage.Gateway, registry sources.Registry, events EventPublisher, log logger.Logger) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		registry: registry,
		store:    store,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// FetchAll triggers a fetch for every enabled source configuration that is
// due. It returns a mapping from configuration name to the count of newly
// inserted records; sources skipped as not-yet-due are absent, failed sources
// appear with a count of zero.
func (s *Service) FetchAll(ctx context.Context) map[string]int {
	results := make(map[string]int)
	processed := make(map[string]struct{})

	for _, adapter := range s.registry.All() {
		for _, tag := range adapter.Capabilities() {
			if ctx.Err() != nil {
				return results
			}

			cfgs, err := s.store.SourceConfigsByType(tag)
			if err != nil {
				s.log.ErrorObj("source config lookup failed", "config_lookup_error", map[string]any{
					"source_type": tag,
					"error":       err.Error(),
				})
				continue
			}

			for _, cfg := range cfgs {
				// A configuration is processed at most once per pass even
				// when it matches several capability tags.
				if _, done := processed[cfg.Name]; done {
					continue
				}
				processed[cfg.Name] = struct{}{}

				if !cfg.Enabled {
					continue
				}

				count, attempted := s.processSource(ctx, cfg, adapter)
				if attempted {
					results[cfg.Name] = count
				}
			}
		}
	}

	return results
}

// processSource runs the full pipeline for one source: due-check, attempt
// bookkeeping, configure, fetch, persist, stats update. The second return
// value is false for a scheduling skip (not due yet), which is distinct from
// a failed attempt (true with count 0). Every failure is absorbed here and
// reflected into the source's metadata.
func (s *Service) processSource(ctx context.Context, cfg domain.SourceConfiguration, adapter sources.Adapter) (int, bool) {
	meta, err := s.store.SourceMetadata(cfg.Name)
	if err != nil {
		s.log.ErrorObj("source metadata lookup failed", "metadata_error", map[string]any{
			"source": cfg.Name,
			"error":  err.Error(),
		})
		return 0, true
	}

	// Absent metadata means the source has never been attempted: due now.
	if meta != nil {
		nextFetch := meta.LastFetchAttempt.Add(cfg.Interval())
		if s.now().Before(nextFetch) {
			return 0, false
		}
	}

	s.log.InfoObj("fetching source", "fetch_meta", map[string]any{
		"source":      cfg.Name,
		"source_type": cfg.SourceType,
		"adapter":     adapter.Name(),
	})

	// Persist the attempt before touching the adapter so a crash mid-fetch
	// still shows an attempt occurred. A misconfigured source therefore backs
	// off on its normal interval instead of being retried every pass.
	attempt := s.now()
	if meta == nil {
		fresh := domain.NewSourceMetadata(cfg.Name, attempt)
		meta = &fresh
	} else {
		meta.LastFetchAttempt = attempt
	}
	if err := s.store.SaveSourceMetadata(*meta); err != nil {
		return s.failSource(cfg, meta, fmt.Errorf("record fetch attempt: %w", err))
	}

	if err := adapter.Configure(cfg.AdapterConfig()); err != nil {
		return s.failSource(cfg, meta, fmt.Errorf("configure adapter: %w", err))
	}

	// Scheduling authority belongs to the aggregator, not the adapter.
	adapter.ResetThrottle()

	records, err := adapter.Fetch(ctx)
	if err != nil {
		return s.failSource(cfg, meta, err)
	}

	newCount := s.saveRecords(ctx, records, cfg)

	meta.RecordSuccess(attempt, len(records))
	if err := s.store.SaveSourceMetadata(*meta); err != nil {
		s.log.ErrorObj("source metadata save failed", "metadata_error", map[string]any{
			"source": cfg.Name,
			"error":  err.Error(),
		})
	}

	s.log.InfoObj("source fetch completed", "fetch_result", map[string]any{
		"source":        cfg.Name,
		"items_fetched": len(records),
		"items_new":     newCount,
	})
	return newCount, true
}

// failSource records a failed attempt in the source's metadata and yields the
// processed-but-zero result. Failures never propagate past this boundary.
func (s *Service) failSource(cfg domain.SourceConfiguration, meta *domain.SourceMetadata, cause error) (int, bool) {
	s.log.ErrorObj("source processing failed", "source_error", map[string]any{
		"source": cfg.Name,
		"error":  cause.Error(),
	})

	meta.RecordFailure(cause)
	if err := s.store.SaveSourceMetadata(*meta); err != nil {
		s.log.ErrorObj("source metadata save failed", "metadata_error", map[string]any{
			"source": cfg.Name,
			"error":  err.Error(),
		})
	}
	return 0, true
}

// saveRecords persists fetched records with upsert semantics, counting only
// the genuinely new ones. Every record's source label is overwritten with the
// configuration's canonical name before the write; records that already exist
// are refreshed in place but not counted. Per-record persistence failures are
// logged and leave the record uncounted without failing the source.
func (s *Service) saveRecords(ctx context.Context, records []domain.ContentRecord, cfg domain.SourceConfiguration) int {
	count := 0
	for _, rec := range records {
		rec.Source = cfg.Name

		existing, err := s.store.ContentRecord(rec.ID)
		if err != nil {
			s.log.ErrorObj("record existence check failed", "record_error", map[string]any{
				"source":    cfg.Name,
				"record_id": rec.ID,
				"error":     err.Error(),
			})
			continue
		}

		if err := s.store.SaveContentRecord(rec); err != nil {
			s.log.ErrorObj("record save failed", "record_error", map[string]any{
				"source":    cfg.Name,
				"record_id": rec.ID,
				"error":     err.Error(),
			})
			continue
		}

		if existing == nil {
			count++
			s.publishRecord(ctx, cfg, rec)
		}
	}
	return count
}

// publishRecord fans a newly inserted record out to downstream sinks.
func (s *Service) publishRecord(ctx context.Context, cfg domain.SourceConfiguration, rec domain.ContentRecord) {
	if s.events == nil {
		return
	}

	evt := publishers.NewEvent(cfg.Name, cfg.SourceType, rec)
	if _, err := s.events.Publish(ctx, evt); err != nil {
		s.log.WarnObj("event publish failed", "publish_error", map[string]any{
			"source":    cfg.Name,
			"record_id": rec.ID,
			"error":     err.Error(),
		})
	}
}
