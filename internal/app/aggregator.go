package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/aggregator"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/config"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/logger"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/storage"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/httpclient"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/publishers"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/sources"
)

// Aggregator represents the content aggregation runtime. It owns the poll
// loop, coordinating between the source adapters, the fetch service, and the
// downstream publishers. It also handles storage initialization and cleanup.
type Aggregator struct {
	cfg          *config.Config
	fanout       *publishers.Fanout
	fetchService *aggregator.Service
	pollInterval time.Duration
	log          logger.Logger
	store        storage.Gateway
	sourceCount  int
}

// NewAggregator builds the runtime from config files. The sources file is
// seeded into the storage gateway so a pass reads configurations from one
// place regardless of how they arrived.
func NewAggregator(ctx context.Context, cfg *config.Config, log logger.Logger) (*Aggregator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sourceCfgs, err := sources.LoadSourcesFile(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources file: %w", err)
	}
	sourceNames := make([]string, 0, len(sourceCfgs))
	for _, sc := range sourceCfgs {
		sourceNames = append(sourceNames, sc.Name)
	}
	log.InfoObj("sources file loaded", "sources_meta", map[string]any{
		"count": len(sourceNames),
		"names": sourceNames,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}

	pubRegistry := publishers.DefaultRegistry()
	pubClients, err := publishers.BuildAll(ctx, pubRegistry, enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	store, err := storage.NewGateway(cfg.StorageType, cfg.BBoltPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.BBoltPath,
	})

	for _, sc := range sourceCfgs {
		if err := store.SaveSourceConfig(sc); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("seed source %q: %w", sc.Name, err)
		}
	}

	registry := sources.DefaultRegistry(httpclient.NewRestyClient(cfg.HTTPTimeout))
	fetchService := aggregator.NewService(store, registry, fanout, log)

	return &Aggregator{
		cfg:          cfg,
		fanout:       fanout,
		fetchService: fetchService,
		pollInterval: cfg.PollInterval,
		log:          log,
		store:        store,
		sourceCount:  len(sourceCfgs),
	}, nil
}

// Run starts the poll loop until the context is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	if a == nil || a.fetchService == nil {
		return fmt.Errorf("aggregator is not initialized")
	}
	defer a.closeStore()

	if a.sourceCount == 0 {
		a.log.WarnObj("no sources configured; aggregator idle", "sources_file", a.cfg.SourcesFile)
		<-ctx.Done()
		return ctx.Err()
	}

	a.log.InfoObj("aggregator loop starting", "aggregator_state", map[string]any{
		"sources_count":    a.sourceCount,
		"publishers_count": a.fanout.Size(),
		"poll_interval":    a.pollInterval.String(),
	})

	a.runOnce(ctx)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.InfoObj("aggregator loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

// runOnce performs a single fetch pass across all due sources.
func (a *Aggregator) runOnce(ctx context.Context) {
	start := time.Now()
	a.log.InfoObj("fetch pass started", "pass_meta", map[string]any{
		"started_at": start.UTC(),
	})

	results := a.fetchService.FetchAll(ctx)
	newTotal := 0
	for _, n := range results {
		newTotal += n
	}

	a.log.InfoObj("fetch pass completed", "pass_meta", map[string]any{
		"sources_processed": len(results),
		"items_new":         newTotal,
		"elapsed_ms":        time.Since(start).Milliseconds(),
	})
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (a *Aggregator) closeStore() {
	if a == nil || a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.ErrorObj("storage close failed", "error", err)
	}
}
