package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

// Package storage provides the persistence gateway for content records,
// source configurations, and per-source runtime metadata.

// Gateway is the store surface the aggregator depends on. Lookups return
// (nil, nil) when the key is absent; saves have upsert semantics.
type Gateway interface {
	Close() error

	ContentRecord(id string) (*domain.ContentRecord, error)
	SaveContentRecord(rec domain.ContentRecord) error

	SourceConfigs() ([]domain.SourceConfiguration, error)
	SourceConfigsByType(sourceType string) ([]domain.SourceConfiguration, error)
	SaveSourceConfig(cfg domain.SourceConfiguration) error

	SourceMetadata(sourceID string) (*domain.SourceMetadata, error)
	SaveSourceMetadata(meta domain.SourceMetadata) error
}

// NewGateway creates the configured storage backend.
func NewGateway(typ, path string) (Gateway, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "memory":
		return NewMemoryGateway(), nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// memoryGateway is a map-backed Gateway used by tests and the "memory"
// storage type.
type memoryGateway struct {
	mu      sync.RWMutex
	records map[string]domain.ContentRecord
	configs map[string]domain.SourceConfiguration
	meta    map[string]domain.SourceMetadata
}

// NewMemoryGateway builds an empty in-memory store.
func NewMemoryGateway() Gateway {
	return &memoryGateway{
		records: make(map[string]domain.ContentRecord),
		configs: make(map[string]domain.SourceConfiguration),
		meta:    make(map[string]domain.SourceMetadata),
	}
}

func (m *memoryGateway) Close() error { return nil }

func (m *memoryGateway) ContentRecord(id string) (*domain.ContentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryGateway) SaveContentRecord(rec domain.ContentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.Normalize()
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

func (m *memoryGateway) SourceConfigs() ([]domain.SourceConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SourceConfiguration, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (m *memoryGateway) SourceConfigsByType(sourceType string) ([]domain.SourceConfiguration, error) {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SourceConfiguration
	for _, cfg := range m.configs {
		if cfg.SourceType == sourceType {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *memoryGateway) SaveSourceConfig(cfg domain.SourceConfiguration) error {
	cfg = cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.configs[cfg.Name] = cfg
	m.mu.Unlock()
	return nil
}

func (m *memoryGateway) SourceMetadata(sourceID string) (*domain.SourceMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[sourceID]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (m *memoryGateway) SaveSourceMetadata(meta domain.SourceMetadata) error {
	if strings.TrimSpace(meta.SourceID) == "" {
		return fmt.Errorf("source metadata requires a source_id")
	}
	m.mu.Lock()
	m.meta[meta.SourceID] = meta
	m.mu.Unlock()
	return nil
}
