package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

const (
	recordBucket = "content_records"
	configBucket = "source_configs"
	metaBucket   = "source_metadata"
)

// boltGateway implements Gateway backed by BoltDB. Values are JSON-encoded;
// record URLs survive round-trips byte for byte because encoding/json leaves
// string bytes untouched.
type boltGateway struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Gateway, creating buckets as needed.
func openBolt(path string) (Gateway, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{recordBucket, configBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltGateway{db: db}, nil
}

// Close closes the underlying BoltDB handle.
func (b *boltGateway) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ContentRecord fetches a record by id; (nil, nil) when absent.
func (b *boltGateway) ContentRecord(id string) (*domain.ContentRecord, error) {
	var rec *domain.ContentRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(recordBucket)).Get([]byte(id))
		if value == nil {
			return nil
		}
		var decoded domain.ContentRecord
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("decode content record %q: %w", id, err)
		}
		rec = &decoded
		return nil
	})
	return rec, err
}

// SaveContentRecord upserts a record by id.
func (b *boltGateway) SaveContentRecord(rec domain.ContentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.Normalize()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode content record %q: %w", rec.ID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordBucket)).Put([]byte(rec.ID), payload)
	})
}

// SourceConfigs returns every stored source configuration.
func (b *boltGateway) SourceConfigs() ([]domain.SourceConfiguration, error) {
	return b.scanConfigs(func(domain.SourceConfiguration) bool { return true })
}

// SourceConfigsByType returns configurations whose source_type matches.
func (b *boltGateway) SourceConfigsByType(sourceType string) ([]domain.SourceConfiguration, error) {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	return b.scanConfigs(func(cfg domain.SourceConfiguration) bool {
		return cfg.SourceType == sourceType
	})
}

func (b *boltGateway) scanConfigs(keep func(domain.SourceConfiguration) bool) ([]domain.SourceConfiguration, error) {
	var out []domain.SourceConfiguration
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(configBucket)).ForEach(func(k, v []byte) error {
			var cfg domain.SourceConfiguration
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("decode source config %q: %w", string(k), err)
			}
			if keep(cfg) {
				out = append(out, cfg)
			}
			return nil
		})
	})
	return out, err
}

// SaveSourceConfig upserts a configuration keyed by name, after sanitizing
// and validating it.
func (b *boltGateway) SaveSourceConfig(cfg domain.SourceConfiguration) error {
	cfg = cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode source config %q: %w", cfg.Name, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(configBucket)).Put([]byte(cfg.Name), payload)
	})
}

// SourceMetadata fetches the stats row for a source; (nil, nil) when the
// source has never been attempted.
func (b *boltGateway) SourceMetadata(sourceID string) (*domain.SourceMetadata, error) {
	var meta *domain.SourceMetadata
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(metaBucket)).Get([]byte(sourceID))
		if value == nil {
			return nil
		}
		var decoded domain.SourceMetadata
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("decode source metadata %q: %w", sourceID, err)
		}
		meta = &decoded
		return nil
	})
	return meta, err
}

// SaveSourceMetadata upserts the stats row keyed by source id.
func (b *boltGateway) SaveSourceMetadata(meta domain.SourceMetadata) error {
	if strings.TrimSpace(meta.SourceID) == "" {
		return fmt.Errorf("source metadata requires a source_id")
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode source metadata %q: %w", meta.SourceID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put([]byte(meta.SourceID), payload)
	})
}
