package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

// sourcesFile is the on-disk shape of the sources registry (YAML or JSON).
type sourcesFile struct {
	Sources []sourceEntry `json:"sources" yaml:"sources"`
}

// sourceEntry mirrors domain.SourceConfiguration but keeps enabled optional,
// defaulting to true when omitted.
type sourceEntry struct {
	Name          string         `json:"name" yaml:"name"`
	SourceType    string         `json:"source_type" yaml:"source_type"`
	URL           string         `json:"url" yaml:"url"`
	Enabled       *bool          `json:"enabled" yaml:"enabled"`
	FetchInterval int            `json:"fetch_interval" yaml:"fetch_interval"`
	Tags          []string       `json:"tags" yaml:"tags"`
	Config        map[string]any `json:"config" yaml:"config"`
}

func (e sourceEntry) toConfig() domain.SourceConfiguration {
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	return domain.SourceConfiguration{
		Name:          e.Name,
		SourceType:    e.SourceType,
		URL:           e.URL,
		Enabled:       enabled,
		FetchInterval: e.FetchInterval,
		Tags:          e.Tags,
		Config:        e.Config,
	}
}

// LoadSourcesFile reads source configurations from a YAML/JSON file,
// sanitizing and validating each entry and rejecting duplicate names.
func LoadSourcesFile(path string) ([]domain.SourceConfiguration, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sources file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	parsed, err := parseSourcesFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	seen := make(map[string]struct{}, len(parsed.Sources))
	out := make([]domain.SourceConfiguration, 0, len(parsed.Sources))
	for i, entry := range parsed.Sources {
		cfg := entry.toConfig().Sanitize()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := seen[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate source name %q", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
		out = append(out, cfg)
	}

	return out, nil
}

func parseSourcesFile(data []byte, ext string) (sourcesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yamlUnmarshal},
		{name: "yaml", ext: ".yml", fn: yamlUnmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed sourcesFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return sourcesFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func yamlUnmarshal(data []byte, out any) error { return yaml.Unmarshal(data, out) }
