package sources

import (
	"strings"
	"sync"
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/httpclient"
)

// adapterRegistry implements Registry with a plain map over declared
// capability tags. Enumeration preserves registration order so scheduling
// passes are deterministic.
type adapterRegistry struct {
	mu     sync.RWMutex
	order  []Adapter
	byType map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. Every capability tag
// an adapter declares becomes a lookup key; the first adapter to claim a tag
// wins.
func NewRegistry(adapters ...Adapter) Registry {
	reg := &adapterRegistry{byType: make(map[string]Adapter)}
	for _, a := range adapters {
		reg.register(a)
	}
	return reg
}

func (r *adapterRegistry) register(a Adapter) {
	if a == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = append(r.order, a)
	for _, tag := range a.Capabilities() {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" {
			continue
		}
		if _, taken := r.byType[key]; !taken {
			r.byType[key] = a
		}
	}
}

// AdapterFor resolves the adapter serving the given source_type tag.
func (r *adapterRegistry) AdapterFor(sourceType string) (Adapter, bool) {
	key := strings.ToLower(strings.TrimSpace(sourceType))
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byType[key]
	return a, ok
}

// All returns the adapters in registration order.
func (r *adapterRegistry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultHTTPClient returns a tuned http client for adapters.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(15 * time.Second) }

// DefaultRegistry wires up the built-in source adapters.
func DefaultRegistry(client HTTPClient) Registry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	return NewRegistry(
		NewRSSAdapter(client),
		NewHackerNewsAdapter(client),
		NewRedditAdapter(nil),
		NewWebScraperAdapter(client),
	)
}
