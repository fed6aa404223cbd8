package sources

import (
	"context"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/httpclient"
)

// Adapter is the contract every source implementation satisfies. Adapters are
// stateless apart from their configured options and the local Throttle; the
// aggregator resets the throttle before each driven fetch so its own due-check
// stays authoritative.
type Adapter interface {
	// Name is the adapter's stable identifier, used in logs.
	Name() string
	// Capabilities lists the source_type tags this adapter serves.
	Capabilities() []string
	// Configure applies the merged source options; it returns an error for
	// invalid input and leaves previous settings untouched in that case.
	Configure(opts map[string]any) error
	// Fetch performs one fetch cycle. Ordinary per-item failures are absorbed
	// and logged; a hard failure (unreachable endpoint, unparseable payload)
	// is returned as an error.
	Fetch(ctx context.Context) ([]domain.ContentRecord, error)
	// TestConnection probes the configured endpoint without fetching content.
	TestConnection(ctx context.Context) error
	// ResetThrottle clears the adapter-local interval gate.
	ResetThrottle()
}

// Registry resolves adapters by source_type tag and enumerates them in
// registration order.
type Registry interface {
	AdapterFor(sourceType string) (Adapter, bool)
	All() []Adapter
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within adapters.
type HTTPClient = httpclient.Client
