package publishers

import (
	"context"
	"errors"
	"fmt"
)

// Fanout dispatches a content event to every configured downstream sink.
// Delivery is independent per sink: one sink failing never blocks the rest.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a dispatcher over the given publishers, dropping nil entries.
func NewFanout(pubs []Publisher) *Fanout {
	active := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p == nil {
			continue
		}
		active = append(active, p)
	}
	return &Fanout{publishers: active}
}

// Publish forwards the event to every sink and returns how many delivered it.
// Failures are aggregated into a single joined error.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.publishers) == 0 {
		return 0, nil
	}

	var errs []error
	delivered := 0
	for _, p := range f.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Size returns the number of active publishers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}
