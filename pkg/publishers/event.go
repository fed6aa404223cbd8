package publishers

import (
	"time"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

// Event represents the payload published downstream for a newly collected
// content record.
type Event struct {
	SourceName  string               `json:"source_name"`
	SourceType  string               `json:"source_type"`
	Record      domain.ContentRecord `json:"record"`
	CollectedAt time.Time            `json:"collected_at"`
}

// NewEvent constructs an Event for the given source + record.
func NewEvent(sourceName, sourceType string, record domain.ContentRecord) Event {
	return Event{
		SourceName:  sourceName,
		SourceType:  sourceType,
		Record:      record,
		CollectedAt: time.Now().UTC(),
	}
}
