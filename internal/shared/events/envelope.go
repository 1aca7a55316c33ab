package events

import (
	"encoding/json"
	"time"
)

// Envelope is the shared event shape used in clipfeed.
// Fanout and ingestion messages both travel in this frame; Data carries the
// kind-specific body and is decoded by the consuming handler.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SourceService string          `json:"source_service"`
	OccurredAtUTC time.Time       `json:"occurred_at_utc"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Data          json.RawMessage `json:"data"`
}
