package events

import (
	"time"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeMatchResolved     EventType = "match.resolved"
	EventTypeMatchReviewQueued EventType = "match.review_queued"
	EventTypeCrosswalkCreated  EventType = "crosswalk.created"
	EventTypeCrosswalkMerged   EventType = "crosswalk.merged"
	EventTypeCrosswalkRemoved  EventType = "crosswalk.removed"
	EventTypeCrosswalkAcquired EventType = "crosswalk.acquisition"
	EventTypeCrosswalkAliasAdd EventType = "crosswalk.alias_added"
	EventTypeCrosswalkImported EventType = "crosswalk.imported"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
}

// MatchResolvedEvent is emitted for every accepted match of a batch
type MatchResolvedEvent struct {
	BaseEvent
	RunID       string             `json:"run_id"`
	RecordIndex int                `json:"record_index"`
	RecordID    string             `json:"record_id,omitempty"`
	Method      models.MatchMethod `json:"method"`
	Score       int                `json:"score"`
	RefID       string             `json:"ref_id"`
}

// ReviewQueuedEvent is emitted when a fuzzy_candidate result enters the review queue
type ReviewQueuedEvent struct {
	BaseEvent
	ReviewID    string                `json:"review_id"`
	RunID       string                `json:"run_id"`
	RecordIndex int                   `json:"record_index"`
	Score       int                   `json:"score"`
	Candidates  []models.CandidateRef `json:"candidates"`
}

// CrosswalkEvent is emitted after a committed crosswalk mutation
type CrosswalkEvent struct {
	BaseEvent
	CanonicalID string                  `json:"canonical_id"`
	Cause       string                  `json:"cause"`
	Record      *models.CrosswalkRecord `json:"record,omitempty"`
}

// ImportedEvent is emitted after a snapshot import replaces the crosswalk
type ImportedEvent struct {
	BaseEvent
	Records int `json:"records"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
	}
}
