// Package events turns match and crosswalk outcomes into Kafka events
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	appctx "github.com/hollomancer/sbir-analytics-sub004/internal/context"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/kafka"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher sends events to the broker
type Publisher interface {
	PublishEvents(ctx context.Context, events []*kafka.Event) error
}

// Emitter builds and publishes resolution events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) event(ctx context.Context, eventType EventType, key string, payload any) (*kafka.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &kafka.Event{
		EventType: string(eventType),
		Key:       key,
		Source:    appctx.GetSource(ctx),
		RequestID: appctx.GetRequestID(ctx),
		Data:      data,
	}, nil
}

func (e *Emitter) publish(ctx context.Context, events []*kafka.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := e.publisher.PublishEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": events[0].EventType,
			"count":      len(events),
		}).Error("Failed to emit events")
		return err
	}
	return nil
}

// EmitBatch emits match.resolved for every accepted result of a batch run
func (e *Emitter) EmitBatch(ctx context.Context, runID string, records []models.InputRecord, results []models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatch")
	defer span.End()

	out := make([]*kafka.Event, 0, len(results))
	for i, res := range results {
		if !res.Method.IsAccepted() || res.Matched == nil {
			continue
		}
		payload := MatchResolvedEvent{
			BaseEvent:   NewBaseEvent(EventTypeMatchResolved),
			RunID:       runID,
			RecordIndex: i,
			Method:      res.Method,
			Score:       res.Score,
			RefID:       res.Matched.RefID,
		}
		if i < len(records) {
			payload.RecordID = records[i].RecordID
		}
		ev, err := e.event(ctx, EventTypeMatchResolved, runID, payload)
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	return e.publish(ctx, out)
}

// EmitReviewQueued emits match.review_queued for persisted review candidates
func (e *Emitter) EmitReviewQueued(ctx context.Context, candidates []*models.ReviewCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReviewQueued")
	defer span.End()

	out := make([]*kafka.Event, 0, len(candidates))
	for _, c := range candidates {
		ev, err := e.event(ctx, EventTypeMatchReviewQueued, c.RunID, ReviewQueuedEvent{
			BaseEvent:   NewBaseEvent(EventTypeMatchReviewQueued),
			ReviewID:    c.ID,
			RunID:       c.RunID,
			RecordIndex: c.RecordIndex,
			Score:       c.Score,
			Candidates:  c.Candidates,
		})
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	return e.publish(ctx, out)
}

// EmitCrosswalkChanges emits one event per committed crosswalk change
func (e *Emitter) EmitCrosswalkChanges(ctx context.Context, changes []crosswalk.Change) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCrosswalkChanges")
	defer span.End()

	out := make([]*kafka.Event, 0, len(changes))
	for _, ch := range changes {
		eventType := CrosswalkEventType(ch)
		ev, err := e.event(ctx, eventType, ch.CanonicalID, CrosswalkEvent{
			BaseEvent:   NewBaseEvent(eventType),
			CanonicalID: ch.CanonicalID,
			Cause:       ch.Cause,
			Record:      ch.Record,
		})
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	return e.publish(ctx, out)
}

// EmitImported emits crosswalk.imported after a snapshot replaces the crosswalk
func (e *Emitter) EmitImported(ctx context.Context, records int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitImported")
	defer span.End()

	ev, err := e.event(ctx, EventTypeCrosswalkImported, "crosswalk", ImportedEvent{
		BaseEvent: NewBaseEvent(EventTypeCrosswalkImported),
		Records:   records,
	})
	if err != nil {
		return err
	}
	return e.publish(ctx, []*kafka.Event{ev})
}

// CrosswalkEventType maps a change to its event type
func CrosswalkEventType(ch crosswalk.Change) EventType {
	if ch.Kind == crosswalk.ChangeRemoved {
		if ch.Cause == crosswalk.CauseAcquisition {
			return EventTypeCrosswalkAcquired
		}
		return EventTypeCrosswalkRemoved
	}
	switch ch.Cause {
	case crosswalk.CauseCreated:
		return EventTypeCrosswalkCreated
	case crosswalk.CauseAcquisition:
		return EventTypeCrosswalkAcquired
	case crosswalk.CauseAlias:
		return EventTypeCrosswalkAliasAdd
	default:
		return EventTypeCrosswalkMerged
	}
}

// ReviewCandidates converts a batch's review queue into persistable candidates
func ReviewCandidates(runID, source string, items []matching.ReviewItem) []*models.ReviewCandidate {
	out := make([]*models.ReviewCandidate, len(items))
	for i, item := range items {
		out[i] = &models.ReviewCandidate{
			RunID:       runID,
			RecordIndex: item.Index,
			Source:      source,
			Record:      item.Record,
			Score:       item.Score,
			Candidates:  models.NewCandidateRefs(item.Candidates),
			Status:      models.ReviewStatusPending,
		}
	}
	return out
}
