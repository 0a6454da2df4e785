package resolver

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
)

const (
	changeBuffer    = 1024
	dispatchTimeout = 30 * time.Second
)

// observe runs after every committed crosswalk mutation, possibly on several
// goroutines at once
func (s *Service) observe(ch crosswalk.Change) {
	if s.recorder != nil {
		s.recorder.ObserveCrosswalkChange(ch)
		s.recorder.ObserveCrosswalkSize(s.crosswalk.Len())
	}
	if s.changes == nil {
		return
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		s.logger.WithFields(map[string]any{
			"seq":          ch.Seq,
			"canonical_id": ch.CanonicalID,
		}).Warn("Crosswalk change dropped after close")
		return
	}
	s.changes <- ch
}

// dispatch applies changes to mirrors and events in commit order. Changes
// arriving ahead of their turn wait until every earlier sequence number has
// been applied.
func (s *Service) dispatch() {
	defer s.dispatchW.Done()

	pending := make(map[uint64]crosswalk.Change)
	next := uint64(1)
	for ch := range s.changes {
		pending[ch.Seq] = ch
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			s.applyWithTimeout(ready)
		}
	}

	// changes dropped after close leave gaps; the rest still go out in order
	for _, seq := range slices.Sorted(maps.Keys(pending)) {
		s.applyWithTimeout(pending[seq])
	}
}

func (s *Service) applyWithTimeout(ch crosswalk.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	s.apply(ctx, ch)
}

func (s *Service) apply(ctx context.Context, ch crosswalk.Change) {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"seq":          ch.Seq,
		"canonical_id": ch.CanonicalID,
		"kind":         ch.Kind,
		"cause":        ch.Cause,
	})

	if ch.Kind == crosswalk.ChangeReplaced {
		for _, m := range s.mirrors {
			if err := replaceMirror(ctx, m, ch.Records); err != nil {
				log.WithError(err).Error("Failed to replace crosswalk mirror")
			}
		}
		if s.events != nil {
			if err := s.events.EmitImported(ctx, len(ch.Records)); err != nil {
				log.WithError(err).Warn("Failed to emit crosswalk imported event")
			}
		}
		return
	}

	for _, m := range s.mirrors {
		var err error
		if ch.Kind == crosswalk.ChangeRemoved {
			err = m.Delete(ctx, ch.CanonicalID)
		} else if ch.Record != nil {
			err = m.Upsert(ctx, ch.Record)
		}
		if err != nil {
			log.WithError(err).Error("Failed to mirror crosswalk change")
		}
	}

	if s.events != nil {
		if err := s.events.EmitCrosswalkChanges(ctx, []crosswalk.Change{ch}); err != nil {
			log.WithError(err).Error("Failed to emit crosswalk change")
		}
	}
}

// Close drains pending crosswalk changes to the mirrors
func (s *Service) Close(ctx context.Context) error {
	if s.changes == nil {
		return nil
	}

	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.changes)
	}
	s.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.dispatchW.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
