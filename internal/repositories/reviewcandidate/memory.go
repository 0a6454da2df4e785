package reviewcandidate

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// Memory keeps the review queue in process, for runs without a database.
// It follows the Repository's ordering and conflict rules.
type Memory struct {
	mu       sync.RWMutex
	items    map[string]*models.ReviewCandidate
	runIndex map[string]string
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items:    make(map[string]*models.ReviewCandidate),
		runIndex: make(map[string]string),
		now:      time.Now,
	}
}

func runKey(runID string, index int) string {
	return fmt.Sprintf("%s/%d", runID, index)
}

func (m *Memory) CreateBatch(_ context.Context, candidates []*models.ReviewCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = models.ReviewStatusPending
		}
		if c.Candidates == nil {
			c.Candidates = []models.CandidateRef{}
		}

		key := runKey(c.RunID, c.RecordIndex)
		if _, queued := m.runIndex[key]; queued {
			continue
		}
		cp := *c
		m.items[c.ID] = &cp
		m.runIndex[key] = c.ID
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.ReviewCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.items[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review candidate %s not found", id))
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListPending(_ context.Context, runID string, limit int) ([]models.ReviewCandidate, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	m.mu.RLock()
	out := make([]models.ReviewCandidate, 0, len(m.items))
	for _, c := range m.items {
		if c.Status == models.ReviewStatusPending && (runID == "" || c.RunID == runID) {
			out = append(out, *c)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.ReviewCandidate) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(a.RecordIndex, b.RecordIndex),
		)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Resolve(_ context.Context, id string, res Resolution) error {
	if !res.Status.IsResolved() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "cannot resolve review candidate to status %s", res.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.items[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review candidate %s not found", id))
	}
	if c.Status != models.ReviewStatusPending {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("review candidate %s is already resolved", id))
	}

	now := m.now().UTC()
	c.Status = res.Status
	c.ChosenRefID = res.ChosenRefID
	c.CanonicalID = res.CanonicalID
	c.ResolvedBy = res.ResolvedBy
	c.ResolvedAt = &now
	c.UpdatedAt = now
	return nil
}

func (m *Memory) CountByStatus(_ context.Context) (map[models.ReviewStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[models.ReviewStatus]int)
	for _, c := range m.items {
		out[c.Status]++
	}
	return out, nil
}
