package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollomancer/sbir-analytics-sub004/internal/metrics"
	"github.com/hollomancer/sbir-analytics-sub004/internal/repositories/reviewcandidate"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, code, httperror.GetStatusCode(err))
}

type fakeReviewStore struct {
	mu    sync.Mutex
	items map[string]*models.ReviewCandidate
	order []string
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{items: make(map[string]*models.ReviewCandidate)}
}

func (f *fakeReviewStore) CreateBatch(_ context.Context, candidates []*models.ReviewCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		cp := *c
		f.items[c.ID] = &cp
		f.order = append(f.order, c.ID)
	}
	return nil
}

func (f *fakeReviewStore) Get(_ context.Context, id string) (*models.ReviewCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "review candidate %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeReviewStore) ListPending(_ context.Context, runID string, limit int) ([]models.ReviewCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReviewCandidate
	for _, id := range f.order {
		c := f.items[id]
		if c.Status != models.ReviewStatusPending || (runID != "" && c.RunID != runID) {
			continue
		}
		out = append(out, *c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeReviewStore) Resolve(_ context.Context, id string, res reviewcandidate.Resolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "review candidate %s not found", id)
	}
	if c.Status != models.ReviewStatusPending {
		return httperror.NewHTTPErrorf(http.StatusConflict, "review candidate %s is already resolved", id)
	}
	c.Status = res.Status
	c.ChosenRefID = res.ChosenRefID
	c.CanonicalID = res.CanonicalID
	c.ResolvedBy = res.ResolvedBy
	return nil
}

func (f *fakeReviewStore) CountByStatus(_ context.Context) (map[models.ReviewStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[models.ReviewStatus]int{}
	for _, c := range f.items {
		out[c.Status]++
	}
	return out, nil
}

type fakeMirror struct {
	mu  sync.Mutex
	ops []string
}

func (m *fakeMirror) Upsert(_ context.Context, rec *models.CrosswalkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "upsert:"+rec.CanonicalID)
	return nil
}

func (m *fakeMirror) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "delete:"+id)
	return nil
}

type replacingMirror struct {
	fakeMirror
	replaced []*models.CrosswalkRecord
}

func (m *replacingMirror) ReplaceAll(_ context.Context, recs []*models.CrosswalkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = recs
	return nil
}

type fakeEvents struct {
	mu       sync.Mutex
	batches  int
	accepted int
	queued   []*models.ReviewCandidate
	changes  []crosswalk.Change
	imported []int
}

func (e *fakeEvents) EmitBatch(_ context.Context, _ string, _ []models.InputRecord, results []models.MatchResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches++
	for _, r := range results {
		if r.Method.IsAccepted() {
			e.accepted++
		}
	}
	return nil
}

func (e *fakeEvents) EmitReviewQueued(_ context.Context, candidates []*models.ReviewCandidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queued = append(e.queued, candidates...)
	return nil
}

func (e *fakeEvents) EmitCrosswalkChanges(_ context.Context, changes []crosswalk.Change) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, changes...)
	return nil
}

func (e *fakeEvents) EmitImported(_ context.Context, records int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.imported = append(e.imported, records)
	return nil
}

func referenceOrgs() []models.OrganizationRef {
	return []models.OrganizationRef{
		{RefID: "r1", Name: "Acme Corporation", UEI: "ABC123", DUNS: "111111111", CAGE: "1A2B3"},
		{RefID: "r2", Name: "Smith Technologies", DUNS: "222222222"},
		{RefID: "r3", Name: "Beta Labs LLC", CAGE: "9Z8Y7"},
		{RefID: "r5", Name: "Quantum Dynamics Inc"},
	}
}

func newLoadedService(t *testing.T, cfg matching.Config, orgs []models.OrganizationRef, opts ...Option) *Service {
	t.Helper()
	s := New(matching.NewMatcher(cfg, testLogger()), testLogger(), opts...)
	_, err := s.LoadReferences(context.Background(), orgs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// reviewConfig scores "Smyth Tech" against "Smith Technologies" at 95
func reviewConfig() matching.Config {
	cfg := matching.DefaultConfig()
	cfg.ApplyAbbreviations = true
	cfg.EnablePhoneticMatching = true
	cfg.HighThreshold = 96
	return cfg
}

func TestMatchBeforeReferencesLoaded(t *testing.T) {
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger())
	assert.False(t, s.Ready())
	assert.Nil(t, s.Report())

	result := s.Match(context.Background(), models.InputRecord{Name: "Acme Corporation"})
	assert.Equal(t, models.MatchMethodNoCandidates, result.Method)
	assert.Nil(t, result.Matched)
}

func TestLoadReferences(t *testing.T) {
	m := metrics.New()
	s := newLoadedService(t, matching.DefaultConfig(), referenceOrgs(), WithRecorder(m))

	assert.True(t, s.Ready())
	require.NotNil(t, s.Report())
	assert.Equal(t, 4, s.Report().Organizations)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReferenceOrganizations))

	result := s.Match(context.Background(), models.InputRecord{Name: "whatever", UEI: "abc-123"})
	assert.Equal(t, models.MatchMethodUEIExact, result.Method)
	assert.Equal(t, "r1", result.MatchedRefID())
}

func TestRunBatchFoldsAcceptedMatches(t *testing.T) {
	s := newLoadedService(t, matching.DefaultConfig(), referenceOrgs())
	records := []models.InputRecord{
		{RecordID: "1", Name: "Acme Corp", UEI: "abc123"},
		{RecordID: "2", Name: "Quantum Dynamics Inc"},
		{RecordID: "3", Name: "Quantum Dynamics Inc"},
		{RecordID: "4"},
	}

	resp, err := s.RunBatch(context.Background(), BatchRequest{Records: records, Source: "awards", Fold: true})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Folded)
	assert.Equal(t, 2, s.Crosswalk().Len())

	acme := s.Crosswalk().FindByUEI("ABC123")
	require.NotNil(t, acme)
	assert.Equal(t, "Acme Corporation", acme.CanonicalName)
	assert.Equal(t, "111111111", acme.DUNS)
	assert.Equal(t, "r1", acme.Metadata[MetadataRefID])
	assert.Equal(t, "awards", acme.Metadata["source"])

	// folding again reuses the canonical records, including the name-only one
	_, err = s.RunBatch(context.Background(), BatchRequest{Records: records, Fold: true})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Crosswalk().Len())
}

func TestRunBatchQueuesReview(t *testing.T) {
	store := newFakeReviewStore()
	events := &fakeEvents{}
	s := newLoadedService(t, reviewConfig(), []models.OrganizationRef{{RefID: "s1", Name: "Smith Technologies"}},
		WithReviewStore(store), WithEvents(events))

	resp, err := s.RunBatch(context.Background(), BatchRequest{
		Records: []models.InputRecord{
			{RecordID: "a", Name: "Smith Technologies"},
			{RecordID: "b", Name: "Smyth Tech"},
		},
		Source:             "awards",
		QueueReview:        true,
		RecordAutoAccepted: true,
	})
	require.NoError(t, err)

	require.Len(t, resp.Queued, 2)
	pending, auto := resp.Queued[0], resp.Queued[1]
	assert.Equal(t, models.ReviewStatusPending, pending.Status)
	assert.Equal(t, 1, pending.RecordIndex)
	assert.Equal(t, 95, pending.Score)
	assert.Equal(t, "awards", pending.Source)
	assert.Equal(t, models.ReviewStatusAutoAccepted, auto.Status)
	assert.Equal(t, 0, auto.RecordIndex)
	require.NotNil(t, auto.ChosenRefID)
	assert.Equal(t, "s1", *auto.ChosenRefID)
	assert.NotNil(t, auto.ResolvedAt)

	listed, err := s.ListReviews(context.Background(), resp.Summary.RunID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, pending.ID, listed[0].ID)

	counts, err := s.ReviewCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.ReviewStatusPending])
	assert.Equal(t, 1, counts[models.ReviewStatusAutoAccepted])
	assert.Equal(t, 0, counts[models.ReviewStatusRejected])

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.queued, 1)
	assert.Equal(t, pending.ID, events.queued[0].ID)
	assert.Equal(t, 1, events.batches)
	assert.Equal(t, 1, events.accepted)
}

func TestRunBatchReviewNeedsStore(t *testing.T) {
	s := newLoadedService(t, reviewConfig(), []models.OrganizationRef{{RefID: "s1", Name: "Smith Technologies"}})

	resp, err := s.RunBatch(context.Background(), BatchRequest{
		Records:     []models.InputRecord{{RecordID: "b", Name: "Smyth Tech"}},
		QueueReview: true,
	})
	assertStatus(t, err, http.StatusServiceUnavailable)
	require.NotNil(t, resp)
	assert.Len(t, resp.Results, 1)

	_, err = s.ListReviews(context.Background(), "", 10)
	assertStatus(t, err, http.StatusServiceUnavailable)
}

func queueOne(t *testing.T, s *Service) *models.ReviewCandidate {
	t.Helper()
	resp, err := s.RunBatch(context.Background(), BatchRequest{
		Records:     []models.InputRecord{{RecordID: "b", Name: "Smyth Tech", DUNS: "999999999"}},
		Source:      "awards",
		QueueReview: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Queued, 1)
	return resp.Queued[0]
}

func TestApproveReview(t *testing.T) {
	store := newFakeReviewStore()
	s := newLoadedService(t, reviewConfig(), []models.OrganizationRef{{RefID: "s1", Name: "Smith Technologies"}},
		WithReviewStore(store))
	queued := queueOne(t, s)

	_, err := s.ApproveReview(context.Background(), queued.ID, "nope", "alice")
	assertStatus(t, err, http.StatusBadRequest)

	approved, err := s.ApproveReview(context.Background(), queued.ID, "s1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, approved.Status)
	require.NotNil(t, approved.ResolvedBy)
	assert.Equal(t, "alice", *approved.ResolvedBy)
	require.NotNil(t, approved.CanonicalID)

	rec := s.Crosswalk().Get(*approved.CanonicalID)
	require.NotNil(t, rec)
	assert.Equal(t, "Smith Technologies", rec.CanonicalName)
	assert.Equal(t, "999999999", rec.DUNS)
	names := make([]string, len(rec.Aliases))
	for i, a := range rec.Aliases {
		names[i] = a.Name
	}
	assert.Contains(t, names, "Smyth Tech")

	_, err = s.ApproveReview(context.Background(), queued.ID, "s1", "bob")
	assertStatus(t, err, http.StatusConflict)
	assert.Equal(t, 1, s.Crosswalk().Len())
}

func TestRejectReview(t *testing.T) {
	store := newFakeReviewStore()
	s := newLoadedService(t, reviewConfig(), []models.OrganizationRef{{RefID: "s1", Name: "Smith Technologies"}},
		WithReviewStore(store))
	queued := queueOne(t, s)

	rejected, err := s.RejectReview(context.Background(), queued.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusRejected, rejected.Status)
	assert.Nil(t, rejected.ResolvedBy)
	assert.Equal(t, 0, s.Crosswalk().Len())

	_, err = s.RejectReview(context.Background(), queued.ID, "")
	assertStatus(t, err, http.StatusConflict)

	_, err = s.GetReview(context.Background(), uuid.NewString())
	assertStatus(t, err, http.StatusNotFound)
}

func TestMirrorsFollowCrosswalkChanges(t *testing.T) {
	mirror := &fakeMirror{}
	events := &fakeEvents{}
	m := metrics.New()
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger(),
		WithMirror(mirror), WithEvents(events), WithRecorder(m))
	ctx := context.Background()

	outcome, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: "Acme Corp", UEI: "U1"})
	require.NoError(t, err)
	id := outcome.CanonicalID

	_, added, err := s.AddAlias(ctx, id, AliasRequest{Name: "Acme Holdings"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrosswalkRecords))

	require.NoError(t, s.RemoveRecord(ctx, id))
	assertStatus(t, s.RemoveRecord(ctx, id), http.StatusNotFound)

	require.NoError(t, s.Close(ctx))

	assert.Equal(t, []string{"upsert:" + id, "upsert:" + id, "delete:" + id}, mirror.ops)
	require.Len(t, events.changes, 3)
	assert.Equal(t, crosswalk.CauseCreated, events.changes[0].Cause)
	assert.Equal(t, crosswalk.CauseAlias, events.changes[1].Cause)
	assert.Equal(t, crosswalk.ChangeRemoved, events.changes[2].Kind)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CrosswalkRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrosswalkMutationsTotal.WithLabelValues("removed", "removed")))
}

func TestHandleAcquisition(t *testing.T) {
	mirror := &fakeMirror{}
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger(), WithMirror(mirror))
	ctx := context.Background()

	acquirer, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: "Big Co", UEI: "B1"})
	require.NoError(t, err)
	acquired, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: "Small Co", CAGE: "S1C"})
	require.NoError(t, err)

	_, err = s.HandleAcquisition(ctx, AcquisitionRequest{AcquirerID: acquirer.CanonicalID, AcquiredID: acquirer.CanonicalID})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = s.HandleAcquisition(ctx, AcquisitionRequest{AcquirerID: acquirer.CanonicalID, AcquiredID: "missing"})
	assertStatus(t, err, http.StatusNotFound)

	rec, err := s.HandleAcquisition(ctx, AcquisitionRequest{
		AcquirerID: acquirer.CanonicalID,
		AcquiredID: acquired.CanonicalID,
		Merge:      true,
	})
	require.NoError(t, err)
	owner := s.Crosswalk().FindByCAGE("S1C")
	require.NotNil(t, owner)
	assert.Equal(t, acquirer.CanonicalID, owner.CanonicalID)
	assert.Equal(t, "Big Co", rec.CanonicalName)

	_, err = s.GetRecord(ctx, acquired.CanonicalID)
	assertStatus(t, err, http.StatusNotFound)

	require.NoError(t, s.Close(ctx))
	ops := mirror.ops
	require.GreaterOrEqual(t, len(ops), 2)
	assert.Equal(t, []string{"upsert:" + acquirer.CanonicalID, "delete:" + acquired.CanonicalID}, ops[len(ops)-2:])
}

func TestLookup(t *testing.T) {
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger())
	ctx := context.Background()

	_, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: "Acme Corp", UEI: "U1", CAGE: "C1"})
	require.NoError(t, err)

	res, err := s.Lookup(ctx, crosswalk.Query{CAGE: "c1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, crosswalk.LookupCAGE, res.Method)
	assert.Equal(t, 1.0, res.Score)

	res, err = s.Lookup(ctx, crosswalk.Query{Name: "ACME CORP"}, 0)
	require.NoError(t, err)
	assert.Equal(t, crosswalk.LookupName, res.Method)

	_, err = s.Lookup(ctx, crosswalk.Query{}, 0)
	assertStatus(t, err, http.StatusBadRequest)
	_, err = s.Lookup(ctx, crosswalk.Query{Name: "Acme"}, 1.5)
	assertStatus(t, err, http.StatusBadRequest)
	_, err = s.Lookup(ctx, crosswalk.Query{UEI: "nobody", Name: "Totally Unrelated Widgets"}, 0)
	assertStatus(t, err, http.StatusNotFound)
}

func TestImportReplacesMirrors(t *testing.T) {
	mirror := &replacingMirror{}
	plain := &fakeMirror{}
	events := &fakeEvents{}
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger(),
		WithMirror(mirror), WithMirror(plain), WithEvents(events))
	ctx := context.Background()

	lines := strings.Join([]string{
		`{"canonical_id":"a","canonical_name":"Alpha","uei":"UA"}`,
		`{"canonical_id":"b","canonical_name":"Beta","uei":"UB"}`,
	}, "\n")
	n, err := s.Import(ctx, strings.NewReader(lines))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, s.Close(ctx))

	require.Len(t, mirror.replaced, 2)
	assert.Equal(t, "a", mirror.replaced[0].CanonicalID)
	assert.Empty(t, mirror.ops)
	assert.Equal(t, []string{"upsert:a", "upsert:b"}, plain.ops)
	assert.Equal(t, []int{2}, events.imported)
}

func TestImportRejectsBadSnapshot(t *testing.T) {
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger())
	_, err := s.AddOrMerge(context.Background(), models.CrosswalkRecord{CanonicalName: "Keep Me", UEI: "K1"})
	require.NoError(t, err)

	_, err = s.Import(context.Background(), strings.NewReader(`{"canonical_id":"a","uei":"X"}`+"\n"+`{"canonical_id":"b","uei":"X"}`))
	var dataErr *resolveerr.DataError
	require.True(t, errors.As(err, &dataErr), "expected DataError, got %v", err)
	assert.Equal(t, 2, dataErr.Row)
	assert.NotNil(t, s.Crosswalk().FindByUEI("K1"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	unconfigured := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger())
	assertStatus(t, unconfigured.SaveSnapshot(ctx), http.StatusServiceUnavailable)
	_, err := unconfigured.LoadSnapshot(ctx)
	assertStatus(t, err, http.StatusServiceUnavailable)

	path := filepath.Join(t.TempDir(), "crosswalk.jsonl")
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger(), WithSnapshotPath(path))
	for i := range 3 {
		_, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: fmt.Sprintf("Org %d", i), UEI: fmt.Sprintf("U%d", i)})
		require.NoError(t, err)
	}
	require.NoError(t, s.SaveSnapshot(ctx))

	restored := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger(), WithSnapshotPath(path))
	n, err := restored.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	want, got := s.Records(ctx), restored.Records(ctx)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].CanonicalID, got[i].CanonicalID)
		assert.Equal(t, want[i].CanonicalName, got[i].CanonicalName)
		assert.Equal(t, want[i].UEI, got[i].UEI)
	}
}

func TestFoldKeepsDistinctReferenceOrganizations(t *testing.T) {
	refs := []models.OrganizationRef{
		{RefID: "1", Name: "Acme"},
		{RefID: "2", Name: "Acme Holdings"},
		{RefID: "3", Name: "Zeta Labs", UEI: "U1"},
		{RefID: "4", Name: "Zeta Labs", UEI: "U2"},
	}
	s := newLoadedService(t, matching.DefaultConfig(), refs)
	ctx := context.Background()

	resp, err := s.RunBatch(ctx, BatchRequest{Fold: true, Records: []models.InputRecord{
		{RecordID: "a", Name: "Zeta Labs", UEI: "U1"},
		{RecordID: "b", Name: "Zeta Labs", UEI: "u2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Folded)
	assert.Equal(t, 2, s.Crosswalk().Len())

	first, second := s.Crosswalk().FindByUEI("U1"), s.Crosswalk().FindByUEI("U2")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.CanonicalID, second.CanonicalID)
	assert.Equal(t, "3", first.Metadata[MetadataRefID])
	assert.Equal(t, "4", second.Metadata[MetadataRefID])

	acme, err := s.canonicalFor(refs[0])
	require.NoError(t, err)
	holdings, err := s.canonicalFor(refs[1])
	require.NoError(t, err)
	assert.NotEqual(t, acme, holdings)
	assert.Empty(t, s.Crosswalk().Get(acme).Aliases)

	again, err := s.canonicalFor(refs[0])
	require.NoError(t, err)
	assert.Equal(t, acme, again)

	t.Run("name-only reference joins a same-named record", func(t *testing.T) {
		id, err := s.canonicalFor(models.OrganizationRef{RefID: "5", Name: "ACME"})
		require.NoError(t, err)
		assert.Equal(t, acme, id)
	})
}

// journalMirror records what reached it, in order
type journalMirror struct {
	mu      sync.Mutex
	ops     []string
	aliases []int
}

func (m *journalMirror) Upsert(_ context.Context, rec *models.CrosswalkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "upsert:"+rec.CanonicalID)
	m.aliases = append(m.aliases, len(rec.Aliases))
	return nil
}

func (m *journalMirror) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "delete:"+id)
	return nil
}

func (m *journalMirror) ReplaceAll(_ context.Context, recs []*models.CrosswalkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, fmt.Sprintf("replace:%d", len(recs)))
	return nil
}

func TestMirrorsReceiveChangesInCommitOrder(t *testing.T) {
	mirror := &journalMirror{}
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger(), WithMirror(mirror))
	ctx := context.Background()

	outcome, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: "Acme Corp", UEI: "U1"})
	require.NoError(t, err)

	const writers = 300
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AddAlias(ctx, outcome.CanonicalID, AliasRequest{Name: fmt.Sprintf("Acme Division %d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.Import(ctx, strings.NewReader(`{"canonical_id":"a","canonical_name":"Alpha","uei":"UA"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close(ctx))

	require.Len(t, mirror.aliases, writers+1)
	for i, count := range mirror.aliases {
		require.Equal(t, i, count, "upsert %d reached the mirror out of order", i)
	}
	require.Len(t, mirror.ops, writers+2)
	assert.Equal(t, "replace:1", mirror.ops[len(mirror.ops)-1])
}

func TestLookupUsesPhoneticComposition(t *testing.T) {
	s := New(matching.NewMatcher(matching.DefaultConfig(), testLogger()), testLogger())
	ctx := context.Background()
	_, err := s.AddOrMerge(ctx, models.CrosswalkRecord{CanonicalName: "Smith Technologies", DUNS: "222222222"})
	require.NoError(t, err)

	res, err := s.Lookup(ctx, crosswalk.Query{Name: "Smyth Technologies"}, 0.95)
	require.NoError(t, err)
	assert.Equal(t, crosswalk.LookupName, res.Method)
	assert.InDelta(t, 0.99, res.Score, 1e-9)
}
