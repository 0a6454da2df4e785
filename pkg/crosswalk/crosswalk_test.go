package crosswalk

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCrosswalk(opts ...Option) *Crosswalk {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

// assertDedupInvariant checks every identifier maps to exactly one record
// and every index entry points at a record holding that identifier
func assertDedupInvariant(t *testing.T, c *Crosswalk) {
	t.Helper()
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := map[string]string{}
	for id, rec := range c.records {
		for _, f := range identifierFields(rec) {
			if *f.value == "" {
				continue
			}
			key := f.kind + ":" + *f.value
			if other, dup := seen[key]; dup {
				t.Errorf("%s held by %s and %s", key, other, id)
			}
			seen[key] = id
			assert.Equal(t, id, c.identifierIndex(f.kind)[*f.value], "index for %s", key)
		}
	}
	for _, kind := range []string{"uei", "cage", "duns"} {
		for value, id := range c.identifierIndex(kind) {
			assert.Equal(t, id, seen[kind+":"+value], "stale %s index entry %s", kind, value)
		}
	}
}

func TestAddOrMergeAcme(t *testing.T) {
	c := newTestCrosswalk()

	first, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "Acme Corp", UEI: "U1"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.CanonicalID)

	second, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "Acme Incorporated", UEI: "u1", CAGE: "c1"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.CanonicalID, second.CanonicalID)
	require.Len(t, second.Conflicts, 1)
	assert.Equal(t, resolveerr.ResolutionAliasDemoted, second.Conflicts[0].Resolution)

	assert.Equal(t, 1, c.Len())
	rec := c.FindByCAGE("C1")
	require.NotNil(t, rec)
	assert.Equal(t, "Acme Corp", rec.CanonicalName)
	assert.Equal(t, "U1", rec.UEI)
	assert.Equal(t, "C1", rec.CAGE)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	require.Len(t, rec.Aliases, 1)
	assert.Equal(t, "Acme Incorporated", rec.Aliases[0].Name)
	assert.Equal(t, models.AliasNoteMergedCanonical, rec.Aliases[0].Note)

	byName, score := c.FindByName("ACME INC.", DefaultNameThreshold)
	require.NotNil(t, byName)
	assert.Equal(t, first.CanonicalID, byName.CanonicalID)
	assert.Equal(t, 1.0, score)

	assertDedupInvariant(t, c)
}

func TestAddOrMergeLookupPriority(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha", CAGE: "C1"})
	require.NoError(t, err)
	_, err = c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "b", CanonicalName: "Bravo", UEI: "U1"})
	require.NoError(t, err)

	out, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "Bravo Two", UEI: "U1", CAGE: "C1", DUNS: "123"})
	require.NoError(t, err)
	assert.Equal(t, "b", out.CanonicalID)

	held := false
	for _, mc := range out.Conflicts {
		if mc.Resolution == resolveerr.ResolutionIdentifierHeld {
			held = true
			assert.Equal(t, "cage", mc.Field)
			assert.Equal(t, "a", mc.Existing)
		}
	}
	assert.True(t, held)

	assert.Equal(t, "a", c.FindByCAGE("C1").CanonicalID)
	assert.Equal(t, "b", c.FindByDUNS("123").CanonicalID)
	assert.Empty(t, c.Get("b").CAGE)
	assertDedupInvariant(t, c)
}

func TestAddOrMergeByCanonicalID(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "x", CanonicalName: "Xeno", Metadata: map[string]any{"a": 1, "b": "keep"}})
	require.NoError(t, err)

	out, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "x", CanonicalName: "Xeno", UEI: "UX", Metadata: map[string]any{"a": 2}})
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.Empty(t, out.Conflicts)

	rec := c.Get("x")
	assert.Equal(t, "UX", rec.UEI)
	assert.Equal(t, 2.0, rec.Metadata["a"])
	assert.Equal(t, "keep", rec.Metadata["b"])
	assert.Empty(t, rec.Aliases)
}

func TestAddOrMergeKeepsExistingIdentifier(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "x", CanonicalName: "Xeno", UEI: "U1", DUNS: "111"})
	require.NoError(t, err)

	out, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "Xeno", UEI: "U1", DUNS: "222"})
	require.NoError(t, err)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, resolveerr.ResolutionKeptExisting, out.Conflicts[0].Resolution)
	assert.Equal(t, "111", c.Get("x").DUNS)
	assert.Nil(t, c.FindByDUNS("222"))
}

func TestAddOrMergeRejectsEmpty(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "  "})
	assert.True(t, resolveerr.IsDataError(err))
	assert.Equal(t, 0, c.Len())
}

func TestMergeIntoUnknown(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.MergeInto("missing", models.CrosswalkRecord{CanonicalName: "X"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAliasesUnionedByNormalizedName(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{
		CanonicalID:   "a",
		CanonicalName: "Alpha Systems",
		Aliases:       []models.AliasRecord{{Name: "Alpha Sys"}, {Name: "ALPHA SYS."}, {Name: "alpha systems"}},
	})
	require.NoError(t, err)
	require.Len(t, c.Get("a").Aliases, 1)

	_, err = c.MergeInto("a", models.CrosswalkRecord{Aliases: []models.AliasRecord{{Name: "alpha-sys"}, {Name: "Alpha Group"}}})
	require.NoError(t, err)
	assert.Len(t, c.Get("a").Aliases, 2)
}

func TestAddAlias(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha"})
	require.NoError(t, err)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	added, err := c.AddAlias("a", "Alpha Labs", &start, nil, "rebrand")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.AddAlias("a", "ALPHA LABS", nil, nil, "")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = c.AddAlias("a", "Alpha", nil, nil, "")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = c.AddAlias("missing", "X", nil, nil, "")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, score := c.FindByName("alpha labs", 0.99)
	require.NotNil(t, rec)
	assert.Equal(t, "a", rec.CanonicalID)
	assert.Equal(t, 1.0, score)
	require.NotNil(t, rec.Aliases[0].StartDate)
	assert.Equal(t, start, *rec.Aliases[0].StartDate)
}

func TestRemove(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha", UEI: "U1", Aliases: []models.AliasRecord{{Name: "Alfa"}}})
	require.NoError(t, err)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Nil(t, c.FindByUEI("U1"))
	rec, _ := c.FindByName("Alfa", 0.99)
	assert.Nil(t, rec)
	assert.Equal(t, 0, c.Len())
}

func TestFindByName(t *testing.T) {
	c := newTestCrosswalk()
	for _, r := range []models.CrosswalkRecord{
		{CanonicalID: "b", CanonicalName: "Northwind Traders"},
		{CanonicalID: "a", CanonicalName: "Northwind Traders"},
		{CanonicalID: "c", CanonicalName: "Contoso Pharmaceuticals"},
	} {
		_, err := c.AddOrMerge(r)
		require.NoError(t, err)
	}

	t.Run("exact hit picks smallest id", func(t *testing.T) {
		rec, score := c.FindByName("northwind traders", 0.9)
		require.NotNil(t, rec)
		assert.Equal(t, "a", rec.CanonicalID)
		assert.Equal(t, 1.0, score)
	})

	t.Run("fuzzy hit above threshold", func(t *testing.T) {
		rec, score := c.FindByName("Contoso Pharmaceutical", 0.9)
		require.NotNil(t, rec)
		assert.Equal(t, "c", rec.CanonicalID)
		assert.Less(t, score, 1.0)
		assert.GreaterOrEqual(t, score, 0.9)
	})

	t.Run("below threshold", func(t *testing.T) {
		rec, score := c.FindByName("Fabrikam", 0.9)
		assert.Nil(t, rec)
		assert.Equal(t, 0.0, score)
	})

	t.Run("empty name", func(t *testing.T) {
		rec, _ := c.FindByName("", 0)
		assert.Nil(t, rec)
	})
}

func TestFindByAny(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha", UEI: "U1", CAGE: "C1", DUNS: "111"})
	require.NoError(t, err)
	_, err = c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "b", CanonicalName: "Bravo", CAGE: "C2"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		q      Query
		id     string
		method LookupMethod
	}{
		{"uei first", Query{UEI: "u1", CAGE: "C2"}, "a", LookupUEI},
		{"cage", Query{UEI: "nope", CAGE: "c2"}, "b", LookupCAGE},
		{"duns", Query{DUNS: "111"}, "a", LookupDUNS},
		{"name", Query{Name: "Bravo"}, "b", LookupName},
		{"none", Query{Name: "Zulu"}, "", LookupNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, method, _ := c.FindByAny(tt.q, DefaultNameThreshold)
			assert.Equal(t, tt.method, method)
			if tt.id == "" {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, tt.id, rec.CanonicalID)
		})
	}

	assert.Nil(t, c.FindByUEI(""))
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{
		CanonicalID:   "a",
		CanonicalName: "Alpha",
		Aliases:       []models.AliasRecord{{Name: "Alfa"}},
		Metadata:      map[string]any{"tags": []any{"x"}},
	})
	require.NoError(t, err)

	rec := c.Get("a")
	rec.CanonicalName = "Changed"
	rec.Aliases[0].Name = "Changed"
	rec.Metadata["tags"].([]any)[0] = "changed"

	fresh := c.Get("a")
	assert.Equal(t, "Alpha", fresh.CanonicalName)
	assert.Equal(t, "Alfa", fresh.Aliases[0].Name)
	assert.Equal(t, "x", fresh.Metadata["tags"].([]any)[0])
}

func TestHandleAcquisition(t *testing.T) {
	date := time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) *Crosswalk {
		c := newTestCrosswalk()
		_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "big", CanonicalName: "Big Holdings", UEI: "UBIG"})
		require.NoError(t, err)
		_, err = c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "small", CanonicalName: "Small Widgets", UEI: "USMALL", CAGE: "CSM"})
		require.NoError(t, err)
		return c
	}

	t.Run("without merge", func(t *testing.T) {
		c := setup(t)
		require.NoError(t, c.HandleAcquisition("big", "small", &date, false, "cash deal"))

		big := c.Get("big")
		acquisitions, ok := big.Metadata[models.MetadataAcquisitions].([]any)
		require.True(t, ok)
		require.Len(t, acquisitions, 1)
		entry := acquisitions[0].(map[string]any)
		assert.Equal(t, "small", entry["acquired_id"])
		assert.Equal(t, "cash deal", entry["note"])

		small := c.Get("small")
		require.NotNil(t, small)
		acquiredBy := small.Metadata[models.MetadataAcquiredBy].([]any)
		assert.Equal(t, "big", acquiredBy[0].(map[string]any)["acquirer_id"])

		require.Len(t, big.Aliases, 1)
		assert.Equal(t, "Small Widgets", big.Aliases[0].Name)
		assert.Equal(t, models.AliasNoteAcquired, big.Aliases[0].Note)

		rec, score := c.FindByName("Small Widgets", DefaultNameThreshold)
		require.NotNil(t, rec)
		assert.Equal(t, "big", rec.CanonicalID)
		assert.Equal(t, 1.0, score)
		assertDedupInvariant(t, c)
	})

	t.Run("with merge", func(t *testing.T) {
		c := setup(t)
		var changes []Change
		c.observers = append(c.observers, func(ch Change) { changes = append(changes, ch) })

		require.NoError(t, c.HandleAcquisition("big", "small", &date, true, ""))

		assert.Equal(t, 1, c.Len())
		assert.Nil(t, c.Get("small"))

		rec, score := c.FindByName("Small Widgets", DefaultNameThreshold)
		require.NotNil(t, rec)
		assert.Equal(t, "big", rec.CanonicalID)
		assert.Equal(t, 1.0, score)

		// Missing identifiers move over; a differing UEI stays in the history only
		assert.Equal(t, "big", c.FindByCAGE("CSM").CanonicalID)
		assert.Nil(t, c.FindByUEI("USMALL"))
		assert.Equal(t, "UBIG", rec.UEI)
		assert.Equal(t, "CSM", rec.CAGE)

		merged := rec.Metadata[models.MetadataMergedRecords].([]any)
		require.Len(t, merged, 1)
		history := merged[0].(map[string]any)
		assert.Equal(t, "small", history["canonical_id"])
		assert.Equal(t, "USMALL", history["uei"])
		_, hasAcquiredBy := rec.Metadata[models.MetadataAcquiredBy]
		assert.False(t, hasAcquiredBy)

		require.Len(t, changes, 2)
		assert.Equal(t, ChangeUpserted, changes[0].Kind)
		assert.Equal(t, ChangeRemoved, changes[1].Kind)
		assert.Equal(t, "small", changes[1].CanonicalID)
		assertDedupInvariant(t, c)
	})

	t.Run("errors", func(t *testing.T) {
		c := setup(t)
		assert.ErrorIs(t, c.HandleAcquisition("big", "missing", nil, false, ""), ErrNotFound)
		assert.ErrorIs(t, c.HandleAcquisition("missing", "small", nil, false, ""), ErrNotFound)
		assert.Error(t, c.HandleAcquisition("big", "big", nil, false, ""))
	})
}

func TestConcurrentMergesKeepDedupInvariant(t *testing.T) {
	c := newTestCrosswalk()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = c.AddOrMerge(models.CrosswalkRecord{
					CanonicalName: "Org",
					UEI:           []string{"U1", "U2", "U3"}[(i+w)%3],
					CAGE:          []string{"C1", "C2"}[(i*w)%2],
				})
				c.FindByName("org", 0.5)
			}
		}(w)
	}
	wg.Wait()

	assertDedupInvariant(t, c)
	assert.LessOrEqual(t, c.Len(), 3)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "b", CanonicalName: "Bravo", UEI: "U2"})
	require.NoError(t, err)
	_, err = c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha", CAGE: "C1", Aliases: []models.AliasRecord{{Name: "Alfa"}}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Export(ctx, &buf))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"canonical_id":"a"`)
	assert.Contains(t, string(lines[1]), `"canonical_id":"b"`)

	restored := newTestCrosswalk()
	n, err := restored.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, c.Records(), restored.Records())
	assert.Equal(t, "b", restored.FindByUEI("U2").CanonicalID)

	rec, _ := restored.FindByName("alfa", 0.99)
	require.NotNil(t, rec)
	assert.Equal(t, "a", rec.CanonicalID)
}

func TestImportRejectsBadSnapshots(t *testing.T) {
	tests := []struct {
		name string
		data string
		row  int
	}{
		{"malformed", "{\"canonical_id\":\"a\"}\nnot json\n", 2},
		{"duplicate id", "{\"canonical_id\":\"a\"}\n{\"canonical_id\":\"a\"}\n", 2},
		{"missing id", "{\"canonical_name\":\"x\"}\n", 1},
		{"shared identifier", "{\"canonical_id\":\"a\",\"uei\":\"U1\"}\n\n{\"canonical_id\":\"b\",\"uei\":\"u1\"}\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCrosswalk()
			_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "keep", CanonicalName: "Keep"})
			require.NoError(t, err)

			_, err = c.Import(context.Background(), bytes.NewBufferString(tt.data))
			var dataErr *resolveerr.DataError
			require.ErrorAs(t, err, &dataErr)
			assert.Equal(t, tt.row, dataErr.Row)
			assert.NotNil(t, c.Get("keep"))
		})
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crosswalk.jsonl")

	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha", UEI: "U1"})
	require.NoError(t, err)
	require.NoError(t, c.SaveSnapshot(ctx, path))

	loaded := newTestCrosswalk()
	n, err := loaded.LoadSnapshot(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, c.Records(), loaded.Records())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSnapshotFailureLeavesPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosswalk.jsonl")

	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "a", CanonicalName: "Alpha"})
	require.NoError(t, err)
	require.NoError(t, c.SaveSnapshot(context.Background(), path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "b", CanonicalName: "Bravo"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.SaveSnapshot(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be cleaned up")

	t.Run("missing directory", func(t *testing.T) {
		err := c.SaveSnapshot(context.Background(), filepath.Join(t.TempDir(), "nope", "x.jsonl"))
		assert.Error(t, err)
	})
}

func TestChangesCarryCommitOrder(t *testing.T) {
	var mu sync.Mutex
	var changes []Change
	c := newTestCrosswalk(WithObserver(func(ch Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, ch)
	}))

	outcome, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "Acme Corp", UEI: "U1"})
	require.NoError(t, err)

	const writers = 500
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.AddAlias(outcome.CanonicalID, fmt.Sprintf("Acme Division %d", i), nil, nil, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, changes, writers+1)
	slices.SortFunc(changes, func(a, b Change) int { return cmp.Compare(a.Seq, b.Seq) })
	for i, ch := range changes {
		require.Equal(t, uint64(i+1), ch.Seq)
		require.NotNil(t, ch.Record)
		// every alias commit adds exactly one alias, so the copy at seq n has n-1
		assert.Len(t, ch.Record.Aliases, i, "seq %d", ch.Seq)
	}

	c.Remove(outcome.CanonicalID)
	assert.Equal(t, uint64(writers+2), changes[len(changes)-1].Seq)
	assert.Equal(t, ChangeRemoved, changes[len(changes)-1].Kind)
}

func TestImportEmitsReplacement(t *testing.T) {
	var changes []Change
	c := newTestCrosswalk(WithObserver(func(ch Change) { changes = append(changes, ch) }))
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalName: "Old Co", UEI: "OLD"})
	require.NoError(t, err)

	data := `{"canonical_id":"b","canonical_name":"Beta"}` + "\n" + `{"canonical_id":"a","canonical_name":"Alpha"}`
	n, err := c.Import(context.Background(), bytes.NewBufferString(data))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, changes, 2)
	replaced := changes[1]
	assert.Equal(t, uint64(2), replaced.Seq)
	assert.Equal(t, ChangeReplaced, replaced.Kind)
	assert.Equal(t, CauseImported, replaced.Cause)
	require.Len(t, replaced.Records, 2)
	assert.Equal(t, "a", replaced.Records[0].CanonicalID)
	assert.Equal(t, "b", replaced.Records[1].CanonicalID)

	t.Run("rejected import commits nothing", func(t *testing.T) {
		_, err := c.Import(context.Background(), bytes.NewBufferString(`not json`))
		require.Error(t, err)
		assert.Len(t, changes, 2)
	})
}

func TestFindByNameUsesPhoneticComposition(t *testing.T) {
	c := newTestCrosswalk()
	_, err := c.AddOrMerge(models.CrosswalkRecord{CanonicalID: "s", CanonicalName: "Smith Technologies"})
	require.NoError(t, err)

	// token set scores the pair 94; the shared phonetic code adds 5
	rec, score := c.FindByName("Smyth Technologies", 0.95)
	require.NotNil(t, rec)
	assert.Equal(t, "s", rec.CanonicalID)
	assert.InDelta(t, 0.99, score, 1e-9)

	tokenSetOnly := newTestCrosswalk(WithScorer(matching.TokenSetScorer{}))
	_, err = tokenSetOnly.AddOrMerge(models.CrosswalkRecord{CanonicalID: "s", CanonicalName: "Smith Technologies"})
	require.NoError(t, err)
	rec, _ = tokenSetOnly.FindByName("Smyth Technologies", 0.95)
	assert.Nil(t, rec)
}

func TestFindByCanonicalName(t *testing.T) {
	c := newTestCrosswalk()
	for _, r := range []models.CrosswalkRecord{
		{CanonicalID: "b", CanonicalName: "Zeta Labs", UEI: "U2"},
		{CanonicalID: "a", CanonicalName: "ZETA LABS", UEI: "U1"},
		{CanonicalID: "c", CanonicalName: "Acme", Aliases: []models.AliasRecord{{Name: "Zeta Labs"}}},
	} {
		_, err := c.AddOrMerge(r)
		require.NoError(t, err)
	}

	got := c.FindByCanonicalName("zeta labs")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].CanonicalID)
	assert.Equal(t, "b", got[1].CanonicalID)

	assert.Empty(t, c.FindByCanonicalName("Acme Holdings"))
	assert.Empty(t, c.FindByCanonicalName(""))
}
