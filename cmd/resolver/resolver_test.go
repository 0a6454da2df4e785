package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollomancer/sbir-analytics-sub004/config"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
)

func testRoot(t *testing.T) *rootOptions {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	return &rootOptions{
		cfg:     cfg,
		logger:  ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
		matcher: matching.DefaultConfig(),
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunMatch(t *testing.T) {
	dir := t.TempDir()
	refs := writeFile(t, dir, "refs.csv", "id,name,uei\nr1,Acme Robotics Inc,ACME00000001\nr2,Blue Harbor Labs,BLUE00000002\n")
	input := writeFile(t, dir, "input.csv", "company,uei,state\nAcme Robotics,ACME00000001,VA\nNobody Known,,MD\n")
	snapshot := filepath.Join(dir, "crosswalk.jsonl")

	root := testRoot(t)
	var out bytes.Buffer
	err := runMatch(context.Background(), root, matchOptions{
		references: refs,
		input:      input,
		source:     "awards",
		snapshot:   snapshot,
		fold:       true,
	}, &out)
	require.NoError(t, err)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "state", rows[0][len(rows[0])-1])
	assert.Equal(t, "uei_exact", rows[1][5])
	assert.Equal(t, "r1", rows[1][7])
	assert.NotContains(t, []string{"uei_exact", "fuzzy_auto"}, rows[2][5])
	assert.Empty(t, rows[2][7])

	t.Run("fold writes the snapshot", func(t *testing.T) {
		var exported bytes.Buffer
		require.NoError(t, runCrosswalkExport(context.Background(), root, snapshot, "", &exported))
		lines := strings.Split(strings.TrimSpace(exported.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "ACME00000001")
	})

	t.Run("fold without snapshot", func(t *testing.T) {
		err := runMatch(context.Background(), root, matchOptions{references: refs, input: input, fold: true}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestCrosswalkImportExport(t *testing.T) {
	dir := t.TempDir()
	root := testRoot(t)
	ctx := context.Background()

	export := writeFile(t, dir, "export.jsonl",
		`{"canonical_id":"c1","canonical_name":"Acme Robotics","uei":"ACME00000001","created_at":"2024-01-01T00:00:00Z"}`+"\n"+
			`{"canonical_id":"c2","canonical_name":"Blue Harbor Labs","created_at":"2024-01-01T00:00:00Z"}`+"\n")
	snapshot := filepath.Join(dir, "snapshot.jsonl")

	require.NoError(t, runCrosswalkImport(ctx, root, export, snapshot, false))

	out := filepath.Join(dir, "out.jsonl")
	require.NoError(t, runCrosswalkExport(ctx, root, snapshot, out, nil))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"canonical_id":"c1"`)
	assert.Contains(t, lines[1], `"canonical_id":"c2"`)

	t.Run("duplicate identifiers are rejected", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.jsonl",
			`{"canonical_id":"c1","canonical_name":"A","uei":"ACME00000001"}`+"\n"+
				`{"canonical_id":"c2","canonical_name":"B","uei":"ACME00000001"}`+"\n")
		assert.Error(t, runCrosswalkImport(ctx, root, bad, filepath.Join(dir, "other.jsonl"), false))
		_, err := os.Stat(filepath.Join(dir, "other.jsonl"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("mirror needs a database", func(t *testing.T) {
		assert.Error(t, runCrosswalkImport(ctx, root, export, snapshot, true))
	})
}
