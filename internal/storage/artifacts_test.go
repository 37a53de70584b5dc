package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscope/pkg/model"
)

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "runs/run-1/baseline.heapsnapshot", SnapshotKey("run-1", model.RoleBaseline))
	assert.Equal(t, "runs/run-1/target.heapsnapshot", SnapshotKey("run-1", model.RoleTarget))
	assert.Equal(t, "runs/run-1/result.json.gz", ResultKey("run-1"))
}

func TestFetchSnapshot(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	doc := []byte(`{"snapshot":{"meta":{}},"nodes":[],"edges":[],"strings":[]}`)

	t.Run("Plain", func(t *testing.T) {
		require.NoError(t, store.Upload(ctx, SnapshotKey("run-1", model.RoleBaseline), bytes.NewReader(doc)))

		got, err := FetchSnapshot(ctx, store, "run-1", model.RoleBaseline)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("Gzipped", func(t *testing.T) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write(doc)
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		require.NoError(t, store.Upload(ctx, SnapshotKey("run-2", model.RoleTarget), &buf))

		got, err := FetchSnapshot(ctx, store, "run-2", model.RoleTarget)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := FetchSnapshot(ctx, store, "run-3", model.RoleFinal)
		assert.Error(t, err)
	})
}

func TestPutResult(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	res := &model.AnalysisResult{
		RunUUID:    "run-9",
		AnalyzedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Findings: []model.LeakFinding{
			{Category: model.CategoryTimerRetention, Confidence: 80, Severity: model.SignificanceHigh},
		},
	}

	require.NoError(t, PutResult(ctx, store, res))

	rc, err := store.Download(ctx, ResultKey("run-9"))
	require.NoError(t, err)
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	require.NoError(t, err)
	payload, err := io.ReadAll(gz)
	require.NoError(t, err)

	var got model.AnalysisResult
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "run-9", got.RunUUID)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, 80, got.Findings[0].Confidence)

	t.Run("MissingUUID", func(t *testing.T) {
		assert.Error(t, PutResult(ctx, store, &model.AnalysisResult{}))
	})
}

func TestListRunArtifacts(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	doc := []byte(`{"snapshot":{"meta":{}},"nodes":[],"edges":[],"strings":[]}`)
	require.NoError(t, store.Upload(ctx, SnapshotKey("run-5", model.RoleBaseline), bytes.NewReader(doc)))
	require.NoError(t, store.Upload(ctx, SnapshotKey("run-5", model.RoleTarget), bytes.NewReader(doc)))
	require.NoError(t, PutResult(ctx, store, &model.AnalysisResult{RunUUID: "run-5"}))

	keys, err := ListRunArtifacts(ctx, store, "run-5")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"runs/run-5/baseline.heapsnapshot",
		"runs/run-5/result.json.gz",
		"runs/run-5/target.heapsnapshot",
	}, keys)
}
