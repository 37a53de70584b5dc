package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscope/internal/service"
	"github.com/heapscope/internal/testutil"
	apperrors "github.com/heapscope/pkg/errors"
	"github.com/heapscope/pkg/model"
)

func snapshotDoc(t *testing.T, timers int) []byte {
	t.Helper()
	if timers > 0 {
		return testutil.TimerLeakGraph(timers, 2<<10).Document()
	}
	b := testutil.NewGraphBuilder()
	root := b.AddRoot()
	for i := 0; i < 50; i++ {
		n := b.AddNode("object", fmt.Sprintf("Widget%d", i), 512)
		b.AddElement(root, n, int64(i))
	}
	return b.Document()
}

func TestAnalyzeSnapshotsFullRun(t *testing.T) {
	svc := service.New(nil, nil, nil)

	result, err := svc.AnalyzeSnapshots(context.Background(), &model.AnalysisRequest{
		RunUUID: "run-1",
		Snapshots: []model.SnapshotInput{
			{Role: model.RoleBaseline, Data: snapshotDoc(t, 0)},
			{Role: model.RoleTarget, Data: snapshotDoc(t, 2000)},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "run-1", result.RunUUID)
	assert.False(t, result.AnalyzedAt.IsZero())
	require.Len(t, result.Snapshots, 2)
	assert.Equal(t, model.RoleBaseline, result.Snapshots[0].Role)
	assert.Equal(t, model.RoleTarget, result.Snapshots[1].Role)
	require.Len(t, result.Reports, 2)
	assert.NotNil(t, result.Growth)
	assert.True(t, result.Growth.EnoughData)

	var timerFinding bool
	for _, f := range result.Findings {
		if f.Category == model.CategoryTimerRetention {
			timerFinding = true
		}
		assert.GreaterOrEqual(t, f.Confidence, 10)
		assert.LessOrEqual(t, f.Confidence, 100)
	}
	assert.True(t, timerFinding, "expected a timer-retention finding")
}

func TestAnalyzeSnapshotsMalformedSiblingSurvives(t *testing.T) {
	svc := service.New(nil, nil, nil)

	result, err := svc.AnalyzeSnapshots(context.Background(), &model.AnalysisRequest{
		RunUUID: "run-2",
		Snapshots: []model.SnapshotInput{
			{Role: model.RoleBaseline, Data: []byte("{broken")},
			{Role: model.RoleTarget, Data: snapshotDoc(t, 0)},
		},
	})
	require.NoError(t, err)

	// The healthy snapshot is still analyzed.
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, model.RoleTarget, result.Snapshots[0].Role)

	// The broken one is a diagnostic.
	require.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, apperrors.CodeMalformedSnapshot, result.Diagnostics[0].Code)
	assert.Equal(t, string(model.RoleBaseline), result.Diagnostics[0].Source)
}

func TestAnalyzeSnapshotsEmptyRequest(t *testing.T) {
	svc := service.New(nil, nil, nil)

	_, err := svc.AnalyzeSnapshots(context.Background(), &model.AnalysisRequest{RunUUID: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidInput(err))

	_, err = svc.AnalyzeSnapshots(context.Background(), nil)
	require.Error(t, err)
}

type fakeStore struct {
	saved  []*model.AnalysisResult
	failed bool
}

func (s *fakeStore) SaveResult(_ context.Context, result *model.AnalysisResult) error {
	if s.failed {
		return errors.New("db down")
	}
	s.saved = append(s.saved, result)
	return nil
}

func TestAnalyzeSnapshotsPersistsResult(t *testing.T) {
	store := &fakeStore{}
	svc := service.New(nil, nil, store)

	result, err := svc.AnalyzeSnapshots(context.Background(), &model.AnalysisRequest{
		RunUUID: "run-3",
		Snapshots: []model.SnapshotInput{
			{Role: model.RoleBaseline, Data: snapshotDoc(t, 0)},
			{Role: model.RoleTarget, Data: snapshotDoc(t, 0)},
		},
	})
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, result.RunUUID, store.saved[0].RunUUID)
}

func TestAnalyzeSnapshotsStoreFailureIsDiagnostic(t *testing.T) {
	svc := service.New(nil, nil, &fakeStore{failed: true})

	result, err := svc.AnalyzeSnapshots(context.Background(), &model.AnalysisRequest{
		RunUUID: "run-4",
		Snapshots: []model.SnapshotInput{
			{Role: model.RoleBaseline, Data: snapshotDoc(t, 0)},
			{Role: model.RoleTarget, Data: snapshotDoc(t, 0)},
		},
	})
	require.NoError(t, err)

	found := false
	for _, d := range result.Diagnostics {
		if d.Code == apperrors.CodeDatabaseError {
			found = true
		}
	}
	assert.True(t, found, "persistence failure should surface as a diagnostic")
}
