package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	require.NoError(t, j.Migrate(context.Background()))
	return j
}

func TestJournal_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	runID, err := j.StartRun(ctx, "export --bbox 0 0 1 1")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, j.RecordTile(ctx, runID, "01", 42, 1500*time.Millisecond))
	require.NoError(t, j.RecordTile(ctx, runID, "02", 7, 300*time.Millisecond))
	require.NoError(t, j.RecordSkip(ctx, runID, "public.building", "1234", "degenerate ring"))

	require.NoError(t, j.FinishRun(ctx, runID, StatusComplete, 49, 2, 1, ""))

	run, err := j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, run.Status)
	assert.Equal(t, 49, run.Objects)
	assert.Equal(t, 2, run.Tiles)
	assert.Equal(t, 1, run.Skipped)
	assert.Empty(t, run.Error)
	require.NotNil(t, run.FinishedAt)

	skips, err := j.ListSkips(ctx, runID)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, Skip{Source: "public.building", FeaturePK: "1234", Reason: "degenerate ring"}, skips[0])
}

func TestJournal_FailedRunKeepsError(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	runID, err := j.StartRun(ctx, "export_tiles all")
	require.NoError(t, err)

	require.NoError(t, j.FinishRun(ctx, runID, StatusFailed, 0, 0, 0, "connection reset"))

	run, err := j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "connection reset", run.Error)
}

func TestJournal_FinishUnknownRun(t *testing.T) {
	j := openTestJournal(t)
	err := j.FinishRun(context.Background(), "nope", StatusComplete, 0, 0, 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestJournal_GetUnknownRun(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.GetRun(context.Background(), "nope")
	assert.Error(t, err)
}
