package progress

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/ports"
)

func event(id, stage string, progress int) core.ProgressEvent {
	return core.ProgressEvent{
		ReceiptID: id,
		Agent:     "orchestrator",
		Stage:     stage,
		Message:   stage,
		Progress:  progress,
		Details:   map[string]any{"score": int64(40)},
		Timestamp: time.Now(),
	}
}

func repoContract(t *testing.T, repo ports.ProgressRepository) {
	ctx := context.Background()

	require.NoError(t, repo.Emit(ctx, event("r1", "analysis_started", 5)))
	require.NoError(t, repo.Emit(ctx, event("r1", "agents_running", 20)))
	require.NoError(t, repo.Emit(ctx, event("r2", "analysis_started", 5)))

	history, err := repo.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "analysis_started", history[0].Stage)
	assert.Equal(t, "agents_running", history[1].Stage)

	latest, err := repo.Latest(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 20, latest.Progress)

	missing, err := repo.Latest(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := repo.History(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink(time.Hour, 0, zap.NewNop())
	defer sink.Stop()
	repoContract(t, sink)
}

func TestMemorySinkExpiry(t *testing.T) {
	sink := NewMemorySink(time.Minute, 0, zap.NewNop())
	defer sink.Stop()
	now := time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, sink.Emit(ctx, event("r1", "analysis_started", 5)))

	now = now.Add(2 * time.Minute)
	history, err := sink.History(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, sink.Cleanup(ctx))
	assert.Empty(t, sink.entries)
}

func TestSQLiteSink(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "progress.db"), time.Hour, 0, zap.NewNop())
	require.NoError(t, err)
	defer sink.Stop()
	repoContract(t, sink)

	history, err := sink.History(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, float64(40), history[0].Details["score"], "details round-trip through JSON")
}

func TestSQLiteSinkCleanup(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "progress.db"), -time.Second, 0, zap.NewNop())
	require.NoError(t, err)
	defer sink.Stop()

	ctx := context.Background()
	require.NoError(t, sink.Emit(ctx, event("r1", "analysis_started", 5)))
	require.NoError(t, sink.Cleanup(ctx))

	var n int
	require.NoError(t, sink.db.QueryRow(`SELECT COUNT(*) FROM progress_events`).Scan(&n))
	assert.Zero(t, n)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(zap.NewNop())
	assert.NoError(t, sink.Emit(context.Background(), event("r1", "analysis_started", 5)))

	_, err := sink.History(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNoHistory)
}

type failingRepo struct{ *LogSink }

func (failingRepo) Emit(ctx context.Context, e core.ProgressEvent) error {
	return errors.New("disk full")
}

type countingDrops struct{ n int }

func (c *countingDrops) IncrementProgressDropped() { c.n++ }

func TestInstrumentedCountsFailures(t *testing.T) {
	drops := &countingDrops{}

	ok := NewInstrumented(NewMemorySink(time.Hour, 0, zap.NewNop()), drops)
	require.NoError(t, ok.Emit(context.Background(), event("r1", "x", 1)))
	assert.Zero(t, drops.n)

	bad := NewInstrumented(failingRepo{NewLogSink(zap.NewNop())}, drops)
	assert.Error(t, bad.Emit(context.Background(), event("r1", "x", 1)))
	assert.Equal(t, 1, drops.n)
}
