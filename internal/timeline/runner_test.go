package timeline_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/myrjola/mavis/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotLog struct {
	mu        sync.Mutex
	snapshots []timeline.Snapshot
	finished  []timeline.Snapshot
}

func (l *snapshotLog) onSnapshot(s timeline.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, s)
}

func (l *snapshotLog) onFinished(s timeline.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, s)
}

func (l *snapshotLog) finishedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.finished)
}

func newRunner(t *testing.T, log *snapshotLog) (*timeline.Runner, context.CancelFunc) {
	t.Helper()
	s, err := script.Default()
	require.NoError(t, err)
	r, err := timeline.NewRunner(s, testhelpers.NewLogger(io.Discard), timeline.RunnerOptions{
		Speedup:    1000,
		OnSnapshot: log.onSnapshot,
		OnFinished: log.onFinished,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.NoError(t, r.Run(ctx))
	}()
	t.Cleanup(cancel)
	return r, cancel
}

func waitForPhase(t *testing.T, r *timeline.Runner, phase timeline.Phase) timeline.Snapshot {
	t.Helper()
	var snap timeline.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = r.Snapshot(context.Background())
		return err == nil && snap.Phase == phase
	}, 5*time.Second, time.Millisecond)
	return snap
}

func TestRunner_fullRun(t *testing.T) {
	ctx := context.Background()
	log := &snapshotLog{}
	r, _ := newRunner(t, log)

	snap, started, err := r.Start(ctx)
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, timeline.PhaseIntro, snap.Phase)
	require.NotEmpty(t, snap.RunID)
	runID := snap.RunID

	for {
		snap, err = r.Snapshot(ctx)
		require.NoError(t, err)
		if snap.Phase == timeline.PhaseFinished {
			break
		}
		if snap.CanAnswer() {
			_, accepted, answerErr := r.Answer(ctx, 0)
			require.NoError(t, answerErr)
			require.True(t, accepted)
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, runID, snap.RunID)
	require.Eventually(t, func() bool { return log.finishedCount() == 1 }, time.Second, time.Millisecond)

	log.mu.Lock()
	require.NotEmpty(t, log.snapshots)
	require.Equal(t, timeline.PhaseFinished, log.finished[0].Phase)
	log.mu.Unlock()

	_, accepted, err := r.Answer(ctx, 0)
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestRunner_restart(t *testing.T) {
	ctx := context.Background()
	r, _ := newRunner(t, &snapshotLog{})

	_, _, err := r.Start(ctx)
	require.NoError(t, err)
	first := waitForPhase(t, r, timeline.PhaseQuestions)

	snap, err := r.Restart(ctx)
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseIdle, snap.Phase)
	require.Empty(t, snap.Transcript)

	// Nothing of the abandoned run may leak into the idle state.
	time.Sleep(20 * time.Millisecond)
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseIdle, snap.Phase)
	require.Empty(t, snap.Transcript)

	snap, started, err := r.Start(ctx)
	require.NoError(t, err)
	require.True(t, started)
	require.NotEqual(t, first.RunID, snap.RunID)
	require.Greater(t, snap.Generation, first.Generation)
}

func TestRunner_stopped(t *testing.T) {
	r, cancel := newRunner(t, &snapshotLog{})
	cancel()
	<-r.Done()

	_, _, err := r.Start(context.Background())
	require.ErrorIs(t, err, timeline.ErrRunnerStopped)
	_, err = r.Snapshot(context.Background())
	require.ErrorIs(t, err, timeline.ErrRunnerStopped)
}
