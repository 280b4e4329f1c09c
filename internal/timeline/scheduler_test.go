package timeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/myrjola/mavis/internal/timeline"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	clock *timeline.VirtualClock
	fired []int
	at    []time.Duration
	// chain schedules a follow-up for every continuation with Index < chain.
	chain int
}

func (r *recorder) Fire(_ context.Context, c timeline.Continuation) bool {
	r.fired = append(r.fired, c.Index)
	r.at = append(r.at, r.clock.Now())
	if c.Index < r.chain {
		r.clock.Schedule(10*time.Millisecond, timeline.Continuation{Index: c.Index + 1})
	}
	return true
}

func TestVirtualClock(t *testing.T) {
	ctx := context.Background()

	t.Run("fires in due order then scheduling order", func(t *testing.T) {
		clock := timeline.NewVirtualClock()
		r := &recorder{clock: clock}
		clock.Schedule(30*time.Millisecond, timeline.Continuation{Index: 3})
		clock.Schedule(10*time.Millisecond, timeline.Continuation{Index: 1})
		clock.Schedule(10*time.Millisecond, timeline.Continuation{Index: 2})
		clock.Schedule(0, timeline.Continuation{Index: 0})

		require.Equal(t, []int{0, 1, 2, 3}, func() []int {
			var indices []int
			for _, c := range clock.Pending() {
				indices = append(indices, c.Index)
			}
			return indices
		}())

		require.Equal(t, 3, clock.Advance(ctx, r, 10*time.Millisecond))
		require.Equal(t, []int{0, 1, 2}, r.fired)
		require.Equal(t, 10*time.Millisecond, clock.Now())

		require.Equal(t, 1, clock.Advance(ctx, r, time.Hour))
		require.Equal(t, []int{0, 1, 2, 3}, r.fired)
		require.Equal(t, []time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond}, r.at)
		require.Equal(t, time.Hour+10*time.Millisecond, clock.Now())
	})

	t.Run("advance fires continuations scheduled while advancing", func(t *testing.T) {
		clock := timeline.NewVirtualClock()
		r := &recorder{clock: clock, chain: 5}
		clock.Schedule(10*time.Millisecond, timeline.Continuation{Index: 0})

		require.Equal(t, 3, clock.Advance(ctx, r, 30*time.Millisecond))
		require.Equal(t, []int{0, 1, 2}, r.fired)
		require.Len(t, clock.Pending(), 1)
	})

	t.Run("run until idle drains everything", func(t *testing.T) {
		clock := timeline.NewVirtualClock()
		r := &recorder{clock: clock, chain: 5}
		clock.Schedule(time.Second, timeline.Continuation{Index: 0})

		require.Equal(t, 6, clock.RunUntilIdle(ctx, r))
		require.Empty(t, clock.Pending())
		require.Equal(t, time.Second+50*time.Millisecond, clock.Now())
	})
}
