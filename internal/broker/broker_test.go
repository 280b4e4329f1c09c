package broker_test

import (
	"testing"
	"time"

	"github.com/myrjola/mavis/internal/broker"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c <-chan string) (string, bool) {
	t.Helper()
	select {
	case payload, ok := <-c:
		return payload, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return "", false
	}
}

func TestBroker(t *testing.T) {
	type testCase struct {
		name     string
		testFunc func(t *testing.T, b *broker.Broker[int, string])
	}
	tests := []testCase{
		{
			name: "subscribers receive payloads of their id",
			testFunc: func(t *testing.T, b *broker.Broker[int, string]) {
				first, unsubscribeFirst := b.Subscribe(1)
				defer unsubscribeFirst()
				second, unsubscribeSecond := b.Subscribe(1)
				defer unsubscribeSecond()
				other, unsubscribeOther := b.Subscribe(2)
				defer unsubscribeOther()

				b.Publish(1, "hello")
				payload, ok := receive(t, first)
				require.True(t, ok)
				require.Equal(t, "hello", payload)
				payload, _ = receive(t, second)
				require.Equal(t, "hello", payload)
				require.Empty(t, other, "other ids do not receive the payload")
			},
		},
		{
			name: "latest payload wins for slow subscribers",
			testFunc: func(t *testing.T, b *broker.Broker[int, string]) {
				c, unsubscribe := b.Subscribe(1)
				defer unsubscribe()
				b.Publish(1, "first")
				b.Publish(1, "second")
				b.Publish(1, "third")
				// Publish is synchronous with the broker loop so the subscriber channel is settled here.
				b.Publish(2, "sync")

				payload, _ := receive(t, c)
				require.Equal(t, "third", payload)
				require.Empty(t, c)
			},
		},
		{
			name: "new subscribers get the latest payload",
			testFunc: func(t *testing.T, b *broker.Broker[int, string]) {
				b.Publish(1, "current")
				c, unsubscribe := b.Subscribe(1)
				defer unsubscribe()
				payload, _ := receive(t, c)
				require.Equal(t, "current", payload)
			},
		},
		{
			name: "unsubscribe closes the channel",
			testFunc: func(t *testing.T, b *broker.Broker[int, string]) {
				c, unsubscribe := b.Subscribe(1)
				unsubscribe()
				unsubscribe()
				_, ok := receive(t, c)
				require.False(t, ok)
			},
		},
		{
			name: "forget closes subscribers and drops the latest payload",
			testFunc: func(t *testing.T, b *broker.Broker[int, string]) {
				b.Publish(1, "stale")
				c, unsubscribe := b.Subscribe(1)
				defer unsubscribe()
				b.Forget(1)
				payload, ok := receive(t, c)
				require.True(t, ok)
				require.Equal(t, "stale", payload)
				_, ok = receive(t, c)
				require.False(t, ok)

				fresh, unsubscribeFresh := b.Subscribe(1)
				defer unsubscribeFresh()
				b.Publish(2, "sync")
				require.Empty(t, fresh)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := broker.New[int, string]()
			go br.Start()
			t.Cleanup(func() {
				br.Stop()
			})
			tt.testFunc(t, br)
		})
	}
}
