package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBus_FansOutToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var a, b atomic.Int32
	bus.Subscribe("x", func(ctx context.Context, e domoutbox.Event) error { a.Add(1); return nil })
	bus.Subscribe("x", func(ctx context.Context, e domoutbox.Event) error { b.Add(1); return errors.New("ignored") })
	bus.Subscribe("y", func(ctx context.Context, e domoutbox.Event) error { t.Error("wrong event"); return nil })

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x"}))

	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBus_UnsubscribeSkipsHandler(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var kept, dropped atomic.Int32
	bus.Subscribe("x", func(ctx context.Context, e domoutbox.Event) error { kept.Add(1); return nil })
	unsubscribe := bus.Subscribe("x", func(ctx context.Context, e domoutbox.Event) error { dropped.Add(1); return nil })
	unsubscribe()
	unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x"}))
	require.Eventually(t, func() bool { return kept.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), dropped.Load())
}

func TestBus_RecoversFromPanickingHandler(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var calls atomic.Int32
	bus.Subscribe("x", func(ctx context.Context, e domoutbox.Event) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x"}))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBus_PublishAfterStop(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())
	bus.Stop(context.Background())

	assert.ErrorIs(t, bus.Publish(context.Background(), testEvent{name: "x"}), ErrStopped)
	assert.NoError(t, bus.Publish(context.Background(), nil))
}
