package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ N int }

func TestPublishByType(t *testing.T) {
	Use(New())
	t.Cleanup(func() { Use(nil) })

	var pings, pongs []int
	Subscribe(func(_ context.Context, e ping) { pings = append(pings, e.N) })
	Subscribe(func(_ context.Context, e pong) { pongs = append(pongs, e.N) })

	Publish(context.Background(), ping{1})
	Publish(context.Background(), pong{2})
	Publish(context.Background(), ping{3})

	require.Equal(t, []int{1, 3}, pings)
	require.Equal(t, []int{2}, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	b := New()
	var a, c int
	offA := On(b, func(context.Context, ping) { a++ })
	On(b, func(context.Context, ping) { c++ })

	b.emit(context.Background(), ping{})
	offA()
	offA()
	b.emit(context.Background(), ping{})

	require.Equal(t, 1, a)
	require.Equal(t, 2, c)
}

func TestDisabledBus(t *testing.T) {
	Use(nil)
	called := false
	off := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	off()
	require.False(t, called)
}
