package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func recv(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func TestBus_PrefixFiltering_AndOriginTag(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	carts, err := b.Subscribe(ctx, "cart:")
	require.NoError(t, err)
	all, err := b.Subscribe(ctx, "")
	require.NoError(t, err)

	b.Publish(Change{Key: "nav:shared", Origin: "ctx-a"})
	b.Publish(Change{Key: "cart:personal:u1", Origin: "ctx-b"})

	got := recv(t, carts)
	require.Equal(t, "cart:personal:u1", got.Key)
	require.True(t, got.FromOther("ctx-a"))
	require.False(t, got.FromOther("ctx-b"))

	require.Equal(t, "nav:shared", recv(t, all).Key)
	require.Equal(t, "cart:personal:u1", recv(t, all).Key)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-carts
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestBus_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx, "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Change{Key: "k"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, ch, 1)
	cancel()
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "")
	require.NoError(t, err)

	b.Close()
	_, ok := <-ch
	require.False(t, ok)

	_, err = b.Subscribe(ctx, "")
	require.ErrorIs(t, err, ErrClosed)

	// Cancelling after Close must not double-close.
	cancel()
	time.Sleep(10 * time.Millisecond)
}
