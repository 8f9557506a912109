package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-socialcart-backend/internal/kv/kvtest"
)

func TestConversationKey_OrderIndependent(t *testing.T) {
	require.Equal(t, ConversationKey("u1", "u2"), ConversationKey("u2", "u1"))
	require.Equal(t, "u1--u2", ConversationKey("u2", "u1"))

	a, b, ok := Participants("u1--u2")
	require.True(t, ok)
	require.Equal(t, "u1", a)
	require.Equal(t, "u2", b)
}

func TestSendAndGet(t *testing.T) {
	ctx := context.Background()
	s := New(kvtest.NewStore(t), 10)

	_, err := s.Send(ctx, "u1", "u2", "  hi  ", "ctx-a")
	require.NoError(t, err)
	_, err = s.Send(ctx, "u2", "u1", "hello", "ctx-b")
	require.NoError(t, err)

	log, err := s.Get(ctx, "u2", "u1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, "hi", log[0].Text)
	require.Equal(t, "u2", log[1].SenderID)

	_, err = s.Send(ctx, "u1", "u2", "   ", "ctx-a")
	require.ErrorIs(t, err, ErrEmptyText)
	_, err = s.Send(ctx, "u1", "u1", "me", "ctx-a")
	require.ErrorIs(t, err, ErrSelfMessage)
	_, err = s.Send(ctx, "u1", "u2", strings.Repeat("x", 11), "ctx-a")
	require.ErrorIs(t, err, ErrTooLong)

	empty, err := s.Get(ctx, "u1", "u3")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestInvolving(t *testing.T) {
	other, ok := Involving("chat:u1--u2", "u2")
	require.True(t, ok)
	require.Equal(t, "u1", other)

	_, ok = Involving("chat:u1--u2", "u3")
	require.False(t, ok)
	_, ok = Involving("cart:personal:u1", "u1")
	require.False(t, ok)
}
