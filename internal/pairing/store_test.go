package pairing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/kv/kvtest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(kvtest.NewStore(t))
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	set, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, set)

	set, sent, err := s.Send(ctx, alice, bob, "ctx-a")
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.NotEmpty(t, sent.ID)
	require.False(t, sent.CreatedAt.IsZero())

	_, _, err = s.Send(ctx, bob, alice, "ctx-b")
	require.ErrorIs(t, err, ErrDuplicatePending)

	_, accepted, err := s.Accept(ctx, sent.ID, "ctx-b")
	require.NoError(t, err)
	require.Equal(t, domain.InvitationAccepted, accepted.Status)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.AcceptedFor("u1"), 1)

	set, err = s.End(ctx, sent.ID, "ctx-a")
	require.NoError(t, err)
	require.Empty(t, set)

	// ending twice is harmless
	_, err = s.End(ctx, sent.ID, "ctx-b")
	require.NoError(t, err)
}

func TestStore_DeclinePublishesToWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStore(t)

	_, sent, err := s.Send(ctx, alice, bob, "ctx-a")
	require.NoError(t, err)

	ch, err := s.KV.Watch(ctx, InvitationsKey)
	require.NoError(t, err)

	_, declined, err := s.Decline(ctx, sent.ID, "ctx-b")
	require.NoError(t, err)
	require.Equal(t, domain.InvitationDeclined, declined.Status)

	c := <-ch
	require.Equal(t, InvitationsKey, c.Key)
	require.Equal(t, "ctx-b", c.Origin)
	set, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestStore_CorruptDocumentReadsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.KV.Set(ctx, InvitationsKey, []byte("{not json"), "x"))

	set, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, set)

	_, _, err = s.Send(ctx, alice, bob, "ctx-a")
	require.NoError(t, err)
}
