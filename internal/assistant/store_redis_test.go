package assistant

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour, nil), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	sess, release, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	sess.AppendMessage(RoleUser, "hello", sessNow)
	sess.AllowAppointmentIDs("appt-1")
	sess.RecordOperation(OpBooking, StatusSuccess, sessNow)
	require.NoError(t, store.Save(ctx, sess))
	release()

	got, err := store.Peek(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.True(t, got.IsAppointmentAllowed("appt-1"))
	assert.True(t, got.OperationSucceeded(OpBooking))
}

func TestRedisStore_SaveSetsTTL(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	sess, release, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))
	release()

	assert.Equal(t, time.Hour, mr.TTL("session:s1"))

	// Expiry removes the session entirely.
	mr.FastForward(2 * time.Hour)
	_, err = store.Peek(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_SavePrunesStaleOffers(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	sess, release, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	defer release()
	sess.RecordOffer(Offer{Kind: OfferAvailability, At: time.Now().Add(-11 * time.Minute), Slots: []OfferSlot{{Date: "2026-09-03", Time: "09:00"}}})
	sess.RecordOffer(Offer{Kind: OfferAvailability, At: time.Now(), Slots: []OfferSlot{{Date: "2026-09-04", Time: "14:00"}}})
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Peek(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Offers, 1)
	assert.Equal(t, "2026-09-04", got.Offers[0].Slots[0].Date)
}

func TestRedisStore_PeekAndDeleteNotFound(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	_, err := store.Peek(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrSessionNotFound)

	sess, release, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))
	release()

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Peek(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_SerializesTurnsPerKey(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, release, err := store.Acquire(ctx, "s1")
			if err != nil {
				t.Error(err)
				return
			}
			defer release()
			sess.AppendMessage(RoleUser, fmt.Sprintf("m%d", i), sessNow)
			if err := store.Save(ctx, sess); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Peek(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, turns)
}

func TestRedisStore_CorruptBlobSurfacesError(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("session:bad", "{not json"))
	_, err := store.Peek(ctx, "bad")
	assert.ErrorContains(t, err, "failed to decode session")
}
