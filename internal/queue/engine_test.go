package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
	"github.com/giantswarm/phnx-homeserver/internal/queue/queuetest"
)

func newEngine() (*queue.Engine, *queuetest.MemStore) {
	store := queuetest.NewMemStore()
	notifier := queuetest.NewMemNotifier()
	return queue.NewEngine(store, notifier), store
}

func TestEnqueue_SequenceMismatchRejected(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine()
	id := queue.Id(uuid.New())

	_, err := engine.Enqueue(ctx, id, 0, []byte("m0"))
	require.NoError(t, err)

	_, err = engine.Enqueue(ctx, id, 5, []byte("m5"))
	require.Error(t, err)
	assert.True(t, apierrors.IsProtocolViolation(err))
}

func TestListen_DeliversInAscendingOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine, _ := newEngine()
	id := queue.Id(uuid.New())

	for i := uint64(0); i < 5; i++ {
		_, err := engine.Enqueue(ctx, id, i, []byte{byte(i)})
		require.NoError(t, err)
	}

	events, err := engine.Listen(ctx, id, 0)
	require.NoError(t, err)

	var got []byte
	for i := 0; i < 5; i++ {
		select {
		case ev := <-events:
			require.NotNil(t, ev.Message)
			got = append(got, ev.Message.Ciphertext[0])
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, got)
}

func TestListen_EmitsEmptySentinelWhenDrained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine, _ := newEngine()
	id := queue.Id(uuid.New())

	_, err := engine.Enqueue(ctx, id, 0, []byte("m0"))
	require.NoError(t, err)

	events, err := engine.Listen(ctx, id, 0)
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	select {
	case ev := <-events:
		assert.True(t, ev.Empty)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for empty sentinel")
	}
}

func TestListen_NewListenerCancelsPrevious(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine, _ := newEngine()
	id := queue.Id(uuid.New())

	first, err := engine.Listen(ctx, id, 0)
	require.NoError(t, err)

	second, err := engine.Listen(ctx, id, 0)
	require.NoError(t, err)

	select {
	case _, ok := <-first:
		assert.False(t, ok, "superseded listener's channel should close")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first listener to close")
	}

	_, err = engine.Enqueue(ctx, id, 0, []byte("m0"))
	require.NoError(t, err)

	select {
	case ev := <-second:
		require.NotNil(t, ev.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second listener's message")
	}
}

func TestAck_TruncatesQueue(t *testing.T) {
	ctx := context.Background()
	engine, store := newEngine()
	id := queue.Id(uuid.New())

	for i := uint64(0); i < 3; i++ {
		_, err := engine.Enqueue(ctx, id, i, []byte{byte(i)})
		require.NoError(t, err)
	}

	require.NoError(t, engine.Ack(ctx, id, 1))

	remaining, err := store.FetchFrom(ctx, id, 0, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(2), remaining[0].SequenceNumber)
}

func TestEnqueue_IsListeningReflectsLiveListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine, _ := newEngine()
	id := queue.Id(uuid.New())

	isListening, err := engine.Enqueue(ctx, id, 0, []byte("m0"))
	require.NoError(t, err)
	assert.False(t, isListening)

	_, err = engine.Listen(ctx, id, 1)
	require.NoError(t, err)

	isListening, err = engine.Enqueue(ctx, id, 1, []byte("m1"))
	require.NoError(t, err)
	assert.True(t, isListening)
}
