package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgPacket(id string) state.Packet {
	return state.Packet{From: "B", Data: &state.DataMessage{Id: id, Source: "B", Destination: "A"}}
}

func TestInbox_RejectNew(t *testing.T) {
	q := NewInbox(2, state.RejectNew)
	for _, id := range []string{"m1", "m2"} {
		victim, err := q.Push(msgPacket(id))
		require.NoError(t, err)
		assert.Nil(t, victim)
	}
	victim, err := q.Push(msgPacket("m3"))
	assert.ErrorIs(t, err, state.ErrQueueOverflow)
	assert.Nil(t, victim)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, "m1", (<-q.C).Data.Id)
}

func TestInbox_DropOldest(t *testing.T) {
	q := NewInbox(2, state.DropOldest)
	for _, id := range []string{"m1", "m2"} {
		_, err := q.Push(msgPacket(id))
		require.NoError(t, err)
	}
	victim, err := q.Push(msgPacket("m3"))
	require.NoError(t, err)
	require.NotNil(t, victim)
	assert.Equal(t, "m1", victim.Data.Id)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, "m2", (<-q.C).Data.Id)
	assert.Equal(t, "m3", (<-q.C).Data.Id)
}

func TestInflight(t *testing.T) {
	f := newInflight()
	ctx := context.Background()
	require.NoError(t, f.wait(ctx))

	f.add()
	f.add()
	assert.Equal(t, 2, f.count())

	waited := make(chan error, 1)
	go func() {
		waited <- f.wait(ctx)
	}()
	f.done()
	select {
	case <-waited:
		t.Fatal("wait returned with a packet in flight")
	case <-time.After(20 * time.Millisecond):
	}
	f.done()
	select {
	case err := <-waited:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}

	// extra done calls never go negative
	f.done()
	assert.Equal(t, 0, f.count())
}

func TestInflight_WaitCancelled(t *testing.T) {
	f := newInflight()
	f.add()
	cause := errors.New("shutting down")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)
	assert.ErrorIs(t, f.wait(ctx), cause)
}
