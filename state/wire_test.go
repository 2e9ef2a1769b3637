package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestUpdateCodec(t *testing.T) {
	u := RoutingUpdate{
		Sender: "sat-1",
		Seqno:  42,
		Entries: []UpdateEntry{
			{Destination: "sat-1", Cost: 0, HopCount: 0},
			{Destination: "sat-2", Cost: 1.5, HopCount: 1},
			{Destination: "sat-3", Cost: INF, HopCount: 16},
		},
	}
	frame := EncodeUpdate(u)
	got, err := DecodeUpdate(frame)
	assert.NoError(t, err)
	if diff := cmp.Diff(u, got); diff != "" {
		t.Fatalf("decoded update mismatch (-want +got):\n%s", diff)
	}

	size := HeaderSize(u.Sender, u.Seqno)
	for _, e := range u.Entries {
		size += EntrySize(e)
	}
	assert.Equal(t, len(frame), size)
}

func TestDecodeUpdate_SkipsUnknownFields(t *testing.T) {
	frame := EncodeUpdate(RoutingUpdate{Sender: "a", Seqno: 1})
	frame = protowire.AppendTag(frame, 9, protowire.VarintType)
	frame = protowire.AppendVarint(frame, 7)
	got, err := DecodeUpdate(frame)
	assert.NoError(t, err)
	assert.Equal(t, NodeId("a"), got.Sender)
	assert.Empty(t, got.Entries)
}

func TestDecodeUpdate_Malformed(t *testing.T) {
	frame := EncodeUpdate(RoutingUpdate{Sender: "a", Seqno: 1, Entries: []UpdateEntry{{Destination: "b", Cost: 1, HopCount: 1}}})

	_, err := DecodeUpdate(frame[:len(frame)-3])
	assert.Error(t, err)

	_, err = DecodeUpdate(nil)
	assert.ErrorIs(t, err, errTruncatedFrame)

	bad := EncodeUpdate(RoutingUpdate{Sender: "a", Entries: []UpdateEntry{{Destination: "b", Cost: -1}}})
	_, err = DecodeUpdate(bad)
	assert.ErrorContains(t, err, "invalid cost")
}
