package state

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Routing update frames use the protobuf wire format:
//
//	message RoutingUpdate { string sender = 1; uint32 seqno = 2; repeated Entry entries = 3; }
//	message Entry { string destination = 1; double cost = 2; uint32 hop_count = 3; }
const (
	fieldSender  protowire.Number = 1
	fieldSeqno   protowire.Number = 2
	fieldEntries protowire.Number = 3

	fieldDestination protowire.Number = 1
	fieldCost        protowire.Number = 2
	fieldHopCount    protowire.Number = 3
)

var errTruncatedFrame = errors.New("truncated routing update frame")

func appendEntry(b []byte, e UpdateEntry) []byte {
	b = protowire.AppendTag(b, fieldDestination, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Destination))
	b = protowire.AppendTag(b, fieldCost, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.Cost))
	b = protowire.AppendTag(b, fieldHopCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.HopCount))
	return b
}

// EntrySize is the number of bytes e adds to a frame.
func EntrySize(e UpdateEntry) int {
	n := len(appendEntry(nil, e))
	return protowire.SizeTag(fieldEntries) + protowire.SizeBytes(n)
}

// HeaderSize is the size of a frame with no entries.
func HeaderSize(sender NodeId, seqno uint32) int {
	return protowire.SizeTag(fieldSender) + protowire.SizeBytes(len(sender)) +
		protowire.SizeTag(fieldSeqno) + protowire.SizeVarint(uint64(seqno))
}

func EncodeUpdate(u RoutingUpdate) []byte {
	b := make([]byte, 0, HeaderSize(u.Sender, u.Seqno)+len(u.Entries)*24)
	b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
	b = protowire.AppendString(b, string(u.Sender))
	b = protowire.AppendTag(b, fieldSeqno, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.Seqno))
	for _, e := range u.Entries {
		b = protowire.AppendTag(b, fieldEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, appendEntry(nil, e))
	}
	return b
}

func DecodeUpdate(b []byte) (RoutingUpdate, error) {
	var u RoutingUpdate
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return u, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return u, protowire.ParseError(n)
			}
			u.Sender = NodeId(v)
			b = b[n:]
		case num == fieldSeqno && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, protowire.ParseError(n)
			}
			u.Seqno = uint32(v)
			b = b[n:]
		case num == fieldEntries && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, protowire.ParseError(n)
			}
			e, err := decodeEntry(v)
			if err != nil {
				return u, err
			}
			u.Entries = append(u.Entries, e)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return u, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if u.Sender == "" {
		return u, fmt.Errorf("%w: missing sender", errTruncatedFrame)
	}
	return u, nil
}

func decodeEntry(b []byte) (UpdateEntry, error) {
	var e UpdateEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldDestination && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Destination = NodeId(v)
			b = b[n:]
		case num == fieldCost && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Cost = math.Float64frombits(v)
			b = b[n:]
		case num == fieldHopCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.HopCount = int(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if e.Destination == "" {
		return e, fmt.Errorf("%w: entry without destination", errTruncatedFrame)
	}
	if math.IsNaN(e.Cost) || e.Cost < 0 {
		return e, fmt.Errorf("invalid cost %v for %s", e.Cost, e.Destination)
	}
	return e, nil
}
