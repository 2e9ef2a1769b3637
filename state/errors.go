package state

import "errors"

var (
	ErrMalformedTopologyRecord = errors.New("malformed topology record")
	ErrLinkInactive            = errors.New("link inactive")
	ErrRouteUnavailable        = errors.New("route unavailable")
	ErrTtlExpired              = errors.New("ttl expired")
	ErrQueueOverflow           = errors.New("queue overflow")
	ErrUnknownNode             = errors.New("unknown node")
)
