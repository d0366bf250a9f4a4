// Package congestion implements the connection's congestion control
// capability. NewReno is the only variant implemented here, but the
// interface is kept capability-shaped (rather than a concrete struct) so a
// future BBR or Cubic controller can be swapped in without touching the
// connection state machine; see the "polymorphism over congestion
// controllers" design note this package is grounded on.
package congestion

import (
	"time"

	"github.com/dif001/mvfst/internal/protocol"
)

// ControllerType identifies a congestion-control algorithm.
type ControllerType uint8

const (
	ControllerTypeNewReno ControllerType = iota
	ControllerTypeCubic
	ControllerTypeBBR
)

// AckEvent summarizes the effect of processing one or more acknowledged
// packets.
type AckEvent struct {
	LargestAckedPacket protocol.PacketNumber
	AckedBytes         protocol.ByteCount
}

// LossEvent summarizes one or more packets declared lost together.
type LossEvent struct {
	LargestLostPacketNum protocol.PacketNumber
	LostBytes             protocol.ByteCount
}

// Controller is the capability set every congestion-control algorithm must
// implement. The connection state machine talks to this interface only; it
// never assumes NewReno-specific fields exist.
type Controller interface {
	// OnPacketSent records bytes added to the inflight set.
	OnPacketSent(encodedSize protocol.ByteCount)
	// OnRemoveBytesFromInflight removes bytes from the inflight set for a
	// reason other than acking them (e.g. they were declared lost and
	// scheduled for retransmission).
	OnRemoveBytesFromInflight(n protocol.ByteCount)
	// OnPacketAcked processes one ack event.
	OnPacketAcked(ack AckEvent, largestSent protocol.PacketNumber)
	// OnPacketLoss processes one loss event.
	OnPacketLoss(loss LossEvent, largestSent protocol.PacketNumber)
	// OnRTOVerified collapses the window after a verified retransmission
	// timeout.
	OnRTOVerified()

	WritableBytes() protocol.ByteCount
	BytesInFlight() protocol.ByteCount
	CongestionWindow() protocol.ByteCount
	InSlowStart() bool
	Type() ControllerType

	// PacingInterval and PacingRate exist so callers that are agnostic to
	// the concrete controller can always ask for a pacing hint. NewReno
	// does not support pacing: PacingInterval returns a default event-loop
	// tick and PacingRate returns the configured per-write packet limit.
	PacingInterval() time.Duration
	PacingRate() protocol.ByteCount
}
