package ackhandler

import (
	"fmt"

	"github.com/dif001/mvfst/internal/congestion"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/utils"
)

// Tracker owns the map of outstanding packets for one connection (packet
// numbers are shared across epochs in the draft-17 numbering this core
// targets) and drives the congestion controller from ack/loss decisions
// made elsewhere (the caller supplies which packet numbers were acked or
// lost; this type does not itself implement ack-range parsing, which lives
// with the wire frame decoder that is out of scope here).
type Tracker struct {
	controller congestion.Controller

	packets map[protocol.PacketNumber]*OutstandingPacket

	largestSent protocol.PacketNumber
	largestAcked protocol.PacketNumber
}

func NewTracker(controller congestion.Controller) *Tracker {
	return &Tracker{
		controller:   controller,
		packets:      make(map[protocol.PacketNumber]*OutstandingPacket),
		largestSent:  protocol.InvalidPacketNumber,
		largestAcked: protocol.InvalidPacketNumber,
	}
}

// SentPacket registers a newly sent packet and charges its bytes against
// the congestion window.
func (t *Tracker) SentPacket(p *OutstandingPacket) {
	if _, ok := t.packets[p.PacketNumber]; ok {
		panic(fmt.Sprintf("ackhandler: packet %d sent twice", p.PacketNumber))
	}
	t.packets[p.PacketNumber] = p
	if p.PacketNumber > t.largestSent {
		t.largestSent = p.PacketNumber
	}
	t.controller.OnPacketSent(p.EncodedSize)
}

// ReceivedAck removes each acked packet number from the outstanding set and
// feeds a single AckEvent to the congestion controller, matching the
// ordering guarantee that ack processing for a packet always completes
// before loss processing for packets it covers.
func (t *Tracker) ReceivedAck(ackedPacketNumbers []protocol.PacketNumber) {
	if len(ackedPacketNumbers) == 0 {
		return
	}
	var ackedBytes protocol.ByteCount
	largest := protocol.InvalidPacketNumber
	for _, pn := range ackedPacketNumbers {
		p, ok := t.packets[pn]
		if !ok {
			continue // already removed (duplicate ACK, or declared lost earlier)
		}
		ackedBytes += p.EncodedSize
		delete(t.packets, pn)
		if pn > largest {
			largest = pn
		}
	}
	if largest == protocol.InvalidPacketNumber {
		return
	}
	if largest > t.largestAcked {
		t.largestAcked = largest
	}
	t.controller.OnPacketAcked(congestion.AckEvent{
		LargestAckedPacket: largest,
		AckedBytes:         ackedBytes,
	}, t.largestSent)
}

// DeclareLost removes each lost packet number from the outstanding set and
// feeds a single LossEvent to the congestion controller. Per the ordering
// guarantee, callers must invoke DeclareLost for packets covered by a
// decision before the matching ReceivedAck call runs its ack half, so that
// inflight accounting reflects losses first.
func (t *Tracker) DeclareLost(lostPacketNumbers []protocol.PacketNumber) []*OutstandingPacket {
	if len(lostPacketNumbers) == 0 {
		return nil
	}
	var lostBytes protocol.ByteCount
	largest := protocol.InvalidPacketNumber
	lost := make([]*OutstandingPacket, 0, len(lostPacketNumbers))
	for _, pn := range lostPacketNumbers {
		p, ok := t.packets[pn]
		if !ok {
			continue
		}
		lostBytes += p.EncodedSize
		lost = append(lost, p)
		delete(t.packets, pn)
		if pn > largest {
			largest = pn
		}
	}
	if largest == protocol.InvalidPacketNumber {
		return lost
	}
	utils.Debugf("declaring %d packet(s) lost, largest %d", len(lost), largest)
	t.controller.OnPacketLoss(congestion.LossEvent{
		LargestLostPacketNum: largest,
		LostBytes:            lostBytes,
	}, t.largestSent)
	return lost
}

// RemoveFromInflight accounts for bytes leaving the inflight set for a
// reason other than ack or loss bookkeeping here (e.g. the caller already
// declared the packet lost through a different path and only needs the
// congestion-window side effect).
func (t *Tracker) RemoveFromInflight(n protocol.ByteCount) {
	t.controller.OnRemoveBytesFromInflight(n)
}

func (t *Tracker) LargestSent() protocol.PacketNumber  { return t.largestSent }
func (t *Tracker) LargestAcked() protocol.PacketNumber { return t.largestAcked }
func (t *Tracker) Outstanding() int                    { return len(t.packets) }

func (t *Tracker) Get(pn protocol.PacketNumber) (*OutstandingPacket, bool) {
	p, ok := t.packets[pn]
	return p, ok
}
