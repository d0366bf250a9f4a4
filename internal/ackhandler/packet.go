// Package ackhandler owns the set of outstanding packets: those sent but
// not yet acked or declared lost. It turns inbound ACK ranges and loss
// detection into the AckEvent/LossEvent pairs the congestion controller
// consumes, and is the sole writer of OutstandingPacket entries.
package ackhandler

import (
	"time"

	"github.com/dif001/mvfst/internal/protocol"
)

// OutstandingPacket is inserted into the tracker on send and removed on ack
// or declared loss, never both.
type OutstandingPacket struct {
	PacketNumber protocol.PacketNumber
	EncodedSize  protocol.ByteCount
	SendTime     time.Time
	Epoch        protocol.EncryptionLevel
	// Frames lists what the packet carried, so an ack can be applied to it
	// and a declared loss can requeue its STREAM and CRYPTO data.
	Frames []Frame
}

// Frame is a minimal marker for what an outstanding packet carried. The
// wire encoding of each frame type is an external collaborator (see the
// spec's scope note); this core only needs to know enough to replay data
// that is declared lost.
type Frame struct {
	Kind FrameKind
	// StreamID is meaningful for FrameKindStream and FrameKindResetStream.
	StreamID protocol.StreamID
	// Offset/Data/Fin describe a STREAM or CRYPTO frame's byte range,
	// retained verbatim so the same bytes can be requeued on loss.
	Offset protocol.ByteCount
	Data   []byte
	Fin    bool
}

type FrameKind uint8

const (
	FrameKindStream FrameKind = iota
	FrameKindCrypto
	FrameKindResetStream
	FrameKindAck
	FrameKindMaxData
	FrameKindMaxStreamData
	FrameKindPing
	FrameKindConnectionClose
)
