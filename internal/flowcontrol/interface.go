// Package flowcontrol implements the two levels of flow control QUIC
// streams are gated by: a per-stream window (the peer's advertised
// InitialMaxStreamData for the stream's type) and a per-connection window
// (the peer's InitialMaxData). Unlike the rest of the corpus this package
// is grounded on, the connection this core drives is single-threaded
// cooperative (see the spec's concurrency model) so these controllers carry
// no internal locking — callers run exclusively on the event-loop goroutine.
package flowcontrol

import "github.com/dif001/mvfst/internal/protocol"

// WindowUpdateThreshold is the fraction of the receive window that must be
// consumed before a new MAX_DATA/MAX_STREAM_DATA is advertised: "cover at
// least half the window before re-advertising."
const WindowUpdateThreshold = 0.5

// StreamFlowController gates one stream's send and receive sides.
type StreamFlowController interface {
	// send side
	AddBytesSent(n protocol.ByteCount)
	SendWindowSize() protocol.ByteCount
	UpdateSendWindow(offset protocol.ByteCount)
	IsNewlyBlocked() (bool, protocol.ByteCount)

	// receive side
	AddBytesRead(n protocol.ByteCount) error
	UpdateHighestReceived(byteOffset protocol.ByteCount, final bool) error
	GetWindowUpdate() (protocol.ByteCount, bool)

	ContributesToConnection() bool
}

// ConnectionFlowController gates the connection-wide window that every
// stream contributing to it shares.
type ConnectionFlowController interface {
	AddBytesSent(n protocol.ByteCount)
	SendWindowSize() protocol.ByteCount
	UpdateSendWindow(offset protocol.ByteCount)
	IsNewlyBlocked() (bool, protocol.ByteCount)

	AddBytesRead(n protocol.ByteCount) error
	GetWindowUpdate() (protocol.ByteCount, bool)
}
