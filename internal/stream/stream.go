package stream

import (
	"fmt"

	"github.com/dif001/mvfst/internal/flowcontrol"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/qerr"
	"github.com/dif001/mvfst/internal/utils"
)

// ErrStreamStateError is returned when an operation is attempted against a
// stream whose send or receive half has already reached a terminal state,
// such as writing after a local reset.
type ErrStreamStateError struct {
	StreamID protocol.StreamID
	Detail   string
}

func (e *ErrStreamStateError) Error() string {
	return fmt.Sprintf("stream %d: %s", e.StreamID, e.Detail)
}

// Stream is one QUIC stream's full state: its independent send and receive
// state machines, its flow-control windows, and the byte buffers feeding
// and drained by each direction.
type Stream struct {
	id protocol.StreamID

	sendState SendState
	recvState RecvState

	flow flowcontrol.StreamFlowController

	writeBuf    []byte
	writeOffset protocol.ByteCount
	finQueued   bool

	// retransmitQueue holds bytes a frame carrying them was declared lost
	// for; PendingWrite drains these ahead of new data so a retransmission
	// always precedes whatever was written after it.
	retransmitQueue []sendChunk

	recv        utils.ReassemblyBuffer
	finalOffset *protocol.ByteCount

	resetErrorCode     *uint64
	peerResetErrorCode *uint64
}

type sendChunk struct {
	offset protocol.ByteCount
	data   []byte
	fin    bool
}

// NewStream constructs a stream bound to the given flow controller, which
// the caller builds from the peer's advertised InitialMaxStreamData* for
// this stream's directionality.
func NewStream(id protocol.StreamID, flow flowcontrol.StreamFlowController) *Stream {
	return &Stream{id: id, flow: flow}
}

func (s *Stream) ID() protocol.StreamID { return s.id }
func (s *Stream) SendState() SendState  { return s.sendState }
func (s *Stream) RecvState() RecvState  { return s.recvState }

// Write appends data to the stream's send buffer, gated by the smaller of
// the stream's and the connection's flow-control windows. It never blocks;
// if the window has no room at all, it returns (0, nil) with no data
// buffered, mirroring a non-blocking send API.
func (s *Stream) Write(data []byte) (int, error) {
	if s.sendState != SendOpen {
		return 0, &ErrStreamStateError{StreamID: s.id, Detail: fmt.Sprintf("cannot write in send state %s", s.sendState)}
	}
	n := len(data)
	if protocol.ByteCount(n) > s.flow.SendWindowSize() {
		n = int(s.flow.SendWindowSize())
	}
	if n == 0 {
		return 0, nil
	}
	s.writeBuf = append(s.writeBuf, data[:n]...)
	s.flow.AddBytesSent(protocol.ByteCount(n))
	return n, nil
}

// CloseForSend marks the stream's send side finished: once the buffered
// bytes are drained, a FIN is appended.
func (s *Stream) CloseForSend() {
	if s.sendState == SendOpen {
		s.finQueued = true
	}
}

// PendingWrite returns the next chunk of unsent bytes (up to maxLen) along
// with its offset and whether it carries the stream's FIN, draining the
// write buffer as it goes. The caller is responsible for framing this into
// a STREAM frame.
func (s *Stream) PendingWrite(maxLen int) (data []byte, offset protocol.ByteCount, fin bool) {
	if len(s.retransmitQueue) > 0 {
		c := s.retransmitQueue[0]
		if len(c.data) <= maxLen {
			s.retransmitQueue = s.retransmitQueue[1:]
			return c.data, c.offset, c.fin
		}
		head := c.data[:maxLen]
		s.retransmitQueue[0] = sendChunk{offset: c.offset + protocol.ByteCount(maxLen), data: c.data[maxLen:], fin: c.fin}
		return head, c.offset, false
	}
	if len(s.writeBuf) == 0 {
		if s.finQueued && s.sendState == SendOpen {
			s.sendState = SendDataSent
			return nil, s.writeOffset, true
		}
		return nil, s.writeOffset, false
	}
	n := len(s.writeBuf)
	if n > maxLen {
		n = maxLen
	}
	data = append([]byte(nil), s.writeBuf[:n]...)
	offset = s.writeOffset
	s.writeBuf = s.writeBuf[n:]
	s.writeOffset += protocol.ByteCount(n)
	if len(s.writeBuf) == 0 && s.finQueued {
		fin = true
		s.sendState = SendDataSent
	}
	return data, offset, fin
}

// OnDataAcked advances the send state to DataAcked once the FIN-bearing
// frame itself has been acknowledged. This is an approximation of RFC 9000's
// full "every byte through the final offset acked" condition: it assumes
// the FIN frame is the last one sent and that any data it depended on
// reaching the peer already made it there, which holds for this core's
// in-order, non-overlapping framing but would need per-range accounting for
// a sender that reorders its own retransmissions.
func (s *Stream) OnDataAcked(ackedThroughFin bool) {
	if s.sendState == SendDataSent && ackedThroughFin {
		s.sendState = SendDataAcked
	}
}

// Requeue reinstates bytes from a frame declared lost so PendingWrite offers
// them again ahead of anything written since.
func (s *Stream) Requeue(offset protocol.ByteCount, data []byte, fin bool) {
	if s.sendState != SendDataSent && s.sendState != SendOpen {
		return
	}
	s.retransmitQueue = append(s.retransmitQueue, sendChunk{offset: offset, data: data, fin: fin})
}

// ResetLocal moves the send side directly to ResetSent, discarding any
// buffered-but-unsent bytes: resetQuicStream's local-initiation path.
func (s *Stream) ResetLocal(errorCode uint64) {
	if s.sendState.IsTerminal() {
		return
	}
	s.resetErrorCode = &errorCode
	s.writeBuf = nil
	s.retransmitQueue = nil
	s.sendState = SendResetSent
}

// OnResetAcked finalizes a locally-initiated reset once the peer has
// acknowledged the RESET_STREAM frame.
func (s *Stream) OnResetAcked() {
	if s.sendState == SendResetSent {
		s.sendState = SendResetAcked
	}
}

// HandleStreamFrame reassembles one STREAM frame's bytes into the receive
// buffer, enforcing FINAL_SIZE_ERROR consistency against any previously-known
// final offset (from an earlier FIN or a RESET_STREAM). It does not check the
// frame against the receive flow-control window.
func (s *Stream) HandleStreamFrame(offset protocol.ByteCount, data []byte, fin bool) error {
	if s.recvState == RecvResetRecvd {
		return nil
	}
	end := offset + protocol.ByteCount(len(data))
	if err := s.flow.UpdateHighestReceived(end, fin); err != nil {
		return qerr.NewTransportError(qerr.FinalSizeError, err.Error())
	}
	s.recv.Push(offset, data)
	if fin {
		s.finalOffset = &end
		if s.recvState == RecvOpen {
			s.recvState = RecvSizeKnown
		}
	}
	return nil
}

// OnReset handles an incoming RESET_STREAM: the receive side jumps straight
// to ResetRecvd regardless of how much data had already arrived, after the
// same FINAL_SIZE_ERROR check HandleStreamFrame applies.
func (s *Stream) OnReset(errorCode uint64, finalSize protocol.ByteCount) error {
	if err := s.flow.UpdateHighestReceived(finalSize, true); err != nil {
		return qerr.NewTransportError(qerr.FinalSizeError, err.Error())
	}
	s.peerResetErrorCode = &errorCode
	s.finalOffset = &finalSize
	s.recvState = RecvResetRecvd
	return nil
}

// Read drains contiguous received bytes starting at the current read
// offset, crediting them to the flow-control window as they're consumed.
func (s *Stream) Read() ([]byte, error) {
	data := s.recv.Pop()
	if len(data) == 0 {
		return nil, nil
	}
	if err := s.flow.AddBytesRead(protocol.ByteCount(len(data))); err != nil {
		return nil, qerr.NewTransportError(qerr.FlowControlError, err.Error())
	}
	if s.recvState == RecvSizeKnown && s.IsAllDataReceived() {
		s.recvState = RecvDataRead
	}
	return data, nil
}

// IsAllDataReceived reports whether the final offset is known and every
// byte up to it has arrived, either already read or buffered with no gap:
// the isAllDataReceived predicate of the receive-side state machine.
func (s *Stream) IsAllDataReceived() bool {
	return s.finalOffset != nil && s.recv.IsContiguousUpTo(*s.finalOffset)
}

// IsTerminal reports whether both halves of the stream have reached a
// terminal state and the stream can be dropped from the stream table.
func (s *Stream) IsTerminal() bool {
	return s.sendState.IsTerminal() && s.recvState.IsTerminal()
}
