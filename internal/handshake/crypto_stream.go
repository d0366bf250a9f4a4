package handshake

import (
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/utils"
)

// cryptoStreamSet holds the four per-epoch CRYPTO streams the handshake
// layer reassembles CRYPTO frames on. Each is an ordered byte stream with no
// flow-control limit: the handshake has no notion of a receive window,
// unlike application streams.
type cryptoStreamSet struct {
	inbound  [protocol.NumEncryptionLevels]utils.ReassemblyBuffer
	outbound [protocol.NumEncryptionLevels][]byte
}

// handleFrame reassembles one CRYPTO frame and returns the newly contiguous
// bytes, if any, ready to hand to the TLS stack.
func (s *cryptoStreamSet) handleFrame(level protocol.EncryptionLevel, offset protocol.ByteCount, data []byte) []byte {
	buf := &s.inbound[level]
	buf.Push(offset, data)
	return buf.Pop()
}

// enqueueOutbound appends handshake bytes the TLS stack produced at level,
// to be drained by PendingCryptoData and framed as outgoing CRYPTO frames.
func (s *cryptoStreamSet) enqueueOutbound(level protocol.EncryptionLevel, data []byte) {
	s.outbound[level] = append(s.outbound[level], data...)
}

// drainOutbound removes and returns everything buffered for level.
func (s *cryptoStreamSet) drainOutbound(level protocol.EncryptionLevel) []byte {
	data := s.outbound[level]
	s.outbound[level] = nil
	return data
}
