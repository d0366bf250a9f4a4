// Package utils collects small helpers (logging, byte reassembly) shared across the congestion, flow-control, handshake and
// stream packages. None of it is specific to any one of those packages, so
// it lives here instead of being duplicated or awkwardly owned by one of
// them.
package utils

import (
	"sort"

	"github.com/dif001/mvfst/internal/protocol"
)

type chunk struct {
	offset protocol.ByteCount
	data   []byte
}

// ReassemblyBuffer holds out-of-order byte ranges (as may arrive on a
// reordered UDP path) and releases them to the reader only once they become
// contiguous, exactly the ordering guarantee the spec requires for both
// CRYPTO streams and application stream data: "delivered in offset order,
// with gaps held until filled or reset."
type ReassemblyBuffer struct {
	readOffset protocol.ByteCount
	chunks     []chunk
}

// Push inserts a byte range at the given offset. Data wholly below the
// current read offset (a retransmission of already-consumed bytes) is
// dropped, and a range straddling the read offset is cut to start there.
// Overlap with bytes already buffered is kept as is; Pop skips the part of
// a chunk that was already released.
func (b *ReassemblyBuffer) Push(offset protocol.ByteCount, data []byte) {
	if len(data) == 0 {
		return
	}
	end := offset + protocol.ByteCount(len(data))
	if end <= b.readOffset {
		return
	}
	if offset < b.readOffset {
		data = data[b.readOffset-offset:]
		offset = b.readOffset
	}
	b.chunks = append(b.chunks, chunk{offset: offset, data: data})
	sort.Slice(b.chunks, func(i, j int) bool { return b.chunks[i].offset < b.chunks[j].offset })
}

// Pop drains every contiguous byte starting at the current read offset. It
// may be called repeatedly as more chunks fill gaps; each call returns only
// the newly contiguous portion.
func (b *ReassemblyBuffer) Pop() []byte {
	var out []byte
	i := 0
	for i < len(b.chunks) {
		c := b.chunks[i]
		if c.offset > b.readOffset {
			break
		}
		end := c.offset + protocol.ByteCount(len(c.data))
		if end <= b.readOffset {
			i++
			continue
		}
		novel := c.data[b.readOffset-c.offset:]
		out = append(out, novel...)
		b.readOffset += protocol.ByteCount(len(novel))
		i++
	}
	b.chunks = b.chunks[i:]
	return out
}

// ReadOffset is the number of contiguous bytes released so far.
func (b *ReassemblyBuffer) ReadOffset() protocol.ByteCount { return b.readOffset }

// IsContiguousUpTo reports whether every byte from 0 up to (but not
// including) offset has either been released already or is sitting in a
// buffered chunk with no gap before it — the predicate
// isAllDataReceived(stream) needs once the final offset is known.
func (b *ReassemblyBuffer) IsContiguousUpTo(offset protocol.ByteCount) bool {
	if offset <= b.readOffset {
		return true
	}
	next := b.readOffset
	for _, c := range b.chunks {
		if c.offset > next {
			return false
		}
		end := c.offset + protocol.ByteCount(len(c.data))
		if end > next {
			next = end
		}
		if next >= offset {
			return true
		}
	}
	return next >= offset
}
