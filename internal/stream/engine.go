package stream

import (
	"fmt"
	"sort"

	"github.com/dif001/mvfst/internal/flowcontrol"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/qerr"
)

// Limits is the set of per-type flow-control limits a peer advertises in
// its transport parameters, used to size a stream's flow controller the
// moment it's created (locally opened) or first seen (peer opened).
type Limits struct {
	MaxData             protocol.ByteCount
	InitialMaxStreamData protocol.ByteCount // applies uniformly; this core does not distinguish bidi-local/remote/uni windows beyond this
	MaxStreamsBidi       uint64
	MaxStreamsUni        uint64
}

// Engine owns the connection's stream table: allocation of locally
// initiated stream IDs, admission of peer-initiated ones, and the shared
// connection-level flow controller every stream debits against.
type Engine struct {
	perspective protocol.Perspective

	conn flowcontrol.ConnectionFlowController

	limits Limits

	streams map[protocol.StreamID]*Stream

	nextBidi protocol.StreamID
	nextUni  protocol.StreamID

	openBidiRemote uint64
	openUniRemote  uint64
}

// NewEngine constructs a stream engine for the given perspective, backed by
// conn for connection-level flow control.
func NewEngine(pers protocol.Perspective, conn flowcontrol.ConnectionFlowController, limits Limits) *Engine {
	e := &Engine{
		perspective: pers,
		conn:        conn,
		limits:      limits,
		streams:     make(map[protocol.StreamID]*Stream),
	}
	if pers == protocol.PerspectiveClient {
		e.nextBidi, e.nextUni = 0, 2
	} else {
		e.nextBidi, e.nextUni = 1, 3
	}
	return e
}

// OpenStream allocates the next locally initiated stream ID of the
// requested directionality and installs a stream for it.
func (e *Engine) OpenStream(uni bool) (*Stream, error) {
	var id protocol.StreamID
	if uni {
		if e.countLocal(true) >= e.limits.MaxStreamsUni {
			return nil, qerr.NewTransportError(qerr.StreamLimitError, "uni stream limit reached")
		}
		id = e.nextUni
		e.nextUni += 4
	} else {
		if e.countLocal(false) >= e.limits.MaxStreamsBidi {
			return nil, qerr.NewTransportError(qerr.StreamLimitError, "bidi stream limit reached")
		}
		id = e.nextBidi
		e.nextBidi += 4
	}
	s := NewStream(id, e.newFlowController(id))
	e.streams[id] = s
	return s, nil
}

// GetOrCreatePeerStream returns the stream for a peer-initiated id,
// creating and admitting it on first reference. It rejects ids the local
// perspective itself would have allocated.
func (e *Engine) GetOrCreatePeerStream(id protocol.StreamID) (*Stream, error) {
	if s, ok := e.streams[id]; ok {
		return s, nil
	}
	if id.InitiatedBy() == e.perspective {
		return nil, qerr.NewTransportError(qerr.StreamStateError, fmt.Sprintf("stream %d was never opened locally", id))
	}
	if id.IsUniDirectional() {
		e.openUniRemote++
		if e.openUniRemote > e.limits.MaxStreamsUni {
			return nil, qerr.NewTransportError(qerr.StreamLimitError, "peer exceeded uni stream limit")
		}
	} else {
		e.openBidiRemote++
		if e.openBidiRemote > e.limits.MaxStreamsBidi {
			return nil, qerr.NewTransportError(qerr.StreamLimitError, "peer exceeded bidi stream limit")
		}
	}
	s := NewStream(id, e.newFlowController(id))
	e.streams[id] = s
	return s, nil
}

// Get returns the stream for id, if it has been created.
func (e *Engine) Get(id protocol.StreamID) (*Stream, bool) {
	s, ok := e.streams[id]
	return s, ok
}

// ReapTerminal drops every stream whose send and receive halves have both
// reached a terminal state, keeping the stream table bounded over a
// long-lived connection.
func (e *Engine) ReapTerminal() {
	for id, s := range e.streams {
		if s.IsTerminal() {
			delete(e.streams, id)
		}
	}
}

// OpenStreamIDs returns every currently tracked stream id, sorted, mainly
// for deterministic iteration in tests and diagnostics.
func (e *Engine) OpenStreamIDs() []protocol.StreamID {
	ids := make([]protocol.StreamID, 0, len(e.streams))
	for id := range e.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Engine) countLocal(uni bool) uint64 {
	var n uint64
	for id := range e.streams {
		if id.InitiatedBy() == e.perspective && id.IsUniDirectional() == uni {
			n++
		}
	}
	return n
}

func (e *Engine) newFlowController(id protocol.StreamID) flowcontrol.StreamFlowController {
	return flowcontrol.NewStreamFlowController(
		id,
		true, // every stream, bidi or uni, debits the shared connection-level window
		e.conn,
		e.limits.InitialMaxStreamData,
		e.limits.InitialMaxStreamData,
		e.limits.InitialMaxStreamData,
	)
}
