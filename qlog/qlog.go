// Package qlog writes a newline-delimited JSON event log of this core's
// connection lifecycle, following the qlog event-log conventions quic-go
// traces a connection's packet and frame events with, scaled down to the
// events this core actually produces (no frame/packet wire detail, since
// encoding those is outside this core's scope).
package qlog

import (
	"io"
	"sync"
	"time"

	"github.com/francoispqt/gojay"

	"github.com/dif001/mvfst/internal/protocol"
)

// Tracer writes one JSON object per event to w. It's safe for concurrent
// use, though this core's single-threaded event loop never needs that.
type Tracer struct {
	mu            sync.Mutex
	w             io.Writer
	referenceTime time.Time
}

// NewTracer wraps w. Every event's time field is relative to the moment
// NewTracer is called.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w, referenceTime: time.Now()}
}

func (t *Tracer) encode(ev gojay.MarshalerJSONObject) {
	t.mu.Lock()
	defer t.mu.Unlock()
	enc := gojay.NewEncoder(t.w)
	if err := enc.Encode(ev); err == nil {
		io.WriteString(t.w, "\n")
	}
}

func (t *Tracer) relativeMicros() int64 {
	return time.Since(t.referenceTime).Microseconds()
}

type baseEvent struct {
	timeUs int64
	name   string
}

func (e baseEvent) marshal(enc *gojay.Encoder) {
	enc.Int64Key("time_us", e.timeUs)
	enc.StringKey("name", e.name)
}

type connectionStartedEvent struct {
	baseEvent
	destConnID string
}

func (e connectionStartedEvent) MarshalJSONObject(enc *gojay.Encoder) {
	e.marshal(enc)
	enc.StringKey("dest_conn_id", e.destConnID)
}
func (e connectionStartedEvent) IsNil() bool { return false }

// OnConnectionStarted records the handshake beginning against destConnID.
// A nil *Tracer is a valid no-op tracer, matching Config.QLog being unset.
func (t *Tracer) OnConnectionStarted(destConnID protocol.ConnectionID) {
	if t == nil {
		return
	}
	t.encode(connectionStartedEvent{baseEvent{t.relativeMicros(), "connection_started"}, destConnID.String()})
}

type handshakeEstablishedEvent struct {
	baseEvent
	durationUs int64
}

func (e handshakeEstablishedEvent) MarshalJSONObject(enc *gojay.Encoder) {
	e.marshal(enc)
	enc.Int64Key("duration_us", e.durationUs)
}
func (e handshakeEstablishedEvent) IsNil() bool { return false }

// OnHandshakeEstablished records the handshake reaching the Established phase.
func (t *Tracer) OnHandshakeEstablished(d time.Duration) {
	if t == nil {
		return
	}
	t.encode(handshakeEstablishedEvent{baseEvent{t.relativeMicros(), "handshake_established"}, d.Microseconds()})
}

type packetEvent struct {
	baseEvent
	packetNumber int64
}

func (e packetEvent) MarshalJSONObject(enc *gojay.Encoder) {
	e.marshal(enc)
	enc.Int64Key("packet_number", e.packetNumber)
}
func (e packetEvent) IsNil() bool { return false }

// OnPacketSent, OnPacketAcked and OnPacketLost record per-packet congestion
// events keyed by packet number.
func (t *Tracer) OnPacketSent(pn protocol.PacketNumber) {
	if t == nil {
		return
	}
	t.encode(packetEvent{baseEvent{t.relativeMicros(), "packet_sent"}, int64(pn)})
}
func (t *Tracer) OnPacketAcked(pn protocol.PacketNumber) {
	if t == nil {
		return
	}
	t.encode(packetEvent{baseEvent{t.relativeMicros(), "packet_acked"}, int64(pn)})
}
func (t *Tracer) OnPacketLost(pn protocol.PacketNumber) {
	if t == nil {
		return
	}
	t.encode(packetEvent{baseEvent{t.relativeMicros(), "packet_lost"}, int64(pn)})
}

type streamOpenedEvent struct {
	baseEvent
	streamID int64
}

func (e streamOpenedEvent) MarshalJSONObject(enc *gojay.Encoder) {
	e.marshal(enc)
	enc.Int64Key("stream_id", e.streamID)
}
func (e streamOpenedEvent) IsNil() bool { return false }

// OnStreamOpened records a stream becoming known to the stream engine,
// whether opened locally or admitted from the peer.
func (t *Tracer) OnStreamOpened(id protocol.StreamID) {
	if t == nil {
		return
	}
	t.encode(streamOpenedEvent{baseEvent{t.relativeMicros(), "stream_opened"}, int64(id)})
}

type connectionClosedEvent struct {
	baseEvent
	outcome string
}

func (e connectionClosedEvent) MarshalJSONObject(enc *gojay.Encoder) {
	e.marshal(enc)
	enc.StringKey("outcome", e.outcome)
}
func (e connectionClosedEvent) IsNil() bool { return false }

// OnConnectionClosed records the connection reaching its terminal state.
func (t *Tracer) OnConnectionClosed(outcome string) {
	if t == nil {
		return
	}
	t.encode(connectionClosedEvent{baseEvent{t.relativeMicros(), "connection_closed"}, outcome})
}
