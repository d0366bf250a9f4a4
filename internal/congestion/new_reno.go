package congestion

import (
	"fmt"
	"time"

	"github.com/dif001/mvfst/internal/protocol"
)

// lossReductionFactorShift halves the congestion window on loss, the
// textbook NewReno multiplicative decrease.
const lossReductionFactorShift = 1

// defaultPacingTick stands in for a real pacer's next-send interval, since
// NewReno cannot be paced.
const defaultPacingTick = 1 * time.Millisecond

// Settings bounds the congestion window the way the connection's negotiated
// transport settings would: as multiples of the negotiated UDP datagram
// size.
type Settings struct {
	UDPSendPacketLen        protocol.ByteCount
	MinCwndInMss            protocol.ByteCount
	MaxCwndInMss            protocol.ByteCount
	InitCwndInMss           protocol.ByteCount
	WriteConnectionDataPacketsLimit protocol.ByteCount
}

// DefaultSettings mirrors the protocol-level defaults.
func DefaultSettings() Settings {
	return Settings{
		UDPSendPacketLen:                protocol.DefaultUDPSendPacketLen,
		MinCwndInMss:                    protocol.DefaultMinCwndInMss,
		MaxCwndInMss:                    protocol.DefaultMaxCwndInMss,
		InitCwndInMss:                   protocol.DefaultInitCwndInMss,
		WriteConnectionDataPacketsLimit: 7,
	}
}

// NewReno is a textbook NewReno congestion controller: slow start growing
// by ackedBytes per ack, one multiplicative-decrease episode per loss event
// (keyed on packet-number ordering via endOfRecovery, not per lost packet
// or by wall-clock), and a hard collapse to the floor on a verified RTO.
//
// Pacing is not supported; see Controller.PacingInterval/PacingRate.
type NewReno struct {
	settings Settings

	cwndBytes     protocol.ByteCount
	ssthresh      protocol.ByteCount
	bytesInFlight protocol.ByteCount

	// endOfRecovery is the packet number above which a new loss event may
	// trigger another window cutback. Losses covered by an episode already
	// in progress do not collapse the window again.
	endOfRecovery protocol.PacketNumber
}

var _ Controller = &NewReno{}

// NewNewReno constructs a controller with its initial window set to
// InitCwndInMss multiples of the datagram size, clamped to the configured
// bounds.
func NewNewReno(settings Settings) *NewReno {
	r := &NewReno{
		settings:      settings,
		ssthresh:      protocol.MaxByteCount,
		endOfRecovery: protocol.InvalidPacketNumber,
	}
	r.cwndBytes = boundedCwnd(settings.InitCwndInMss*settings.UDPSendPacketLen, settings)
	return r
}

func boundedCwnd(cwnd protocol.ByteCount, s Settings) protocol.ByteCount {
	min := s.MinCwndInMss * s.UDPSendPacketLen
	max := s.MaxCwndInMss * s.UDPSendPacketLen
	if cwnd < min {
		return min
	}
	if cwnd > max {
		return max
	}
	return cwnd
}

func (r *NewReno) OnPacketSent(encodedSize protocol.ByteCount) {
	next := r.bytesInFlight + encodedSize
	if next < r.bytesInFlight {
		panic(fmt.Sprintf("congestion: bytesInFlight overflow: %d + %d", r.bytesInFlight, encodedSize))
	}
	r.bytesInFlight = next
}

func (r *NewReno) OnRemoveBytesFromInflight(n protocol.ByteCount) {
	r.subtractInflight(n)
}

func (r *NewReno) subtractInflight(n protocol.ByteCount) {
	if n > r.bytesInFlight {
		panic(fmt.Sprintf("congestion: bytesInFlight underflow: %d - %d", r.bytesInFlight, n))
	}
	r.bytesInFlight -= n
}

// OnPacketAcked subtracts the acked bytes from inflight, then grows the
// window unless the ack is still inside a recovery episode started by an
// earlier loss. Growth uses protocol.DefaultUDPSendPacketLen, the protocol's
// canonical datagram size, as the multiplier during congestion avoidance
// rather than this connection's negotiated UDPSendPacketLen. This is
// preserved verbatim from the source rather than "fixed": it may be a bug,
// but normalizing it silently would change behavior that has shipped.
func (r *NewReno) OnPacketAcked(ack AckEvent, largestSent protocol.PacketNumber) {
	r.subtractInflight(ack.AckedBytes)

	if r.endOfRecovery != protocol.InvalidPacketNumber && ack.LargestAckedPacket < r.endOfRecovery {
		return
	}
	if r.cwndBytes < r.ssthresh {
		r.cwndBytes += ack.AckedBytes
	} else {
		additionFactor := (protocol.DefaultUDPSendPacketLen * ack.AckedBytes) / r.cwndBytes
		r.cwndBytes += additionFactor
	}
	r.cwndBytes = boundedCwnd(r.cwndBytes, r.settings)
}

// OnPacketLoss halves the window exactly once per recovery episode. A new
// episode starts only when the loss covers a packet number beyond the
// current endOfRecovery.
func (r *NewReno) OnPacketLoss(loss LossEvent, largestSent protocol.PacketNumber) {
	r.subtractInflight(loss.LostBytes)

	if r.endOfRecovery != protocol.InvalidPacketNumber && loss.LargestLostPacketNum <= r.endOfRecovery {
		return
	}
	r.endOfRecovery = largestSent
	r.cwndBytes = r.cwndBytes >> lossReductionFactorShift
	r.cwndBytes = boundedCwnd(r.cwndBytes, r.settings)
	// Exits slow start.
	r.ssthresh = r.cwndBytes
}

func (r *NewReno) OnRTOVerified() {
	r.cwndBytes = r.settings.MinCwndInMss * r.settings.UDPSendPacketLen
}

func (r *NewReno) WritableBytes() protocol.ByteCount {
	if r.bytesInFlight >= r.cwndBytes {
		return 0
	}
	return r.cwndBytes - r.bytesInFlight
}

func (r *NewReno) BytesInFlight() protocol.ByteCount { return r.bytesInFlight }
func (r *NewReno) CongestionWindow() protocol.ByteCount { return r.cwndBytes }
func (r *NewReno) InSlowStart() bool                  { return r.cwndBytes < r.ssthresh }
func (r *NewReno) Type() ControllerType                { return ControllerTypeNewReno }

// PacingInterval returns a default tick: NewReno cannot be paced.
func (r *NewReno) PacingInterval() time.Duration { return defaultPacingTick }

// PacingRate returns the configured per-write packet limit in lieu of an
// actual pacing rate, since NewReno cannot be paced.
func (r *NewReno) PacingRate() protocol.ByteCount {
	return r.settings.WriteConnectionDataPacketsLimit
}
