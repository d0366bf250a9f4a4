package protocol

// DefaultUDPSendPacketLen is the protocol's canonical datagram size. NewReno's
// congestion-avoidance growth term uses this constant rather than the
// connection's negotiated UDPSendPacketLen; see NewReno.OnPacketAcked in
// package congestion for why that asymmetry is preserved rather than fixed.
const DefaultUDPSendPacketLen ByteCount = 1252

// Default bounds on the congestion window, expressed in multiples of the
// negotiated UDP datagram size (MSS, in QUIC parlance).
const (
	DefaultMinCwndInMss = 2
	DefaultInitCwndInMss = 10
	DefaultMaxCwndInMss = 2000
)
