// Package connection implements the client connection state machine: it
// owns the handshake driver, the per-epoch key schedule, the congestion
// controller and outstanding-packet tracker, the stream table, and the
// single terminal close path every error funnels through.
package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/dif001/mvfst/internal/ackhandler"
	"github.com/dif001/mvfst/internal/congestion"
	"github.com/dif001/mvfst/internal/flowcontrol"
	"github.com/dif001/mvfst/internal/handshake"
	"github.com/dif001/mvfst/internal/pathmgr"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/qerr"
	"github.com/dif001/mvfst/internal/stream"
	"github.com/dif001/mvfst/internal/utils"
	"github.com/dif001/mvfst/metrics"
	"github.com/dif001/mvfst/qlog"
)

// Config bundles the settings needed to stand up a Connection. It is the
// internal counterpart of the public Config the top-level client package
// exposes, already resolved into the types each internal package expects.
type Config struct {
	TLSConfig           *tls.Config
	TransportParameters []byte
	StreamLimits        stream.Limits
	CongestionSettings  congestion.Settings
	ConnFlowWindow       protocol.ByteCount
	MaxConnFlowWindow    protocol.ByteCount

	// ResumedServerParams is the server transport parameter snapshot taken
	// when the PSK being resumed was issued, if any. It's forwarded to the
	// handshake driver to decide whether a 0-RTT rejection is recoverable.
	ResumedServerParams []byte

	// Metrics records connection and congestion events, if set. A nil
	// Metrics disables recording entirely.
	Metrics *metrics.Recorder

	// QLog, if set, writes a newline-delimited JSON trace of this
	// connection's lifecycle events.
	QLog *qlog.Tracer
}

// Connection is the client-side connection state machine. It is driven
// exclusively from one goroutine (the event loop described in the
// concurrency model this core assumes); none of its methods take a lock.
type Connection struct {
	destConnID protocol.ConnectionID

	phase Phase

	driver *handshake.Driver
	keys   epochKeys

	congestionCtrl congestion.Controller
	tracker        *ackhandler.Tracker

	connFlow flowcontrol.ConnectionFlowController
	streams  *stream.Engine

	pathMgr *pathmgr.Manager

	nextPacketNumber protocol.PacketNumber

	closeErr error

	metrics           *metrics.Recorder
	qlog              *qlog.Tracer
	log               utils.ConnLogger
	startedAt         time.Time
	handshakeRecorded bool
}

// New constructs a client connection for destConnID, the destination
// connection ID chosen for the first Initial packet.
func New(destConnID protocol.ConnectionID, cfg Config) *Connection {
	driver := handshake.NewDriver(protocol.PerspectiveClient, cfg.TLSConfig, cfg.TransportParameters)
	if cfg.ResumedServerParams != nil {
		driver.SetResumedServerParameters(cfg.ResumedServerParams)
	}
	congestionCtrl := congestion.NewNewReno(cfg.CongestionSettings)
	connFlow := flowcontrol.NewConnectionFlowController(cfg.ConnFlowWindow, cfg.MaxConnFlowWindow, cfg.ConnFlowWindow)

	c := &Connection{
		destConnID:       destConnID,
		phase:            PhaseHandshake,
		driver:           driver,
		congestionCtrl:   congestionCtrl,
		tracker:          ackhandler.NewTracker(congestionCtrl),
		connFlow:         connFlow,
		streams:          stream.NewEngine(protocol.PerspectiveClient, connFlow, cfg.StreamLimits),
		nextPacketNumber: 0,
		metrics:          cfg.Metrics,
		qlog:             cfg.QLog,
		log:              utils.NewConnLogger(destConnID),
	}
	initialWrite, initialRead := handshake.NewInitialKeys(destConnID, protocol.PerspectiveClient)
	c.keys.install(protocol.EncryptionInitial, initialWrite, initialRead)
	return c
}

// Start kicks off the handshake, producing the first Initial-level
// ClientHello bytes the caller must send.
func (c *Connection) Start(ctx context.Context) error {
	if c.closeErr != nil {
		return c.closeErr
	}
	c.startedAt = time.Now()
	c.metrics.ConnectionStarted()
	c.qlog.OnConnectionStarted(c.destConnID)
	if err := c.driver.Start(ctx); err != nil {
		return c.CloseWithError(err)
	}
	c.pumpKeys()
	return nil
}

// Phase reports the connection's current stage.
func (c *Connection) Phase() Phase { return c.phase }

// Err reports the sticky terminal error, if the connection has closed.
func (c *Connection) Err() error { return c.closeErr }

// Streams exposes the stream table for the caller to open or look up streams.
func (c *Connection) Streams() *stream.Engine { return c.streams }

// SetPathManager installs the Happy Eyeballs path manager used while the
// initial path is still being validated. Once a path validates, the caller
// should call DiscardPathManager.
func (c *Connection) SetPathManager(m *pathmgr.Manager) { c.pathMgr = m }

// DiscardPathManager releases the path manager once a path has been chosen.
func (c *Connection) DiscardPathManager() {
	if c.pathMgr != nil {
		c.pathMgr.Close()
		c.pathMgr = nil
	}
}

// HandleCryptoFrame feeds one CRYPTO frame into the handshake and, if it
// produced new keys, installs them into this connection's epoch key table.
func (c *Connection) HandleCryptoFrame(level protocol.EncryptionLevel, offset protocol.ByteCount, data []byte) error {
	if c.closeErr != nil {
		return c.closeErr
	}
	if err := c.driver.DoHandshake(level, offset, data); err != nil {
		return c.CloseWithError(err)
	}
	c.pumpKeys()
	if c.driver.Phase() >= handshake.PhaseOneRttKeysDerived {
		c.keys.discard(protocol.EncryptionInitial)
		c.keys.discard(protocol.EncryptionHandshake)
	}
	return nil
}

// OnAppDataDecrypted must be called once the caller has successfully
// decrypted a 1-RTT-protected packet. That is the only proof that the peer
// installed the 1-RTT keys this side derived, so it is what actually drives
// the OneRttKeysDerived → Established transition; completing the TLS
// handshake locally (handled in HandleCryptoFrame above) only gets the
// connection as far as OneRttKeysDerived.
func (c *Connection) OnAppDataDecrypted() {
	if c.closeErr != nil {
		return
	}
	c.driver.ConfirmHandshake()
	if c.driver.Phase() == handshake.PhaseEstablished && c.phase == PhaseHandshake {
		c.phase = PhaseEstablished
		if !c.handshakeRecorded {
			c.handshakeRecorded = true
			d := time.Since(c.startedAt)
			c.log.Infof("handshake established in %s", d)
			c.metrics.HandshakeCompleted(d)
			c.qlog.OnHandshakeEstablished(d)
		}
	}
}

// pumpKeys drains every cipher the handshake driver has produced since the
// last call and installs each into the corresponding epoch slot.
func (c *Connection) pumpKeys() {
	if k, ok := c.driver.TakeHandshakeWriteCipher(); ok {
		c.keys.install(protocol.EncryptionHandshake, k, nil)
	}
	if k, ok := c.driver.TakeHandshakeReadCipher(); ok {
		c.keys.install(protocol.EncryptionHandshake, nil, k)
	}
	if k, ok := c.driver.TakeZeroRttWriteCipher(); ok {
		c.keys.install(protocol.EncryptionEarlyData, k, nil)
	}
	if k, ok := c.driver.TakeOneRttWriteCipher(); ok {
		c.keys.install(protocol.EncryptionAppData, k, nil)
	}
	if k, ok := c.driver.TakeOneRttReadCipher(); ok {
		c.keys.install(protocol.EncryptionAppData, nil, k)
	}
}

// PeerTransportParameters returns the peer's encoded transport parameters
// once received, or nil before then. Callers cache it alongside the session
// ticket to validate a future 0-RTT attempt's assumptions.
func (c *Connection) PeerTransportParameters() []byte { return c.driver.PeerTransportParameters() }

// EarlyDataAttempted reports whether 0-RTT keys were ever derived for this
// connection.
func (c *Connection) EarlyDataAttempted() bool { return c.driver.EarlyDataAttempted() }

// WriteKeysFor and ReadKeysFor expose the installed cipher for a packet
// number space, for the caller's packet encoder/decoder.
func (c *Connection) WriteKeysFor(level protocol.EncryptionLevel) (*handshake.Keys, bool) {
	return c.keys.writer(level)
}
func (c *Connection) ReadKeysFor(level protocol.EncryptionLevel) (*handshake.Keys, bool) {
	return c.keys.reader(level)
}

// NextPacketNumber allocates the next packet number. Packet numbers are
// drawn from a single space shared across epochs, matching the tracker's
// own assumption.
func (c *Connection) NextPacketNumber() protocol.PacketNumber {
	pn := c.nextPacketNumber
	c.nextPacketNumber++
	return pn
}

// OnPacketSent registers a packet with the outstanding-packet tracker,
// charging its bytes against the congestion window.
func (c *Connection) OnPacketSent(p *ackhandler.OutstandingPacket) {
	c.tracker.SentPacket(p)
	c.metrics.PacketSent()
	c.metrics.CongestionWindowUpdated(c.congestionCtrl.CongestionWindow())
	c.qlog.OnPacketSent(p.PacketNumber)
}

// OnAckReceived applies one or more newly acknowledged packet numbers: it
// first reflects each into its stream's send state, then feeds the batch to
// the tracker/congestion controller together, per the ordering guarantee
// that ack processing for covered packets completes before any loss
// processing that might be triggered by the same ACK frame.
func (c *Connection) OnAckReceived(ackedPNs []protocol.PacketNumber) {
	for _, pn := range ackedPNs {
		if p, ok := c.tracker.Get(pn); ok {
			c.applyAckedFrames(p)
		}
		c.qlog.OnPacketAcked(pn)
	}
	c.tracker.ReceivedAck(ackedPNs)
	c.metrics.PacketsAcked(len(ackedPNs))
	c.metrics.CongestionWindowUpdated(c.congestionCtrl.CongestionWindow())
}

// OnPacketsDeclaredLost requeues each lost packet's stream/crypto frames for
// retransmission, then feeds the batch to the congestion controller.
func (c *Connection) OnPacketsDeclaredLost(lostPNs []protocol.PacketNumber) {
	lost := c.tracker.DeclareLost(lostPNs)
	for _, p := range lost {
		c.requeueFrames(p)
		c.qlog.OnPacketLost(p.PacketNumber)
	}
	c.metrics.PacketsLost(len(lost))
	c.metrics.CongestionWindowUpdated(c.congestionCtrl.CongestionWindow())
}

func (c *Connection) applyAckedFrames(p *ackhandler.OutstandingPacket) {
	for _, f := range p.Frames {
		switch f.Kind {
		case ackhandler.FrameKindStream:
			if s, ok := c.streams.Get(f.StreamID); ok {
				s.OnDataAcked(f.Fin)
			}
		case ackhandler.FrameKindResetStream:
			if s, ok := c.streams.Get(f.StreamID); ok {
				s.OnResetAcked()
			}
		}
	}
}

func (c *Connection) requeueFrames(p *ackhandler.OutstandingPacket) {
	for _, f := range p.Frames {
		if f.Kind != ackhandler.FrameKindStream {
			continue
		}
		if s, ok := c.streams.Get(f.StreamID); ok {
			s.Requeue(f.Offset, f.Data, f.Fin)
		}
	}
}

// CloseWithError is the single terminal close path: every error-detecting
// call site in this connection funnels its failure through here. The first
// call wins; later calls return the same error without further mutation,
// the same sticky-state discipline the handshake driver uses internally.
func (c *Connection) CloseWithError(err error) error {
	if c.closeErr != nil {
		return c.closeErr
	}
	c.log.Errorf("connection closing: %s", err)
	c.closeErr = err
	c.phase = PhaseClosed
	c.DiscardPathManager()
	outcome := closeOutcome(err)
	c.metrics.ConnectionClosed(outcome)
	c.qlog.OnConnectionClosed(outcome)
	return c.closeErr
}

func closeOutcome(err error) string {
	switch e := err.(type) {
	case *qerr.PeerClose:
		return "peer_close"
	case *qerr.QuicInternalException:
		if e.Code == qerr.ConnectionClosedLocally {
			return "local_close"
		}
		return "internal_error"
	case *qerr.TransportError:
		return "transport_error"
	default:
		return "error"
	}
}

// CloseLocally closes the connection with a local application-defined
// error, the normal (non-error) shutdown path.
func (c *Connection) CloseLocally(code uint64, reason string) error {
	return c.CloseWithError(qerr.NewQuicInternalException(qerr.ConnectionClosedLocally, fmt.Sprintf("%s (code %d)", reason, code)))
}

// OnPeerClose records a CONNECTION_CLOSE received from the peer.
func (c *Connection) OnPeerClose(isApplicationError bool, code uint64, reason string) error {
	return c.CloseWithError(&qerr.PeerClose{IsApplicationError: isApplicationError, ErrorCode: code, Reason: reason})
}

// CongestionController exposes the congestion controller for diagnostics
// and for a pacer, if one is ever added.
func (c *Connection) CongestionController() congestion.Controller { return c.congestionCtrl }

// TLSConnectionState exposes the underlying TLS state for resumption and
// ALPN queries.
func (c *Connection) TLSConnectionState() tls.ConnectionState { return c.driver.ConnectionState() }
