// Package mvfst is the top-level client API: it wires together the
// connection state machine, the TLS-over-QUIC handshake driver, NewReno
// congestion control and the stream engine behind a small callback-driven
// surface. Actual packet en/decoding (varint, frame and header parsing) is
// a collaborator outside this package's scope; Client drives the protocol
// state machines and leaves datagram I/O to the caller.
package mvfst

import (
	"context"
	"net"

	"github.com/dif001/mvfst/internal/connection"
	"github.com/dif001/mvfst/internal/pathmgr"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/stream"
	"github.com/dif001/mvfst/qlog"
)

// ConnectionSetupCallback is notified about handshake-time events, mirroring
// the split between setup and steady-state callbacks this core's connection
// setup is modeled on.
type ConnectionSetupCallback interface {
	// OnTransportReady fires once 1-RTT keys are installed and the
	// connection can carry application data, even though the handshake may
	// not be fully Established yet.
	OnTransportReady()
	// OnConnectionSetupError fires if the handshake fails before
	// OnTransportReady; the connection is already closed by the time this
	// is called.
	OnConnectionSetupError(err error)
}

// ConnectionCallback is notified about steady-state connection events.
type ConnectionCallback interface {
	OnNewBidirectionalStream(s *stream.Stream)
	OnNewUnidirectionalStream(s *stream.Stream)
	OnStreamReadAvailable(s *stream.Stream)
	OnConnectionEnd()
	OnConnectionError(err error)
}

// Client is a single QUIC client connection attempt.
type Client struct {
	conn    *connection.Connection
	pathMgr *pathmgr.Manager

	setupCB ConnectionSetupCallback
	connCB  ConnectionCallback

	pskCache      PSKCache
	serverName    string
	pskStored     bool
	earlyDataALPN string

	qlog *qlog.Tracer

	transportReady bool
}

// NewClient constructs a Client for destConnID against cfg, without
// starting the handshake or touching the network. If cfg.PSKCache has a
// snapshot for cfg.TLSConfig.ServerName, it's handed to the handshake driver
// so a 0-RTT rejection can be classified as recoverable or not; a fresh
// snapshot is stored back once 1-RTT keys are derived.
func NewClient(destConnID protocol.ConnectionID, cfg *Config, setupCB ConnectionSetupCallback, connCB ConnectionCallback) *Client {
	c := &Client{
		setupCB:    setupCB,
		connCB:     connCB,
		pskCache:   cfg.PSKCache,
		serverName: cfg.TLSConfig.ServerName,
		qlog:       cfg.QLog,
	}
	var resumedParams []byte
	if cfg.PSKCache != nil {
		if snapshot, ok := cfg.PSKCache.Get(c.serverName); ok {
			resumedParams = snapshot.ServerTransportParameters
			c.earlyDataALPN = snapshot.ALPN
		}
	}
	c.conn = connection.New(destConnID, connection.Config{
		TLSConfig:           cfg.TLSConfig,
		TransportParameters: cfg.TransportParameters,
		StreamLimits:        cfg.StreamLimits,
		CongestionSettings:  cfg.CongestionSettings,
		ConnFlowWindow:      cfg.ConnFlowWindow,
		MaxConnFlowWindow:   cfg.MaxConnFlowWindow,
		ResumedServerParams: resumedParams,
		Metrics:             cfg.Metrics,
		QLog:                cfg.QLog,
	})
	return c
}

// Start begins the handshake, invoking OnConnectionSetupError immediately
// if it fails before producing any output.
func (c *Client) Start(ctx context.Context) error {
	if err := c.conn.Start(ctx); err != nil {
		c.setupCB.OnConnectionSetupError(err)
		return err
	}
	c.maybeSignalTransportReady()
	return nil
}

// RacePaths begins a Happy Eyeballs race between primaryAddr and
// backupAddr using the given sockets. The caller is responsible for the
// actual datagram I/O; the manager only decides which socket to use and
// when to fire the backup attempt.
func (c *Client) RacePaths(primaryAddr, backupAddr net.Addr, primarySocket, backupSocket pathmgr.Socket, cachedFamily pathmgr.Family, send func(pathmgr.Socket, net.Addr) error) error {
	m := pathmgr.NewManager(cachedFamily, pathmgr.DefaultAttemptDelay)
	c.pathMgr = m
	c.conn.SetPathManager(m)
	return m.Start(primaryAddr, backupAddr, primarySocket, backupSocket, send)
}

// OnPathValidated tells the path manager (if one is racing) that addr
// responded first; once a path validates it is discarded from the
// connection, since only one path is ever used past setup in this core.
func (c *Client) OnPathValidated(addr net.Addr) {
	if c.pathMgr != nil {
		c.pathMgr.OnPathValidated(addr)
	}
	c.conn.DiscardPathManager()
	c.pathMgr = nil
}

// HandleCryptoFrame feeds one CRYPTO frame into the handshake.
func (c *Client) HandleCryptoFrame(level protocol.EncryptionLevel, offset protocol.ByteCount, data []byte) error {
	if err := c.conn.HandleCryptoFrame(level, offset, data); err != nil {
		if !c.transportReady {
			c.setupCB.OnConnectionSetupError(err)
		} else {
			c.connCB.OnConnectionError(err)
		}
		return err
	}
	c.maybeSignalTransportReady()
	return nil
}

func (c *Client) maybeSignalTransportReady() {
	if !c.transportReady {
		if _, ok := c.conn.WriteKeysFor(protocol.EncryptionAppData); ok {
			c.transportReady = true
			c.setupCB.OnTransportReady()
		}
	}
	c.maybeStorePSKSnapshot()
}

// maybeStorePSKSnapshot caches the server's transport parameters once the
// handshake has derived 1-RTT keys, so a future connection attempt resuming
// this session can tell whether 0-RTT is still safe to use.
func (c *Client) maybeStorePSKSnapshot() {
	if c.pskCache == nil || c.pskStored || !c.transportReady {
		return
	}
	params := c.conn.PeerTransportParameters()
	if params == nil {
		return
	}
	state := c.conn.TLSConnectionState()
	c.pskCache.Put(c.serverName, PSKTransportParameterSnapshot{
		ServerTransportParameters: params,
		ALPN:                      state.NegotiatedProtocol,
		CipherSuite:               state.CipherSuite,
	})
	c.pskStored = true
}

// OpenStream allocates a new locally initiated stream and notifies the
// application via the appropriate callback hook.
func (c *Client) OpenStream(uni bool) (*stream.Stream, error) {
	s, err := c.conn.Streams().OpenStream(uni)
	if err != nil {
		return nil, err
	}
	c.qlog.OnStreamOpened(s.ID())
	return s, nil
}

// HandleStreamFrame dispatches a received STREAM frame to its stream,
// creating the stream on first reference and notifying the application. A
// STREAM frame only ever arrives inside a 1-RTT-protected packet, so being
// called here at all is the proof that the peer installed our 1-RTT keys;
// that's what settles the handshake into Established, not completing the
// TLS handshake itself.
func (c *Client) HandleStreamFrame(id protocol.StreamID, offset protocol.ByteCount, data []byte, fin bool) error {
	c.conn.OnAppDataDecrypted()
	s, isNew, err := c.getOrCreateStream(id)
	if err != nil {
		c.connCB.OnConnectionError(err)
		return err
	}
	if err := s.HandleStreamFrame(offset, data, fin); err != nil {
		c.connCB.OnConnectionError(err)
		return err
	}
	if isNew {
		c.qlog.OnStreamOpened(s.ID())
		if id.IsUniDirectional() {
			c.connCB.OnNewUnidirectionalStream(s)
		} else {
			c.connCB.OnNewBidirectionalStream(s)
		}
	}
	c.connCB.OnStreamReadAvailable(s)
	return nil
}

func (c *Client) getOrCreateStream(id protocol.StreamID) (*stream.Stream, bool, error) {
	if s, ok := c.conn.Streams().Get(id); ok {
		return s, false, nil
	}
	s, err := c.conn.Streams().GetOrCreatePeerStream(id)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Close closes the connection locally with the given application error
// code, notifying OnConnectionEnd.
func (c *Client) Close(code uint64, reason string) error {
	err := c.conn.CloseLocally(code, reason)
	c.connCB.OnConnectionEnd()
	return err
}

// Connection exposes the underlying connection state machine for callers
// that need lower-level access (packet number allocation, ack/loss
// feedback, congestion controller inspection).
func (c *Client) Connection() *connection.Connection { return c.conn }

// IsTLSResumed reports whether the handshake resumed an earlier session.
func (c *Client) IsTLSResumed() bool {
	return c.conn.TLSConnectionState().DidResume
}

// HasWriteCipher reports whether a 1-RTT write cipher has been installed,
// i.e. the client can send application data.
func (c *Client) HasWriteCipher() bool {
	_, ok := c.conn.WriteKeysFor(protocol.EncryptionAppData)
	return ok
}

// ApplicationProtocol returns the negotiated ALPN value, preferring the
// early-data protocol when 0-RTT was attempted (the server cannot change
// ALPN on 0-RTT acceptance, so the two agree whenever early data is used;
// the cached value is simply available sooner, since it doesn't wait on the
// full handshake to confirm it).
func (c *Client) ApplicationProtocol() string {
	if c.conn.EarlyDataAttempted() && c.earlyDataALPN != "" {
		return c.earlyDataALPN
	}
	return c.conn.TLSConnectionState().NegotiatedProtocol
}
