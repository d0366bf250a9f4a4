package handshake

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"

	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/qerr"
)

// Phase tracks the handshake's monotonic progress through the four stages
// the connection state machine cares about. It only ever moves forward.
type Phase uint8

const (
	PhaseInitial Phase = iota
	PhaseHandshake
	PhaseOneRttKeysDerived
	PhaseEstablished
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "Initial"
	case PhaseHandshake:
		return "Handshake"
	case PhaseOneRttKeysDerived:
		return "OneRttKeysDerived"
	case PhaseEstablished:
		return "Established"
	default:
		return "invalid phase"
	}
}

// Driver drives a crypto/tls QUICConn through the handshake on behalf of
// one QUIC connection, translating its events into epoch-keyed AEAD/header
// protection key pairs and CRYPTO-frame bytes.
//
// Once any operation returns an error, the driver is poisoned: every
// subsequent call returns that same error without mutating any further
// state. The caller is expected to tear the connection down on first error
// rather than retry.
type Driver struct {
	conn        *tls.QUICConn
	perspective protocol.Perspective

	phase Phase
	err   error

	streams cryptoStreamSet

	handshakeWriteCipher *Keys
	handshakeReadCipher  *Keys
	oneRttWriteCipher    *Keys
	oneRttReadCipher     *Keys
	zeroRttWriteCipher   *Keys
	zeroRttReadCipher    *Keys

	peerTransportParams []byte

	// resumedServerParams is the server transport parameter snapshot taken
	// when the PSK being resumed was issued, supplied by the caller's PSK
	// cache. It's compared against the server's current parameters if the
	// server rejects early data, to decide whether the rejection is
	// recoverable by simply retrying on 1-RTT.
	resumedServerParams []byte

	earlyDataAttempted bool
	zeroRttRejected    bool
}

// SetResumedServerParameters records the transport parameter snapshot this
// connection's PSK was issued under, consulted if the server rejects 0-RTT.
func (d *Driver) SetResumedServerParameters(params []byte) {
	d.resumedServerParams = params
}

// NewDriver constructs a Driver for the given perspective. ourTransportParams
// is this endpoint's encoded transport parameters, handed to the TLS stack
// the moment it asks for them. A tlsConfig whose MinVersion is below TLS 1.3
// is copied with MinVersion raised to TLS 1.3; the caller's config is not
// modified.
func NewDriver(pers protocol.Perspective, tlsConfig *tls.Config, ourTransportParams []byte) *Driver {
	if tlsConfig.MinVersion < tls.VersionTLS13 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.MinVersion = tls.VersionTLS13
	}
	qc := &tls.QUICConfig{TLSConfig: tlsConfig}
	var conn *tls.QUICConn
	if pers == protocol.PerspectiveClient {
		conn = tls.QUICClient(qc)
	} else {
		conn = tls.QUICServer(qc)
	}
	conn.SetTransportParameters(ourTransportParams)
	return &Driver{conn: conn, perspective: pers}
}

// Start kicks off the handshake: for a client this produces the first
// Initial-level ClientHello bytes; for a server it's a no-op until the
// client's Initial data arrives.
func (d *Driver) Start(ctx context.Context) error {
	if d.err != nil {
		return d.err
	}
	if err := d.conn.Start(ctx); err != nil {
		return d.fail(err)
	}
	return d.fail(d.drainEvents())
}

// DoHandshake feeds one CRYPTO frame's bytes into the handshake. offset is
// the frame's offset within that epoch's CRYPTO stream; frames may arrive
// out of order and are reassembled before being handed to TLS.
func (d *Driver) DoHandshake(level protocol.EncryptionLevel, offset protocol.ByteCount, data []byte) error {
	if d.err != nil {
		return d.err
	}
	if d.phase == PhaseInitial {
		d.phase = PhaseHandshake
	}
	contiguous := d.streams.handleFrame(level, offset, data)
	if len(contiguous) == 0 {
		return nil
	}
	if err := d.conn.HandleData(toTLSLevel(level), contiguous); err != nil {
		return d.fail(classifyTLSError(err))
	}
	return d.fail(d.drainEvents())
}

// drainEvents pumps NextEvent until the TLS stack has nothing further to
// say without more input — the "loop until waiting for more data" contract.
func (d *Driver) drainEvents() error {
	for {
		ev := d.conn.NextEvent()
		switch ev.Kind {
		case tls.QUICNoEvent:
			return nil
		case tls.QUICSetWriteSecret:
			if err := d.setSecret(ev.Level, ev.Suite, ev.Data, true); err != nil {
				return err
			}
		case tls.QUICSetReadSecret:
			if err := d.setSecret(ev.Level, ev.Suite, ev.Data, false); err != nil {
				return err
			}
		case tls.QUICTransportParameters:
			d.peerTransportParams = append([]byte(nil), ev.Data...)
		case tls.QUICTransportParametersRequired:
			// our transport parameters were already set at construction time.
		case tls.QUICRejectedEarlyData:
			if err := d.handleZeroRttRejected(); err != nil {
				return err
			}
		case tls.QUICWriteData:
			d.streams.enqueueOutbound(fromTLSLevel(ev.Level), ev.Data)
		case tls.QUICHandshakeDone:
			if d.phase < PhaseOneRttKeysDerived {
				d.phase = PhaseOneRttKeysDerived
			}
		}
	}
}

// handleZeroRttRejected implements the spec's two-way split on 0-RTT
// rejection: if the server's current transport parameters still match the
// snapshot the resumed PSK was issued under, this is a recoverable
// rejection the application retries on 1-RTT; otherwise it's a hard
// failure, since data already sent under the old assumptions may not be
// safe to replay.
func (d *Driver) handleZeroRttRejected() error {
	if d.resumedServerParams == nil || bytes.Equal(d.resumedServerParams, d.peerTransportParams) {
		d.zeroRttRejected = true
		return nil
	}
	return qerr.NewQuicInternalException(qerr.EarlyDataRejected, "early transport parameters changed")
}

func (d *Driver) setSecret(level tls.QUICEncryptionLevel, suiteID uint16, secret []byte, write bool) error {
	suite, err := getCipherSuite(suiteID)
	if err != nil {
		return d.fail(err)
	}
	keys := newKeys(suite, secret)
	switch fromTLSLevel(level) {
	case protocol.EncryptionHandshake:
		if write {
			d.handshakeWriteCipher = keys
		} else {
			d.handshakeReadCipher = keys
		}
	case protocol.EncryptionEarlyData:
		d.earlyDataAttempted = true
		if write {
			d.zeroRttWriteCipher = keys
		} else {
			d.zeroRttReadCipher = keys
		}
	case protocol.EncryptionAppData:
		if write {
			d.oneRttWriteCipher = keys
		} else {
			d.oneRttReadCipher = keys
		}
		if d.phase < PhaseOneRttKeysDerived {
			d.phase = PhaseOneRttKeysDerived
		}
	}
	return nil
}

// PendingCryptoData drains the outbound CRYPTO bytes the handshake has
// produced at level, ready to be carried in a CRYPTO frame. For AppData it
// always returns nil: post-handshake TLS bytes at that level stay in the
// outbound buffer and are not handed out by this method.
func (d *Driver) PendingCryptoData(level protocol.EncryptionLevel) []byte {
	if level == protocol.EncryptionAppData {
		return nil
	}
	return d.streams.drainOutbound(level)
}

// Phase reports the handshake's current stage.
func (d *Driver) Phase() Phase { return d.phase }

// ConfirmHandshake advances the phase from OneRttKeysDerived to Established.
// The caller invokes it once it has successfully processed a 1-RTT-protected
// packet, which proves the peer installed the 1-RTT keys this side derived;
// completing the TLS handshake locally is not by itself enough evidence of
// that. Called at any other phase, this is a no-op: a 1-RTT-protected packet
// cannot be decrypted before 1-RTT keys exist, so a call arriving before
// OneRttKeysDerived cannot happen in practice, and a call after Established
// is simply redundant.
func (d *Driver) ConfirmHandshake() {
	if d.phase == PhaseOneRttKeysDerived {
		d.phase = PhaseEstablished
	}
}

// Err reports the sticky failure, if any.
func (d *Driver) Err() error { return d.err }

// PeerTransportParameters returns the peer's encoded transport parameters
// once received, or nil before then.
func (d *Driver) PeerTransportParameters() []byte { return d.peerTransportParams }

// ConnectionState exposes the underlying TLS connection state once
// available, for queries like session resumption and negotiated ALPN.
func (d *Driver) ConnectionState() tls.ConnectionState { return d.conn.ConnectionState() }

// ZeroRttRejected reports whether the server rejected early data this
// client attempted. It is not itself a fatal error: the caller is expected
// to re-send any 0-RTT application data as 1-RTT once this becomes true.
func (d *Driver) ZeroRttRejected() bool { return d.zeroRttRejected }

// EarlyDataAttempted reports whether 0-RTT keys were ever derived for this
// connection, client or server side.
func (d *Driver) EarlyDataAttempted() bool { return d.earlyDataAttempted }

// TakeHandshakeWriteCipher and its siblings below are move-out accessors:
// the first call returns the cipher and clears the slot, every subsequent
// call returns (nil, false). This mirrors the handshake's single-consumer
// handoff of each epoch's keys to the connection's packet number spaces.
//
// Each one checks d.err first: a cipher derived before a later error (say,
// the server's Finished fails to verify after handshake keys already
// landed) must not be handed out as if the handshake were still healthy,
// the same error-then-throw guard ClientHandshake.cpp's getXXXCipher
// accessors apply before returning anything.
func (d *Driver) TakeHandshakeWriteCipher() (*Keys, bool) {
	if d.err != nil {
		return nil, false
	}
	return takeKeys(&d.handshakeWriteCipher)
}

func (d *Driver) TakeHandshakeReadCipher() (*Keys, bool) {
	if d.err != nil {
		return nil, false
	}
	return takeKeys(&d.handshakeReadCipher)
}

func (d *Driver) TakeOneRttWriteCipher() (*Keys, bool) {
	if d.err != nil {
		return nil, false
	}
	return takeKeys(&d.oneRttWriteCipher)
}

func (d *Driver) TakeOneRttReadCipher() (*Keys, bool) {
	if d.err != nil {
		return nil, false
	}
	return takeKeys(&d.oneRttReadCipher)
}

func (d *Driver) TakeZeroRttWriteCipher() (*Keys, bool) {
	if d.err != nil {
		return nil, false
	}
	return takeKeys(&d.zeroRttWriteCipher)
}

func (d *Driver) TakeZeroRttReadCipher() (*Keys, bool) {
	if d.err != nil {
		return nil, false
	}
	return takeKeys(&d.zeroRttReadCipher)
}

func takeKeys(slot **Keys) (*Keys, bool) {
	k := *slot
	*slot = nil
	return k, k != nil
}

func (d *Driver) fail(err error) error {
	if err != nil && d.err == nil {
		d.err = err
	}
	return d.err
}

func classifyTLSError(err error) error {
	return qerr.NewQuicInternalException(qerr.HandshakeFailed, fmt.Sprintf("tls: %s", err))
}

func toTLSLevel(l protocol.EncryptionLevel) tls.QUICEncryptionLevel {
	switch l {
	case protocol.EncryptionInitial:
		return tls.QUICEncryptionLevelInitial
	case protocol.EncryptionEarlyData:
		return tls.QUICEncryptionLevelEarly
	case protocol.EncryptionHandshake:
		return tls.QUICEncryptionLevelHandshake
	default:
		return tls.QUICEncryptionLevelApplication
	}
}

func fromTLSLevel(l tls.QUICEncryptionLevel) protocol.EncryptionLevel {
	switch l {
	case tls.QUICEncryptionLevelInitial:
		return protocol.EncryptionInitial
	case tls.QUICEncryptionLevelEarly:
		return protocol.EncryptionEarlyData
	case tls.QUICEncryptionLevelHandshake:
		return protocol.EncryptionHandshake
	default:
		return protocol.EncryptionAppData
	}
}
