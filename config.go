package mvfst

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/dif001/mvfst/internal/congestion"
	"github.com/dif001/mvfst/internal/pathmgr"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/stream"
	"github.com/dif001/mvfst/metrics"
	"github.com/dif001/mvfst/qlog"
)

// minCustomTransportParameterID is the last identifier reserved for the
// protocol itself (draft-17 section 22.2): application-defined transport
// parameters must use an ID above it.
const minCustomTransportParameterID = 0x3fff

// Config holds every knob this core's client connection setup needs: TLS,
// transport parameters, stream and flow-control limits, congestion settings
// and the optional metrics/qlog sinks. There is no server-side or multipath
// configuration here, since this core only ever drives a single client
// connection over a single path.
type Config struct {
	// TLSConfig builds the crypto/tls QUICConn driving the handshake; set
	// RootCAs, ServerName and ClientSessionCache here as you would for any
	// other crypto/tls client. A MinVersion below TLS 1.3 is raised to TLS
	// 1.3 on a copy of the config.
	TLSConfig *tls.Config

	// TransportParameters is this endpoint's already-encoded transport
	// parameter extension payload. Encoding transport parameters onto the
	// wire is outside this core's scope; callers that need one should
	// build it with a separate codec and hand the bytes in here.
	TransportParameters []byte

	StreamLimits       stream.Limits
	CongestionSettings congestion.Settings

	ConnFlowWindow    protocol.ByteCount
	MaxConnFlowWindow protocol.ByteCount

	IdleTimeout time.Duration

	// HappyEyeballsEnabled, HappyEyeballsAttemptDelay and
	// HappyEyeballsCachedFamily are not read by NewClient or
	// Client.RacePaths: RacePaths always races the two addresses it is given,
	// takes the cached family as its own argument and uses
	// pathmgr.DefaultAttemptDelay.
	HappyEyeballsEnabled      bool
	HappyEyeballsAttemptDelay time.Duration
	HappyEyeballsCachedFamily pathmgr.Family

	// PSKCache stores, alongside whatever session ticket
	// TLSConfig.ClientSessionCache already caches, the QUIC-specific
	// transport parameter snapshot a resumed 0-RTT attempt needs: crypto/tls
	// has no notion of transport parameters, so this core keeps its own
	// side table keyed the same way.
	PSKCache PSKCache

	// Metrics, if set, records connection and congestion events to
	// Prometheus. Leave nil to disable metrics entirely.
	Metrics *metrics.Recorder

	// QLog, if set, writes a newline-delimited JSON trace of this
	// connection's lifecycle events.
	QLog *qlog.Tracer

	customTransportParameters map[uint64][]byte
}

// PSKTransportParameterSnapshot is the QUIC-specific half of a cached PSK
// entry: the server's transport parameters as they stood when the ticket
// was issued, consulted when deciding whether 0-RTT parameters still match.
type PSKTransportParameterSnapshot struct {
	ServerTransportParameters []byte
	ALPN                      string
	CipherSuite               uint16
}

// PSKCache is consulted before Start to look up a transport parameter
// snapshot for the server name being dialed. Client writes to it once per
// connection, after 1-RTT keys are derived and the server's transport
// parameters are known; the arrival of a session ticket does not trigger a
// write.
type PSKCache interface {
	Get(serverName string) (PSKTransportParameterSnapshot, bool)
	Put(serverName string, snapshot PSKTransportParameterSnapshot)
}

// DefaultConfig returns a Config with this core's protocol-level defaults
// filled in; the caller still must set TLSConfig.
func DefaultConfig() *Config {
	return &Config{
		StreamLimits: stream.Limits{
			MaxData:              1 << 20,
			InitialMaxStreamData: 1 << 16,
			MaxStreamsBidi:       100,
			MaxStreamsUni:        100,
		},
		CongestionSettings:        congestion.DefaultSettings(),
		ConnFlowWindow:            1 << 20,
		MaxConnFlowWindow:         6 << 20,
		IdleTimeout:               protocol.DefaultIdleTimeout,
		HappyEyeballsEnabled:      true,
		HappyEyeballsAttemptDelay: pathmgr.DefaultAttemptDelay,
	}
}

// SetCustomTransportParameter registers an application-defined transport
// parameter to be merged into the encoded TransportParameters payload by
// the caller's own codec. IDs at or below minCustomTransportParameterID are
// reserved by the protocol and rejected.
func (c *Config) SetCustomTransportParameter(id uint64, value []byte) error {
	if id <= minCustomTransportParameterID {
		return fmt.Errorf("mvfst: custom transport parameter id %#x collides with the reserved range (must be > %#x)", id, minCustomTransportParameterID)
	}
	if c.customTransportParameters == nil {
		c.customTransportParameters = make(map[uint64][]byte)
	}
	c.customTransportParameters[id] = value
	return nil
}

// CustomTransportParameters returns every application-defined transport
// parameter registered via SetCustomTransportParameter.
func (c *Config) CustomTransportParameters() map[uint64][]byte {
	return c.customTransportParameters
}
