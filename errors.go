package mvfst

import (
	"errors"

	"github.com/dif001/mvfst/internal/qerr"
)

// TransportError is returned from Client methods when this core itself
// detected a protocol violation. A close the peer reported via
// CONNECTION_CLOSE is a *qerr.PeerClose instead; see IsPeerClose.
type TransportError = qerr.TransportError

// ApplicationError describes an application-defined error code. No Client
// method currently returns one: a local close yields a QuicInternalException
// and a peer's application-level close yields a PeerClose.
type ApplicationError = qerr.ApplicationError

// IsEarlyDataRejected reports whether err is this core's signal that 0-RTT
// was rejected in a way the application cannot recover from by simply
// resending as 1-RTT (the early transport parameters it resumed under no
// longer match the server's current ones).
func IsEarlyDataRejected(err error) bool {
	var internal *qerr.QuicInternalException
	if errors.As(err, &internal) {
		return internal.Code == qerr.EarlyDataRejected
	}
	return false
}

// IsPeerClose reports whether err originated from a CONNECTION_CLOSE the
// peer sent, as opposed to a locally detected failure.
func IsPeerClose(err error) bool {
	var peerClose *qerr.PeerClose
	return errors.As(err, &peerClose)
}
