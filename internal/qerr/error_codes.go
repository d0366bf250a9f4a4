// Package qerr defines the QUIC transport error-code registry and the
// error types the connection state machine surfaces to the application.
package qerr

import "fmt"

// TransportErrorCode is one of the codes from the QUIC transport error-code
// registry (RFC 9000 section 20.1, as it stood in the draft-17 era).
type TransportErrorCode uint64

const (
	NoError                   TransportErrorCode = 0x0
	InternalError             TransportErrorCode = 0x1
	ConnectionRefused         TransportErrorCode = 0x2
	FlowControlError          TransportErrorCode = 0x3
	StreamLimitError          TransportErrorCode = 0x4
	StreamStateError          TransportErrorCode = 0x5
	FinalSizeError            TransportErrorCode = 0x6
	FrameEncodingError        TransportErrorCode = 0x7
	TransportParameterError   TransportErrorCode = 0x8
	ConnectionIDLimitError    TransportErrorCode = 0x9
	ProtocolViolation         TransportErrorCode = 0xa
	InvalidToken              TransportErrorCode = 0xb
	TransportApplicationError TransportErrorCode = 0xc
	CryptoBufferExceeded      TransportErrorCode = 0xd
)

func (e TransportErrorCode) String() string {
	switch e {
	case NoError:
		return "NO_ERROR"
	case InternalError:
		return "INTERNAL_ERROR"
	case ConnectionRefused:
		return "CONNECTION_REFUSED"
	case FlowControlError:
		return "FLOW_CONTROL_ERROR"
	case StreamLimitError:
		return "STREAM_LIMIT_ERROR"
	case StreamStateError:
		return "STREAM_STATE_ERROR"
	case FinalSizeError:
		return "FINAL_SIZE_ERROR"
	case FrameEncodingError:
		return "FRAME_ENCODING_ERROR"
	case TransportParameterError:
		return "TRANSPORT_PARAMETER_ERROR"
	case ConnectionIDLimitError:
		return "CONNECTION_ID_LIMIT_ERROR"
	case ProtocolViolation:
		return "PROTOCOL_VIOLATION"
	case InvalidToken:
		return "INVALID_TOKEN"
	case TransportApplicationError:
		return "APPLICATION_ERROR"
	case CryptoBufferExceeded:
		return "CRYPTO_BUFFER_EXCEEDED"
	default:
		return fmt.Sprintf("unknown error code: %#x", uint64(e))
	}
}

// TransportError is returned by components that detect a protocol
// violation; the ConnectionStateMachine funnels it into the single
// terminal close path described in the spec's error handling design.
type TransportError struct {
	ErrorCode TransportErrorCode
	Message   string
}

func NewTransportError(code TransportErrorCode, msg string) *TransportError {
	return &TransportError{ErrorCode: code, Message: msg}
}

func (e *TransportError) Error() string {
	if e.Message == "" {
		return e.ErrorCode.String()
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// ApplicationError is carried by RESET_STREAM, STOP_SENDING, and by
// application-initiated CONNECTION_CLOSE.
type ApplicationError struct {
	ErrorCode    uint64
	Remote       bool
	ErrorMessage string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application error %#x: %s", e.ErrorCode, e.ErrorMessage)
}

// LocalErrorCode enumerates failure kinds that originate locally and have
// no wire representation, mirroring the internal error enum the handshake
// driver raises on itself.
type LocalErrorCode int

const (
	// EarlyDataRejected is surfaced when the server rejected 0-RTT and the
	// early-data transport parameters no longer match the resumed ones, so
	// the application-level retry that a matching rejection would allow is
	// not possible.
	EarlyDataRejected LocalErrorCode = iota + 1
	HandshakeFailed
	ConnectionClosedLocally
)

func (e LocalErrorCode) String() string {
	switch e {
	case EarlyDataRejected:
		return "EARLY_DATA_REJECTED"
	case HandshakeFailed:
		return "HANDSHAKE_FAILED"
	case ConnectionClosedLocally:
		return "CONNECTION_CLOSED_LOCALLY"
	default:
		return "UNKNOWN_LOCAL_ERROR"
	}
}

// QuicInternalException is raised for local-only failures that have no
// transport error code of their own, such as 0-RTT rejection with changed
// parameters.
type QuicInternalException struct {
	Code    LocalErrorCode
	Message string
}

func NewQuicInternalException(code LocalErrorCode, msg string) *QuicInternalException {
	return &QuicInternalException{Code: code, Message: msg}
}

func (e *QuicInternalException) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PeerClose carries a received CONNECTION_CLOSE to the application,
// verbatim, per the propagation policy in the spec's error table.
type PeerClose struct {
	IsApplicationError bool
	ErrorCode          uint64
	Reason             string
}

func (e *PeerClose) Error() string {
	if e.IsApplicationError {
		return fmt.Sprintf("peer closed connection with application error %#x: %s", e.ErrorCode, e.Reason)
	}
	return fmt.Sprintf("peer closed connection with transport error %s: %s", TransportErrorCode(e.ErrorCode), e.Reason)
}
