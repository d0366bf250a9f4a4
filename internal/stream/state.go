// Package stream implements per-stream send/receive state machines and the
// StreamEngine that owns the connection's stream table, grounded on the
// send-side bookkeeping in send_stream.go and the reset/fin-consistency
// rules in StreamStateFunctions.h.
package stream

// SendState is the local (sending) half of a stream's state machine.
type SendState uint8

const (
	SendOpen SendState = iota
	SendDataSent
	SendDataAcked
	SendResetSent
	SendResetAcked
)

func (s SendState) String() string {
	switch s {
	case SendOpen:
		return "Open"
	case SendDataSent:
		return "DataSent"
	case SendDataAcked:
		return "DataAcked"
	case SendResetSent:
		return "ResetSent"
	case SendResetAcked:
		return "ResetAcked"
	default:
		return "invalid send state"
	}
}

// IsTerminal reports whether no further sender-side transitions are
// possible: the stream's send half is fully retired.
func (s SendState) IsTerminal() bool { return s == SendDataAcked || s == SendResetAcked }

// RecvState is the remote (receiving) half of a stream's state machine.
type RecvState uint8

const (
	RecvOpen RecvState = iota
	RecvSizeKnown
	RecvDataRead
	RecvResetRecvd
)

func (s RecvState) String() string {
	switch s {
	case RecvOpen:
		return "Open"
	case RecvSizeKnown:
		return "SizeKnown"
	case RecvDataRead:
		return "DataRead"
	case RecvResetRecvd:
		return "ResetRecvd"
	default:
		return "invalid recv state"
	}
}

func (s RecvState) IsTerminal() bool { return s == RecvDataRead || s == RecvResetRecvd }
