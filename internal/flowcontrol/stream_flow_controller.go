package flowcontrol

import "github.com/dif001/mvfst/internal/protocol"

type streamFlowController struct {
	baseFlowController

	streamID                protocol.StreamID
	contributesToConnection bool // whether this stream also debits the connection-level window
	connection              ConnectionFlowController
}

var _ StreamFlowController = &streamFlowController{}

// NewStreamFlowController builds the flow controller for one stream. The
// receiveWindow/maxReceiveWindow/initialSendWindow values come from the
// negotiated transport parameters: InitialMaxStreamData{BidiLocal,
// BidiRemote,Uni} depending on the stream's role and direction.
func NewStreamFlowController(
	streamID protocol.StreamID,
	contributesToConnection bool,
	connection ConnectionFlowController,
	receiveWindow protocol.ByteCount,
	maxReceiveWindow protocol.ByteCount,
	initialSendWindow protocol.ByteCount,
) StreamFlowController {
	return &streamFlowController{
		streamID:                streamID,
		contributesToConnection: contributesToConnection,
		connection:              connection,
		baseFlowController: baseFlowController{
			receiveWindow:             receiveWindow,
			receiveWindowIncrement:    receiveWindow,
			maxReceiveWindowIncrement: maxReceiveWindow,
			sendWindow:                initialSendWindow,
		},
	}
}

func (c *streamFlowController) ContributesToConnection() bool {
	return c.contributesToConnection
}

// AddBytesSent debits both the stream window and, if applicable, the
// connection window: a write is gated by both levels per the spec.
func (c *streamFlowController) AddBytesSent(n protocol.ByteCount) {
	c.baseFlowController.AddBytesSent(n)
	if c.contributesToConnection {
		c.connection.AddBytesSent(n)
	}
}

// SendWindowSize returns the smaller of the stream's own window and, when
// applicable, the connection's remaining window — the write is gated by
// both levels.
func (c *streamFlowController) SendWindowSize() protocol.ByteCount {
	streamWindow := c.baseFlowController.SendWindowSize()
	if !c.contributesToConnection {
		return streamWindow
	}
	connWindow := c.connection.SendWindowSize()
	if connWindow < streamWindow {
		return connWindow
	}
	return streamWindow
}

func (c *streamFlowController) AddBytesRead(n protocol.ByteCount) error {
	if err := c.baseFlowController.AddBytesRead(n); err != nil {
		return err
	}
	if c.contributesToConnection {
		return c.connection.AddBytesRead(n)
	}
	return nil
}
