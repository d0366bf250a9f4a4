package flowcontrol

import "github.com/dif001/mvfst/internal/protocol"

type connectionFlowController struct {
	baseFlowController
}

var _ ConnectionFlowController = &connectionFlowController{}

// NewConnectionFlowController builds the connection-wide flow controller,
// seeded from the peer's InitialMaxData transport parameter.
func NewConnectionFlowController(
	receiveWindow protocol.ByteCount,
	maxReceiveWindow protocol.ByteCount,
	initialSendWindow protocol.ByteCount,
) ConnectionFlowController {
	return &connectionFlowController{
		baseFlowController: baseFlowController{
			receiveWindow:             receiveWindow,
			receiveWindowIncrement:    receiveWindow,
			maxReceiveWindowIncrement: maxReceiveWindow,
			sendWindow:                initialSendWindow,
		},
	}
}
