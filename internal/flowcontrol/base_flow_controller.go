package flowcontrol

import (
	"fmt"

	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/utils"
)

// ErrFinalSizeError is returned when a byte offset contradicts an
// already-known final size for the stream.
type ErrFinalSizeError struct {
	Final    protocol.ByteCount
	Received protocol.ByteCount
}

func (e *ErrFinalSizeError) Error() string {
	return fmt.Sprintf("final size error: final offset %d, but received byte offset %d", e.Final, e.Received)
}

// baseFlowController implements the send- and receive-side bookkeeping
// shared by the per-stream and per-connection flow controllers.
type baseFlowController struct {
	bytesSent  protocol.ByteCount
	sendWindow protocol.ByteCount

	bytesRead                 protocol.ByteCount
	highestReceived           protocol.ByteCount
	finalOffset                protocol.ByteCount
	hasFinalOffset              bool
	receiveWindow             protocol.ByteCount
	receiveWindowIncrement    protocol.ByteCount
	maxReceiveWindowIncrement protocol.ByteCount
}

func (c *baseFlowController) AddBytesSent(n protocol.ByteCount) {
	c.bytesSent += n
}

// UpdateSendWindow is called after receiving a MAX_DATA/MAX_STREAM_DATA
// frame. The window is monotonic: a smaller offset is ignored.
func (c *baseFlowController) UpdateSendWindow(offset protocol.ByteCount) {
	if offset > c.sendWindow {
		c.sendWindow = offset
	}
}

func (c *baseFlowController) SendWindowSize() protocol.ByteCount {
	// Happens during connection establishment: data queued before the
	// peer's transport parameters (and thus its initial window) arrive.
	if c.bytesSent > c.sendWindow {
		return 0
	}
	return c.sendWindow - c.bytesSent
}

func (c *baseFlowController) IsNewlyBlocked() (bool, protocol.ByteCount) {
	if c.SendWindowSize() != 0 {
		return false, 0
	}
	return true, c.sendWindow
}

// AddBytesRead credits consumed bytes towards the receive window. It
// returns ErrFinalSizeError if more bytes are consumed than the known
// final size allows, which cannot happen for data admitted through
// UpdateHighestReceived but is checked for defensiveness against callers
// that bypass it.
func (c *baseFlowController) AddBytesRead(n protocol.ByteCount) error {
	c.bytesRead += n
	if c.hasFinalOffset && c.bytesRead > c.finalOffset {
		return &ErrFinalSizeError{Final: c.finalOffset, Received: c.bytesRead}
	}
	return nil
}

// UpdateHighestReceived folds in the wire offset of newly received data (or
// the final offset asserted by a FIN/RESET_STREAM). If final is true, the
// call also locks in the final size: any later offset past it, or an
// earlier call to UpdateHighestReceived with final set to a different
// value, is a FINAL_SIZE_ERROR.
func (c *baseFlowController) UpdateHighestReceived(byteOffset protocol.ByteCount, final bool) error {
	if c.hasFinalOffset && byteOffset > c.finalOffset {
		return &ErrFinalSizeError{Final: c.finalOffset, Received: byteOffset}
	}
	if final {
		// The asserted final offset must be consistent with any data
		// already seen beyond it, and with any final offset asserted
		// earlier (a duplicate FIN/RESET_STREAM is a no-op, not an error).
		if byteOffset < c.highestReceived || (c.hasFinalOffset && c.finalOffset != byteOffset) {
			conflict := c.highestReceived
			if c.hasFinalOffset && c.finalOffset > conflict {
				conflict = c.finalOffset
			}
			return &ErrFinalSizeError{Final: byteOffset, Received: conflict}
		}
		c.finalOffset = byteOffset
		c.hasFinalOffset = true
	}
	if byteOffset > c.highestReceived {
		c.highestReceived = byteOffset
	}
	return nil
}

// GetWindowUpdate returns the new receive-window offset to advertise, and
// whether one is due at all: the window is re-advertised only once more
// than WindowUpdateThreshold of it has been consumed.
func (c *baseFlowController) GetWindowUpdate() (protocol.ByteCount, bool) {
	bytesRemaining := c.receiveWindow - c.bytesRead
	threshold := protocol.ByteCount(float64(c.receiveWindowIncrement) * (1 - WindowUpdateThreshold))
	if bytesRemaining >= threshold {
		return 0, false
	}
	c.maybeAdjustWindowIncrement()
	c.receiveWindow = c.bytesRead + c.receiveWindowIncrement
	return c.receiveWindow, true
}

// maybeAdjustWindowIncrement doubles the window increment, up to the
// configured maximum, so that well-behaved high-bandwidth peers don't
// force window updates more often than necessary. There is no RTT-based
// auto-tuning here: this core does not track RTT samples for the
// flow-control layer specifically, so the increment only ever grows on
// consumption pressure, never shrinks back down.
func (c *baseFlowController) maybeAdjustWindowIncrement() {
	doubled := 2 * c.receiveWindowIncrement
	if doubled > c.maxReceiveWindowIncrement {
		c.receiveWindowIncrement = c.maxReceiveWindowIncrement
	} else {
		c.receiveWindowIncrement = doubled
	}
	utils.Debugf("increasing receive flow control window increment to %d kB", c.receiveWindowIncrement/(1<<10))
}

func (c *baseFlowController) checkFlowControlViolation() bool {
	return c.highestReceived > c.receiveWindow
}
