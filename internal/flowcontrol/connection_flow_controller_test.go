package flowcontrol

import (
	"github.com/dif001/mvfst/internal/protocol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Connection flow controller", func() {
	It("is seeded from the peer's InitialMaxData", func() {
		conn := NewConnectionFlowController(5000, 50000, 8000)
		Expect(conn.SendWindowSize()).To(Equal(protocol.ByteCount(8000)))
	})

	It("blocks once every advertised byte has been sent", func() {
		conn := NewConnectionFlowController(5000, 50000, 100)
		conn.AddBytesSent(100)
		blocked, offset := conn.IsNewlyBlocked()
		Expect(blocked).To(BeTrue())
		Expect(offset).To(Equal(protocol.ByteCount(100)))
	})
})
