package connection_test

import (
	"crypto/tls"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dif001/mvfst/internal/ackhandler"
	"github.com/dif001/mvfst/internal/congestion"
	"github.com/dif001/mvfst/internal/connection"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/stream"
)

func newTestConn() *connection.Connection {
	cfg := connection.Config{
		TLSConfig:          &tls.Config{ServerName: "localhost"},
		TransportParameters: []byte("tp"),
		StreamLimits: stream.Limits{
			MaxData:              1 << 20,
			InitialMaxStreamData: 1 << 16,
			MaxStreamsBidi:       4,
			MaxStreamsUni:        4,
		},
		CongestionSettings: congestion.DefaultSettings(),
		ConnFlowWindow:     1 << 20,
		MaxConnFlowWindow:  1 << 20,
	}
	return connection.New(protocol.ConnectionID{1, 2, 3, 4}, cfg)
}

var _ = Describe("Connection", func() {
	It("installs Initial keys for both directions immediately on construction", func() {
		c := newTestConn()
		_, ok := c.WriteKeysFor(protocol.EncryptionInitial)
		Expect(ok).To(BeTrue())
		_, ok = c.ReadKeysFor(protocol.EncryptionInitial)
		Expect(ok).To(BeTrue())
	})

	It("starts in the Handshake phase", func() {
		c := newTestConn()
		Expect(c.Phase()).To(Equal(connection.PhaseHandshake))
	})

	It("charges sent bytes against the congestion window and credits them back on ack", func() {
		c := newTestConn()
		before := c.CongestionController().WritableBytes()

		pn := c.NextPacketNumber()
		c.OnPacketSent(&ackhandler.OutstandingPacket{
			PacketNumber: pn,
			EncodedSize:  1000,
			SendTime:     time.Now(),
			Epoch:        protocol.EncryptionAppData,
		})
		Expect(c.CongestionController().WritableBytes()).To(Equal(before - 1000))

		c.OnAckReceived([]protocol.PacketNumber{pn})
		Expect(c.CongestionController().BytesInFlight()).To(Equal(protocol.ByteCount(0)))
	})

	It("requeues a lost stream frame's bytes for retransmission", func() {
		c := newTestConn()
		s, err := c.Streams().OpenStream(false)
		Expect(err).NotTo(HaveOccurred())
		s.Write([]byte("hello"))
		data, offset, fin := s.PendingWrite(100)

		pn := c.NextPacketNumber()
		c.OnPacketSent(&ackhandler.OutstandingPacket{
			PacketNumber: pn,
			EncodedSize:  protocol.ByteCount(len(data)),
			SendTime:     time.Now(),
			Epoch:        protocol.EncryptionAppData,
			Frames: []ackhandler.Frame{
				{Kind: ackhandler.FrameKindStream, StreamID: s.ID(), Offset: offset, Data: data, Fin: fin},
			},
		})

		c.OnPacketsDeclaredLost([]protocol.PacketNumber{pn})

		retx, retxOffset, _ := s.PendingWrite(100)
		Expect(string(retx)).To(Equal("hello"))
		Expect(retxOffset).To(Equal(protocol.ByteCount(0)))
	})

	It("is idempotent about which error sticks once closed", func() {
		c := newTestConn()
		first := c.CloseLocally(1, "done")
		second := c.CloseLocally(2, "different reason")
		Expect(second).To(Equal(first))
		Expect(c.Phase()).To(Equal(connection.PhaseClosed))
	})
})
