package congestion

import (
	"github.com/dif001/mvfst/internal/protocol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testSettings() Settings {
	return Settings{
		UDPSendPacketLen: 1200,
		MinCwndInMss:     2,
		MaxCwndInMss:     2000,
		InitCwndInMss:    10,
	}
}

var _ = Describe("NewReno", func() {
	var r *NewReno

	BeforeEach(func() {
		r = NewNewReno(testSettings())
	})

	It("initializes cwnd from InitCwndInMss", func() {
		Expect(r.CongestionWindow()).To(Equal(protocol.ByteCount(12000)))
		Expect(r.InSlowStart()).To(BeTrue())
	})

	It("grows cwnd by ackedBytes per ack in slow start", func() {
		r.OnPacketSent(1200)
		r.OnPacketAcked(AckEvent{LargestAckedPacket: 1, AckedBytes: 1200}, 1)
		Expect(r.CongestionWindow()).To(Equal(protocol.ByteCount(13200)))
		Expect(r.InSlowStart()).To(BeTrue())
		Expect(r.BytesInFlight()).To(Equal(protocol.ByteCount(0)))
	})

	It("does not grow the window for acks still inside an active recovery episode", func() {
		r.cwndBytes = 20000
		r.ssthresh = 10000
		r.endOfRecovery = 100
		r.OnPacketSent(1200)
		r.OnPacketAcked(AckEvent{LargestAckedPacket: 50, AckedBytes: 1200}, 200)
		Expect(r.CongestionWindow()).To(Equal(protocol.ByteCount(20000)))
	})

	It("halves cwnd exactly once per loss event", func() {
		r.cwndBytes = 20000
		r.ssthresh = protocol.MaxByteCount
		r.endOfRecovery = protocol.InvalidPacketNumber

		r.OnPacketSent(1200)
		r.OnPacketLoss(LossEvent{LargestLostPacketNum: 50, LostBytes: 1200}, 100)
		Expect(r.CongestionWindow()).To(Equal(protocol.ByteCount(10000)))
		Expect(r.ssthresh).To(Equal(protocol.ByteCount(10000)))
		Expect(r.endOfRecovery).To(Equal(protocol.PacketNumber(100)))

		// a second loss inside the same recovery window (largestLost <= endOfRecovery) must not cut back again
		r.OnPacketSent(1200)
		r.OnPacketLoss(LossEvent{LargestLostPacketNum: 80, LostBytes: 1200}, 100)
		Expect(r.CongestionWindow()).To(Equal(protocol.ByteCount(10000)))
	})

	It("clamps the halved cwnd at the floor", func() {
		r.cwndBytes = 2 * r.settings.UDPSendPacketLen // at the floor already
		r.ssthresh = protocol.MaxByteCount
		r.OnPacketSent(1200)
		r.OnPacketLoss(LossEvent{LargestLostPacketNum: 1, LostBytes: 1200}, 1)
		Expect(r.CongestionWindow()).To(Equal(r.settings.MinCwndInMss * r.settings.UDPSendPacketLen))
	})

	It("collapses to the floor on a verified RTO regardless of prior window", func() {
		r.cwndBytes = 999999
		r.OnRTOVerified()
		Expect(r.CongestionWindow()).To(Equal(r.settings.MinCwndInMss * r.settings.UDPSendPacketLen))
	})

	It("zeroes inflight when acked bytes exactly equal inflight", func() {
		r.OnPacketSent(5000)
		Expect(r.BytesInFlight()).To(Equal(protocol.ByteCount(5000)))
		r.OnPacketAcked(AckEvent{LargestAckedPacket: 1, AckedBytes: 5000}, 1)
		Expect(r.BytesInFlight()).To(Equal(protocol.ByteCount(0)))
	})

	It("computes writable bytes as cwnd minus inflight", func() {
		Expect(r.WritableBytes()).To(Equal(r.CongestionWindow()))
		r.OnPacketSent(1000)
		Expect(r.WritableBytes()).To(Equal(r.CongestionWindow() - 1000))
	})

	It("panics on inflight underflow", func() {
		Expect(func() {
			r.OnRemoveBytesFromInflight(1)
		}).To(Panic())
	})

	It("does not support pacing", func() {
		Expect(r.PacingInterval()).To(Equal(defaultPacingTick))
	})
})
