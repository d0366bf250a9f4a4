package ackhandler_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dif001/mvfst/internal/ackhandler"
	"github.com/dif001/mvfst/internal/congestion"
	"github.com/dif001/mvfst/internal/protocol"
)

// fakeController records the events it was given rather than running any
// real congestion-control arithmetic, so these tests only exercise the
// tracker's own bookkeeping.
type fakeController struct {
	sent            []protocol.ByteCount
	removed         []protocol.ByteCount
	acks            []congestion.AckEvent
	losses          []congestion.LossEvent
	rtoVerified     int
}

func (f *fakeController) OnPacketSent(n protocol.ByteCount)            { f.sent = append(f.sent, n) }
func (f *fakeController) OnRemoveBytesFromInflight(n protocol.ByteCount) { f.removed = append(f.removed, n) }
func (f *fakeController) OnPacketAcked(a congestion.AckEvent, largestSent protocol.PacketNumber) {
	f.acks = append(f.acks, a)
}
func (f *fakeController) OnPacketLoss(l congestion.LossEvent, largestSent protocol.PacketNumber) {
	f.losses = append(f.losses, l)
}
func (f *fakeController) OnRTOVerified()                       { f.rtoVerified++ }
func (f *fakeController) WritableBytes() protocol.ByteCount    { return 0 }
func (f *fakeController) BytesInFlight() protocol.ByteCount    { return 0 }
func (f *fakeController) CongestionWindow() protocol.ByteCount { return 0 }
func (f *fakeController) InSlowStart() bool                    { return false }
func (f *fakeController) Type() congestion.ControllerType      { return congestion.ControllerTypeNewReno }
func (f *fakeController) PacingInterval() time.Duration        { return 0 }
func (f *fakeController) PacingRate() protocol.ByteCount       { return 0 }

var _ = Describe("Tracker", func() {
	var (
		ctrl    *fakeController
		tracker *ackhandler.Tracker
	)

	BeforeEach(func() {
		ctrl = &fakeController{}
		tracker = ackhandler.NewTracker(ctrl)
	})

	It("charges the congestion window on send and tracks the largest sent packet number", func() {
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 1, EncodedSize: 1200})
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 2, EncodedSize: 1200})
		Expect(ctrl.sent).To(Equal([]protocol.ByteCount{1200, 1200}))
		Expect(tracker.LargestSent()).To(Equal(protocol.PacketNumber(2)))
		Expect(tracker.Outstanding()).To(Equal(2))
	})

	It("panics if the same packet number is registered twice", func() {
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 1, EncodedSize: 1200})
		Expect(func() {
			tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 1, EncodedSize: 1200})
		}).To(Panic())
	})

	It("removes acked packets and feeds one AckEvent for the batch", func() {
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 1, EncodedSize: 1000})
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 2, EncodedSize: 1000})
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 3, EncodedSize: 1000})

		tracker.ReceivedAck([]protocol.PacketNumber{1, 3})

		Expect(tracker.Outstanding()).To(Equal(1))
		_, stillThere := tracker.Get(2)
		Expect(stillThere).To(BeTrue())
		Expect(ctrl.acks).To(HaveLen(1))
		Expect(ctrl.acks[0].LargestAckedPacket).To(Equal(protocol.PacketNumber(3)))
		Expect(ctrl.acks[0].AckedBytes).To(Equal(protocol.ByteCount(2000)))
		Expect(tracker.LargestAcked()).To(Equal(protocol.PacketNumber(3)))
	})

	It("ignores acks for packet numbers it no longer holds", func() {
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 1, EncodedSize: 1000})
		tracker.ReceivedAck([]protocol.PacketNumber{1})
		ctrl.acks = nil

		tracker.ReceivedAck([]protocol.PacketNumber{1, 99})
		Expect(ctrl.acks).To(BeEmpty())
	})

	It("declares packets lost, returns them, and feeds one LossEvent for the batch", func() {
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 1, EncodedSize: 500})
		tracker.SentPacket(&ackhandler.OutstandingPacket{PacketNumber: 2, EncodedSize: 500})

		lost := tracker.DeclareLost([]protocol.PacketNumber{1, 2})

		Expect(lost).To(HaveLen(2))
		Expect(tracker.Outstanding()).To(Equal(0))
		Expect(ctrl.losses).To(HaveLen(1))
		Expect(ctrl.losses[0].LargestLostPacketNum).To(Equal(protocol.PacketNumber(2)))
		Expect(ctrl.losses[0].LostBytes).To(Equal(protocol.ByteCount(1000)))
	})

	It("forwards RemoveFromInflight straight to the controller", func() {
		tracker.RemoveFromInflight(42)
		Expect(ctrl.removed).To(Equal([]protocol.ByteCount{42}))
	})

	It("treats an empty ack or loss batch as a no-op", func() {
		tracker.ReceivedAck(nil)
		tracker.DeclareLost(nil)
		Expect(ctrl.acks).To(BeEmpty())
		Expect(ctrl.losses).To(BeEmpty())
	})
})
