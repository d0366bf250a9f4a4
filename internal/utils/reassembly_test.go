package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/utils"
)

var _ = Describe("ReassemblyBuffer", func() {
	var b *utils.ReassemblyBuffer

	BeforeEach(func() {
		b = &utils.ReassemblyBuffer{}
	})

	It("releases in-order data immediately", func() {
		b.Push(0, []byte("hello"))
		Expect(b.Pop()).To(Equal([]byte("hello")))
		Expect(b.ReadOffset()).To(Equal(protocol.ByteCount(5)))
	})

	It("holds out-of-order data until the gap is filled", func() {
		b.Push(5, []byte("world"))
		Expect(b.Pop()).To(BeEmpty())

		b.Push(0, []byte("hello"))
		Expect(b.Pop()).To(Equal([]byte("helloworld")))
	})

	It("drains across several pushes spanning more than one gap", func() {
		b.Push(10, []byte("!"))
		b.Push(0, []byte("hello"))
		Expect(b.Pop()).To(Equal([]byte("hello")))

		b.Push(5, []byte("world"))
		Expect(b.Pop()).To(Equal([]byte("world!")))

		Expect(b.Pop()).To(BeEmpty())
	})

	It("trims a push that is wholly below the read offset", func() {
		b.Push(0, []byte("hello"))
		b.Pop()

		b.Push(0, []byte("hello")) // a retransmission of already-consumed bytes
		Expect(b.Pop()).To(BeEmpty())
	})

	It("trims a push that partially overlaps already-consumed bytes", func() {
		b.Push(0, []byte("hello"))
		b.Pop()

		b.Push(3, []byte("lo world"))
		Expect(b.Pop()).To(Equal([]byte(" world")))
	})

	It("ignores an empty push", func() {
		b.Push(0, nil)
		Expect(b.Pop()).To(BeEmpty())
	})

	It("reports contiguity up to a given offset even across multiple chunks", func() {
		b.Push(0, []byte("hello"))
		b.Push(5, []byte("world"))
		Expect(b.IsContiguousUpTo(10)).To(BeTrue())
		Expect(b.IsContiguousUpTo(11)).To(BeFalse())
	})

	It("reports a gap as not contiguous", func() {
		b.Push(5, []byte("world"))
		Expect(b.IsContiguousUpTo(10)).To(BeFalse())
	})
})
