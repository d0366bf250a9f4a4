package pathmgr_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dif001/mvfst/internal/pathmgr"
)

type fakeSocket struct {
	closed bool
	sent   []net.Addr
}

func (f *fakeSocket) WriteTo(b []byte, addr net.Addr) (int, error) {
	f.sent = append(f.sent, addr)
	return len(b), nil
}
func (f *fakeSocket) Close() error { f.closed = true; return nil }

var v4addr = &net.UDPAddr{IP: net.ParseIP("93.184.216.34"), Port: 443}
var v6addr = &net.UDPAddr{IP: net.ParseIP("2606:2800:220:1:248:1893:25c8:1946"), Port: 443}

var _ = Describe("Manager", func() {
	var (
		primarySock, backupSock *fakeSocket
		m                       *pathmgr.Manager
	)

	BeforeEach(func() {
		primarySock = &fakeSocket{}
		backupSock = &fakeSocket{}
		m = pathmgr.NewManager(pathmgr.FamilyUnknown, time.Hour)
	})

	It("sends the primary attempt immediately and leaves the backup idle", func() {
		err := m.Start(v4addr, v6addr, primarySock, backupSock, func(s pathmgr.Socket, addr net.Addr) error {
			_, err := s.WriteTo(nil, addr)
			return err
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(primarySock.sent).To(HaveLen(1))
		Expect(backupSock.sent).To(BeEmpty())
	})

	It("races the backup once fired and declares whichever address validates first the winner", func() {
		send := func(s pathmgr.Socket, addr net.Addr) error {
			_, err := s.WriteTo(nil, addr)
			return err
		}
		Expect(m.Start(v4addr, v6addr, primarySock, backupSock, send)).To(Succeed())
		Expect(m.FireBackup(send)).To(Succeed())
		Expect(backupSock.sent).To(HaveLen(1))

		m.OnPathValidated(v6addr)

		winner, family, ok := m.Winner()
		Expect(ok).To(BeTrue())
		Expect(winner).To(BeIdenticalTo(pathmgr.Socket(backupSock)))
		Expect(family).To(Equal(pathmgr.FamilyV6))
		Expect(primarySock.closed).To(BeTrue())
	})

	It("races the preferred cached family first", func() {
		m = pathmgr.NewManager(pathmgr.FamilyV6, time.Hour)
		send := func(s pathmgr.Socket, addr net.Addr) error {
			_, err := s.WriteTo(nil, addr)
			return err
		}
		Expect(m.Start(v4addr, v6addr, primarySock, backupSock, send)).To(Succeed())
		Expect(primarySock.sent).To(BeEmpty())
		Expect(backupSock.sent).To(HaveLen(1))
	})

	It("ignores a second OnPathValidated call once the race is already decided", func() {
		send := func(s pathmgr.Socket, addr net.Addr) error {
			_, err := s.WriteTo(nil, addr)
			return err
		}
		Expect(m.Start(v4addr, v6addr, primarySock, backupSock, send)).To(Succeed())
		m.OnPathValidated(v4addr)
		m.OnPathValidated(v6addr)

		_, family, _ := m.Winner()
		Expect(family).To(Equal(pathmgr.FamilyV4))
	})
})
