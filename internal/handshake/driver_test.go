package handshake_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dif001/mvfst/internal/handshake"
	"github.com/dif001/mvfst/internal/protocol"
)

func selfSignedCert() tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// runHandshake pumps CRYPTO bytes between a client and server Driver until
// both sides stop producing new output, the same loopback shape quic-go's
// own crypto_setup tests drive their two conns with.
func runHandshake(client, server *handshake.Driver) {
	levels := protocol.CryptoStreamLevels()
	// Each direction has its own CRYPTO stream per level, so its own offsets.
	toServer := map[protocol.EncryptionLevel]protocol.ByteCount{}
	toClient := map[protocol.EncryptionLevel]protocol.ByteCount{}
	for i := 0; i < 20; i++ {
		progressed := false
		for _, level := range levels {
			if data := client.PendingCryptoData(level); len(data) > 0 {
				Expect(server.DoHandshake(level, toServer[level], data)).To(Succeed())
				toServer[level] += protocol.ByteCount(len(data))
				progressed = true
			}
		}
		for _, level := range levels {
			if data := server.PendingCryptoData(level); len(data) > 0 {
				Expect(client.DoHandshake(level, toClient[level], data)).To(Succeed())
				toClient[level] += protocol.ByteCount(len(data))
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
}

var _ = Describe("Driver", func() {
	var clientTP, serverTP []byte

	BeforeEach(func() {
		clientTP = []byte("client-transport-parameters")
		serverTP = []byte("server-transport-parameters")
	})

	newPair := func() (*handshake.Driver, *handshake.Driver) {
		cert := selfSignedCert()
		serverConf := &tls.Config{Certificates: []tls.Certificate{cert}}
		pool := x509.NewCertPool()
		leaf, _ := x509.ParseCertificate(cert.Certificate[0])
		pool.AddCert(leaf)
		clientConf := &tls.Config{RootCAs: pool, ServerName: "localhost"}

		client := handshake.NewDriver(protocol.PerspectiveClient, clientConf, clientTP)
		server := handshake.NewDriver(protocol.PerspectiveServer, serverConf, serverTP)
		return client, server
	}

	It("progresses both sides to OneRttKeysDerived and derives all four cipher pairs, without reaching Established on CRYPTO bytes alone", func() {
		client, server := newPair()
		Expect(server.Start(context.Background())).To(Succeed())
		Expect(client.Start(context.Background())).To(Succeed())

		runHandshake(client, server)

		Expect(client.Phase()).To(Equal(handshake.PhaseOneRttKeysDerived))
		Expect(server.Phase()).To(Equal(handshake.PhaseOneRttKeysDerived))
		Expect(client.Err()).NotTo(HaveOccurred())
		Expect(server.Err()).NotTo(HaveOccurred())

		_, ok := client.TakeHandshakeWriteCipher()
		Expect(ok).To(BeTrue())
		_, ok = client.TakeOneRttWriteCipher()
		Expect(ok).To(BeTrue())
		_, ok = client.TakeOneRttReadCipher()
		Expect(ok).To(BeTrue())
	})

	It("only reaches Established once the caller confirms a 1-RTT-protected packet was processed", func() {
		client, server := newPair()
		Expect(server.Start(context.Background())).To(Succeed())
		Expect(client.Start(context.Background())).To(Succeed())
		runHandshake(client, server)
		Expect(client.Phase()).To(Equal(handshake.PhaseOneRttKeysDerived))

		client.ConfirmHandshake()
		Expect(client.Phase()).To(Equal(handshake.PhaseEstablished))
	})

	It("ignores ConfirmHandshake before the TLS handshake has completed", func() {
		client, _ := newPair()
		Expect(client.Start(context.Background())).To(Succeed())
		Expect(client.Phase()).To(Equal(handshake.PhaseInitial))

		client.ConfirmHandshake()
		Expect(client.Phase()).To(Equal(handshake.PhaseInitial))
	})

	It("exchanges transport parameters", func() {
		client, server := newPair()
		Expect(server.Start(context.Background())).To(Succeed())
		Expect(client.Start(context.Background())).To(Succeed())
		runHandshake(client, server)

		Expect(client.PeerTransportParameters()).To(Equal(serverTP))
		Expect(server.PeerTransportParameters()).To(Equal(clientTP))
	})

	It("move-out cipher accessors only yield a cipher once", func() {
		client, server := newPair()
		Expect(server.Start(context.Background())).To(Succeed())
		Expect(client.Start(context.Background())).To(Succeed())
		runHandshake(client, server)

		_, ok := client.TakeOneRttWriteCipher()
		Expect(ok).To(BeTrue())
		_, ok = client.TakeOneRttWriteCipher()
		Expect(ok).To(BeFalse())
	})

	It("reports no early data attempted on a fresh connection with no session cache", func() {
		client, server := newPair()
		Expect(server.Start(context.Background())).To(Succeed())
		Expect(client.Start(context.Background())).To(Succeed())
		runHandshake(client, server)

		Expect(client.EarlyDataAttempted()).To(BeFalse())
		Expect(client.ZeroRttRejected()).To(BeFalse())
	})
})
