package connection

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

	"github.com/dif001/mvfst/internal/congestion"
	"github.com/dif001/mvfst/internal/handshake"
	"github.com/dif001/mvfst/internal/protocol"
	"github.com/dif001/mvfst/internal/stream"
)

func selfSignedCertForConnTest() tls.Certificate {
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

// runCryptoExchange pumps CRYPTO bytes between c's own handshake driver and a
// bare server-side Driver until neither side has anything further to send,
// the same loopback shape handshake's own driver_test.go drives its pair
// with.
func runCryptoExchange(c *Connection, server *handshake.Driver) {
	levels := protocol.CryptoStreamLevels()
	// Each direction has its own CRYPTO stream per level, so its own offsets.
	toServer := map[protocol.EncryptionLevel]protocol.ByteCount{}
	toClient := map[protocol.EncryptionLevel]protocol.ByteCount{}
	for i := 0; i < 20; i++ {
		progressed := false
		for _, level := range levels {
			if data := c.driver.PendingCryptoData(level); len(data) > 0 {
				Expect(server.DoHandshake(level, toServer[level], data)).To(Succeed())
				toServer[level] += protocol.ByteCount(len(data))
				progressed = true
			}
		}
		for _, level := range levels {
			if data := server.PendingCryptoData(level); len(data) > 0 {
				Expect(c.HandleCryptoFrame(level, toClient[level], data)).To(Succeed())
				toClient[level] += protocol.ByteCount(len(data))
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
}

var _ = Describe("Connection phase transitions", func() {
	It("stays in the Handshake phase once the TLS handshake completes, and only reaches Established once a 1-RTT-protected packet is confirmed processed", func() {
		cert := selfSignedCertForConnTest()
		serverConf := &tls.Config{Certificates: []tls.Certificate{cert}}
		pool := x509.NewCertPool()
		leaf, _ := x509.ParseCertificate(cert.Certificate[0])
		pool.AddCert(leaf)

		c := New(protocol.ConnectionID{1, 2, 3, 4}, Config{
			TLSConfig:           &tls.Config{RootCAs: pool, ServerName: "localhost"},
			TransportParameters: []byte("client-tp"),
			StreamLimits: stream.Limits{
				MaxData:              1 << 20,
				InitialMaxStreamData: 1 << 16,
				MaxStreamsBidi:       4,
				MaxStreamsUni:        4,
			},
			CongestionSettings: congestion.DefaultSettings(),
			ConnFlowWindow:     1 << 20,
			MaxConnFlowWindow:  1 << 20,
		})
		server := handshake.NewDriver(protocol.PerspectiveServer, serverConf, []byte("server-tp"))

		Expect(server.Start(context.Background())).To(Succeed())
		Expect(c.Start(context.Background())).To(Succeed())

		runCryptoExchange(c, server)

		Expect(c.driver.Phase()).To(Equal(handshake.PhaseOneRttKeysDerived))
		Expect(c.Phase()).To(Equal(PhaseHandshake))

		c.OnAppDataDecrypted()
		Expect(c.driver.Phase()).To(Equal(handshake.PhaseEstablished))
		Expect(c.Phase()).To(Equal(PhaseEstablished))
	})

	It("ignores OnAppDataDecrypted once the connection has already closed", func() {
		c := New(protocol.ConnectionID{1, 2, 3, 4}, Config{
			TLSConfig: &tls.Config{ServerName: "localhost"},
			StreamLimits: stream.Limits{
				MaxData:              1 << 20,
				InitialMaxStreamData: 1 << 16,
				MaxStreamsBidi:       4,
				MaxStreamsUni:        4,
			},
			CongestionSettings: congestion.DefaultSettings(),
			ConnFlowWindow:     1 << 20,
			MaxConnFlowWindow:  1 << 20,
		})
		c.CloseLocally(1, "done")
		c.OnAppDataDecrypted()
		Expect(c.Phase()).To(Equal(PhaseClosed))
	})
})
