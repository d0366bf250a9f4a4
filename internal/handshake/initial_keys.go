package handshake

import (
	"crypto"
	"crypto/tls"

	"github.com/dif001/mvfst/internal/protocol"
)

// quicVersion1Salt is the draft-17-era Initial salt QUIC uses to turn the
// client's destination connection ID into the two Initial traffic secrets.
var quicVersion1Salt = []byte{0x7f, 0xbc, 0xdb, 0x0e, 0x7c, 0x66, 0xbb, 0xe9, 0x19, 0x3a, 0x96, 0xcd, 0x21, 0x51, 0x9e, 0xbd, 0x7a, 0x02, 0x64, 0x4a}

var initialSuite = cipherSuite{ID: tls.TLS_AES_128_GCM_SHA256, Hash: crypto.SHA256, KeyLen: 16, AEAD: aeadAESGCM}

// NewInitialKeys derives the client's Initial read and write key pairs
// directly from the destination connection ID, with no TLS handshake
// input: Initial keys are known to both sides as soon as the connection ID
// is chosen.
func NewInitialKeys(destConnID protocol.ConnectionID, pers protocol.Perspective) (write, read *Keys) {
	clientSecret, serverSecret := computeInitialSecrets(destConnID)
	if pers == protocol.PerspectiveClient {
		return newKeys(initialSuite, clientSecret), newKeys(initialSuite, serverSecret)
	}
	return newKeys(initialSuite, serverSecret), newKeys(initialSuite, clientSecret)
}

func computeInitialSecrets(destConnID protocol.ConnectionID) (clientSecret, serverSecret []byte) {
	initialSecret := hkdfExtract(crypto.SHA256, destConnID, quicVersion1Salt)
	clientSecret = hkdfExpandLabel(crypto.SHA256, initialSecret, nil, "client in", crypto.SHA256.Size())
	serverSecret = hkdfExpandLabel(crypto.SHA256, initialSecret, nil, "server in", crypto.SHA256.Size())
	return
}
