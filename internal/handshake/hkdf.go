package handshake

import (
	"crypto"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// quicKeyLabel, quicIVLabel and quicHPLabel are the TLS-1.3-over-QUIC
// labels used to derive, from a traffic secret, the AEAD key and IV and the
// header-protection key respectively (RFC 9001 section 5.1).
const (
	quicKeyLabel = "quic key"
	quicIVLabel  = "quic iv"
	quicHPLabel  = "quic hp"
)

// hkdfExtract wraps hkdf.Extract for the Initial-secret derivation, the one
// place this package needs the extract half of HKDF rather than just
// expand-with-label.
func hkdfExtract(hash crypto.Hash, secret, salt []byte) []byte {
	return hkdf.Extract(hash.New, secret, salt)
}

// hkdfExpandLabel implements the TLS 1.3 HKDF-Expand-Label function
// (RFC 8446 section 7.1), which QUIC reuses unmodified for its own key
// schedule.
func hkdfExpandLabel(hash crypto.Hash, secret, context []byte, label string, length int) []byte {
	b := make([]byte, 3, 3+6+len(label)+1+len(context))
	binary.BigEndian.PutUint16(b, uint16(length))
	b[2] = uint8(6 + len(label))
	b = append(b, []byte("tls13 ")...)
	b = append(b, []byte(label)...)
	b = b[:3+6+len(label)+1]
	b[3+6+len(label)] = uint8(len(context))
	b = append(b, context...)

	out := make([]byte, length)
	r := hkdf.Expand(hash.New, secret, b)
	if _, err := r.Read(out); err != nil {
		panic(fmt.Errorf("handshake: HKDF-Expand-Label invocation failed unexpectedly: %w", err))
	}
	return out
}
