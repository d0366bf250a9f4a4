package handshake

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const aeadNonceLength = 12

// cipherSuite is the handful of facts about a TLS 1.3 cipher suite this
// package needs to build its AEAD and header-protection cipher: which hash
// drives the key schedule, how many key bytes it needs, and how to turn
// those bytes into an AEAD.
type cipherSuite struct {
	ID     uint16
	Hash   crypto.Hash
	KeyLen int
	AEAD   func(key []byte) cipher.AEAD
}

func (s cipherSuite) IVLen() int { return aeadNonceLength }

func getCipherSuite(id uint16) (cipherSuite, error) {
	switch id {
	case tls.TLS_AES_128_GCM_SHA256:
		return cipherSuite{ID: id, Hash: crypto.SHA256, KeyLen: 16, AEAD: aeadAESGCM}, nil
	case tls.TLS_AES_256_GCM_SHA384:
		return cipherSuite{ID: id, Hash: crypto.SHA384, KeyLen: 32, AEAD: aeadAESGCM}, nil
	case tls.TLS_CHACHA20_POLY1305_SHA256:
		return cipherSuite{ID: id, Hash: crypto.SHA256, KeyLen: 32, AEAD: aeadChaCha20Poly1305}, nil
	default:
		return cipherSuite{}, fmt.Errorf("handshake: unsupported cipher suite %#x", id)
	}
}

func aeadAESGCM(key []byte) cipher.AEAD {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return aead
}

func aeadChaCha20Poly1305(key []byte) cipher.AEAD {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		panic(err)
	}
	return aead
}
