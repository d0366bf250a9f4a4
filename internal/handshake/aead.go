package handshake

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/dif001/mvfst/internal/protocol"
)

// ErrDecryptionFailed is returned by Keys.Open on any AEAD failure. Per the
// spec, the caller treats this identically whether it's an actual tamper
// or a stale key: the packet is dropped silently.
var ErrDecryptionFailed = fmt.Errorf("handshake: decryption failed")

// Keys pairs one direction's AEAD with its header-protection cipher, both
// derived from the same traffic secret. This is the {AEAD, header
// protection cipher} pair the spec's data model assigns to each epoch key
// slot.
type Keys struct {
	aead cipher.AEAD
	hp   cipher.Block

	nonceBuf []byte
	hpMask   []byte
}

func newKeys(suite cipherSuite, trafficSecret []byte) *Keys {
	key := hkdfExpandLabel(suite.Hash, trafficSecret, nil, quicKeyLabel, suite.KeyLen)
	iv := hkdfExpandLabel(suite.Hash, trafficSecret, nil, quicIVLabel, suite.IVLen())
	hpKey := hkdfExpandLabel(suite.Hash, trafficSecret, nil, quicHPLabel, suite.KeyLen)

	aead := suite.AEAD(key)
	hp, err := aes.NewCipher(hpKey)
	if err != nil {
		panic(fmt.Sprintf("handshake: building header protection cipher: %s", err))
	}
	k := &Keys{
		aead:     aead,
		hp:       hp,
		hpMask:   make([]byte, hp.BlockSize()),
		nonceBuf: make([]byte, aead.NonceSize()),
	}
	copy(k.nonceBuf, iv)
	return k
}

// Seal encrypts the packet payload for packet number pn, XOR-ing the
// configured IV with pn to build the nonce as RFC 9001 section 5.3
// requires.
func (k *Keys) Seal(dst, src []byte, pn protocol.PacketNumber, ad []byte) []byte {
	nonce := k.nonce(pn)
	return k.aead.Seal(dst, nonce, src, ad)
}

// Open decrypts the packet payload for packet number pn. Any AEAD failure
// collapses to ErrDecryptionFailed; the caller must not distinguish a
// tampered packet from one encrypted under a key it no longer holds.
func (k *Keys) Open(dst, src []byte, pn protocol.PacketNumber, ad []byte) ([]byte, error) {
	nonce := k.nonce(pn)
	dec, err := k.aead.Open(dst, nonce, src, ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return dec, nil
}

func (k *Keys) nonce(pn protocol.PacketNumber) []byte {
	nonce := make([]byte, len(k.nonceBuf))
	copy(nonce, k.nonceBuf)
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], uint64(pn)^binary.BigEndian.Uint64(k.nonceBuf[len(k.nonceBuf)-8:]))
	return nonce
}

// EncryptHeader and DecryptHeader both mask (XOR) the protected bits with
// the same single-block encryption of a ciphertext sample: masking is its
// own inverse, so one routine serves both directions.
func (k *Keys) EncryptHeader(sample []byte, firstByte *byte, pnBytes []byte) {
	k.maskHeader(sample, firstByte, pnBytes)
}

func (k *Keys) DecryptHeader(sample []byte, firstByte *byte, pnBytes []byte) {
	k.maskHeader(sample, firstByte, pnBytes)
}

func (k *Keys) maskHeader(sample []byte, firstByte *byte, pnBytes []byte) {
	if len(sample) != k.hp.BlockSize() {
		panic("handshake: invalid header protection sample size")
	}
	k.hp.Encrypt(k.hpMask, sample)
	*firstByte ^= k.hpMask[0] & 0xf
	for i := range pnBytes {
		pnBytes[i] ^= k.hpMask[i+1]
	}
}

func (k *Keys) Overhead() int { return k.aead.Overhead() }
