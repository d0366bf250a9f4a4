package connection

import (
	"github.com/dif001/mvfst/internal/handshake"
	"github.com/dif001/mvfst/internal/protocol"
)

// epochKeys holds the installed AEAD/header-protection cipher for each
// {epoch, direction} pair. Unlike the handshake driver's Take* accessors,
// these slots are not move-out: once a packet number space has its keys,
// every packet at that epoch uses them until a key update (not modeled
// here; draft-17 has none) or the epoch is discarded.
type epochKeys struct {
	write [protocol.NumEncryptionLevels]*handshake.Keys
	read  [protocol.NumEncryptionLevels]*handshake.Keys
}

func (k *epochKeys) install(level protocol.EncryptionLevel, write, read *handshake.Keys) {
	if write != nil {
		k.write[level] = write
	}
	if read != nil {
		k.read[level] = read
	}
}

func (k *epochKeys) writer(level protocol.EncryptionLevel) (*handshake.Keys, bool) {
	c := k.write[level]
	return c, c != nil
}

func (k *epochKeys) reader(level protocol.EncryptionLevel) (*handshake.Keys, bool) {
	c := k.read[level]
	return c, c != nil
}

// discard drops the keys for an epoch once it's no longer needed. The
// connection discards both the Initial and the Handshake keys as soon as
// the handshake driver reaches PhaseOneRttKeysDerived.
func (k *epochKeys) discard(level protocol.EncryptionLevel) {
	k.write[level] = nil
	k.read[level] = nil
}
