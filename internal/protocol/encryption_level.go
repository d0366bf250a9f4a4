package protocol

// EncryptionLevel names one of the four QUIC epochs. Each epoch has its own
// AEAD/header-protection keys and (for Initial, Handshake and EarlyData) its
// own CRYPTO stream; packet numbers come from a single space shared by all
// epochs (see connection.Connection.NextPacketNumber).
type EncryptionLevel uint8

const (
	EncryptionInitial EncryptionLevel = iota
	EncryptionHandshake
	EncryptionEarlyData // 0-RTT
	EncryptionAppData   // 1-RTT

	// NumEncryptionLevels sizes arrays indexed by EncryptionLevel.
	NumEncryptionLevels
)

func (e EncryptionLevel) String() string {
	switch e {
	case EncryptionInitial:
		return "Initial"
	case EncryptionHandshake:
		return "Handshake"
	case EncryptionEarlyData:
		return "EarlyData"
	case EncryptionAppData:
		return "AppData"
	default:
		return "invalid encryption level"
	}
}

// cryptoStreamLevels enumerates the epochs that carry a CRYPTO stream.
// AppData handshake bytes are never sent on a CRYPTO stream (see
// handshake.Driver.PendingCryptoData), so it is excluded here.
var cryptoStreamLevels = [...]EncryptionLevel{EncryptionInitial, EncryptionHandshake, EncryptionEarlyData}

// CryptoStreamLevels returns the epochs that own an outbound CRYPTO stream.
func CryptoStreamLevels() []EncryptionLevel {
	return cryptoStreamLevels[:]
}
