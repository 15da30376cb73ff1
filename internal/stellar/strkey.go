// Package stellar validates Stellar StrKey account ids.
package stellar

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/stellar/go/strkey"
)

// VersionByte prefixes a StrKey payload.
type VersionByte = strkey.VersionByte

const (
	VersionAccountID VersionByte = strkey.VersionByteAccountID // G...
	VersionSeed      VersionByte = strkey.VersionByteSeed      // S...
)

const keySize = 32

var (
	// ErrInvalidStrKey is returned for malformed or corrupted keys.
	ErrInvalidStrKey = errors.New("invalid strkey")
	// ErrNotOnCurve is returned when the payload is not an ed25519 point.
	ErrNotOnCurve = errors.New("public key is not on curve")
)

// Decode returns the 32-byte payload of a StrKey with the expected version
// byte.
func Decode(expected VersionByte, src string) ([]byte, error) {
	key, err := strkey.Decode(expected, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrKey, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: payload length %d", ErrInvalidStrKey, len(key))
	}
	return key, nil
}

// Encode returns the StrKey of a 32-byte payload under version.
func Encode(version VersionByte, payload []byte) (string, error) {
	if len(payload) != keySize {
		return "", fmt.Errorf("%w: payload length %d", ErrInvalidStrKey, len(payload))
	}
	s, err := strkey.Encode(version, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStrKey, err)
	}
	return s, nil
}

// DecodeAccountID decodes a G... address and checks it is an ed25519 point.
func DecodeAccountID(address string) ([]byte, error) {
	key, err := Decode(VersionAccountID, address)
	if err != nil {
		return nil, err
	}
	if _, err := new(edwards25519.Point).SetBytes(key); err != nil {
		return nil, ErrNotOnCurve
	}
	return key, nil
}

// ValidateAccountID returns nil if address is a valid account id.
func ValidateAccountID(address string) error {
	_, err := DecodeAccountID(address)
	return err
}

// IsValidAccountID reports whether address is a valid account id.
func IsValidAccountID(address string) bool {
	return ValidateAccountID(address) == nil
}
