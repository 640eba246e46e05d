package objects

import (
	"encoding/hex"

	blake2b "github.com/minio/blake2b-simd"

	"github.com/strataconf/strata/pkg/objects/status"
)

const (
	// KeySize for the blake2b algo
	KeySize = 64

	// KeySizeHex for the hex representation of a key
	KeySizeHex = 2 * KeySize
)

// Key is the content-derived address of an object.
type Key [KeySize]byte

// NewKey creates a key from its raw bytes
func NewKey(data []byte) (Key, error) {
	var k Key
	if copy(k[:], data) != KeySize {
		return Key{}, status.ErrInvalidKey.WrapMessage("%x has invalid size %d, expected %d", data, len(data), KeySize)
	}
	return k, nil
}

// KeyFromString parses the hex representation of a key
func KeyFromString(s string) (Key, error) {
	if len(s) != KeySizeHex {
		return Key{}, status.ErrInvalidKey.WrapMessage("%q has invalid length %d, expected %d", s, len(s), KeySizeHex)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, status.ErrInvalidKey.Wrap(err)
	}
	return NewKey(raw)
}

// MustKeyFromString parses a hex key or panics
func MustKeyFromString(s string) Key {
	k, err := KeyFromString(s)
	if err != nil {
		panic(err.Error())
	}
	return k
}

// HashOf computes the content key of a byte buffer
func HashOf(data []byte) Key {
	h := blake2b.New512()
	_, _ = h.Write(data)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports an unset key
func (k Key) IsZero() bool {
	return k == Key{}
}
