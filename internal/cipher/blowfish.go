// Package cipher provides the block-cipher and checksum primitives the wire
// codec builds on: Blowfish ECB over whole blocks, padded-length arithmetic,
// and the single-byte frame checksum.
package cipher

import (
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// BlockSize is the Blowfish block size in bytes.
const BlockSize = 8

// Blowfish wraps Blowfish ECB encryption/decryption over fixed-size blocks.
type Blowfish struct {
	cipher *blowfish.Cipher
}

// NewBlowfish builds a cipher from a raw key. The key is fed to Blowfish
// verbatim; derivation into a key-sized byte slice is the handshake's job.
func NewBlowfish(key []byte) (*Blowfish, error) {
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new blowfish: %w", err)
	}
	return &Blowfish{cipher: c}, nil
}

// Encrypt encrypts data in place, one block at a time. len(data) must be a
// multiple of BlockSize; that is a programmer error, not a runtime fault.
func (b *Blowfish) Encrypt(data []byte) {
	if len(data)%BlockSize != 0 {
		panic(fmt.Sprintf("cipher: encrypt: len %d is not a multiple of %d", len(data), BlockSize))
	}
	for i := 0; i < len(data); i += BlockSize {
		b.cipher.Encrypt(data[i:i+BlockSize], data[i:i+BlockSize])
	}
}

// Decrypt decrypts data in place, one block at a time. len(data) must be a
// multiple of BlockSize; that is a programmer error, not a runtime fault.
func (b *Blowfish) Decrypt(data []byte) {
	if len(data)%BlockSize != 0 {
		panic(fmt.Sprintf("cipher: decrypt: len %d is not a multiple of %d", len(data), BlockSize))
	}
	for i := 0; i < len(data); i += BlockSize {
		b.cipher.Decrypt(data[i:i+BlockSize], data[i:i+BlockSize])
	}
}

// PaddedLen rounds n up to the next multiple of BlockSize.
func PaddedLen(n int) int {
	return ((n + BlockSize - 1) / BlockSize) * BlockSize
}
