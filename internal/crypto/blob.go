package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/TheMichaelB/walletseal/internal/models"
)

const (
	// LengthPrefixSize is the size of the big-endian nonce length header.
	LengthPrefixSize = 4

	// Accepted nonce lengths. Only 12 is ever written; 13-15 are read for
	// compatibility with blobs from older releases.
	MinNonceSize = 12
	MaxNonceSize = 15
)

// SealedBlob is the persisted form of encrypted data:
//
//	[u32 BE nonce length][nonce][ciphertext || tag]
type SealedBlob struct {
	Nonce      []byte
	Ciphertext []byte // includes the trailing tag
}

// ValidNonceSize reports whether n is an accepted nonce length.
func ValidNonceSize(n int) bool {
	return n >= MinNonceSize && n <= MaxNonceSize
}

// Pack serializes nonce and ciphertext into a blob.
func Pack(nonce, ciphertext []byte) ([]byte, error) {
	if !ValidNonceSize(len(nonce)) {
		return nil, formatError("pack", fmt.Sprintf("nonce length %d", len(nonce)))
	}
	if len(ciphertext) < TagSize {
		return nil, formatError("pack", fmt.Sprintf("ciphertext length %d shorter than tag", len(ciphertext)))
	}

	out := make([]byte, LengthPrefixSize+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint32(out[:LengthPrefixSize], uint32(len(nonce)))
	copy(out[LengthPrefixSize:], nonce)
	copy(out[LengthPrefixSize+len(nonce):], ciphertext)

	return out, nil
}

// Unpack parses a blob. The returned slices do not alias data.
func Unpack(data []byte) (*SealedBlob, error) {
	if len(data) < LengthPrefixSize {
		return nil, formatError("unpack", fmt.Sprintf("blob length %d shorter than header", len(data)))
	}

	n := binary.BigEndian.Uint32(data[:LengthPrefixSize])
	if n < MinNonceSize || n > MaxNonceSize {
		return nil, formatError("unpack", fmt.Sprintf("nonce length %d out of range", n))
	}

	body := data[LengthPrefixSize:]
	if len(body) < int(n)+TagSize {
		return nil, formatError("unpack", fmt.Sprintf("blob length %d truncated", len(data)))
	}

	return &SealedBlob{
		Nonce:      append([]byte(nil), body[:n]...),
		Ciphertext: append([]byte(nil), body[n:]...),
	}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *SealedBlob) MarshalBinary() ([]byte, error) {
	return Pack(b.Nonce, b.Ciphertext)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *SealedBlob) UnmarshalBinary(data []byte) error {
	sb, err := Unpack(data)
	if err != nil {
		return err
	}
	*b = *sb
	return nil
}

// Len returns the serialized size.
func (b *SealedBlob) Len() int {
	return LengthPrefixSize + len(b.Nonce) + len(b.Ciphertext)
}

// PlaintextLen returns the size of the plaintext the blob carries.
func (b *SealedBlob) PlaintextLen() int {
	return len(b.Ciphertext) - TagSize
}

func formatError(op, reason string) error {
	return models.NewCryptoError(models.KindFormat, op, reason, nil)
}
