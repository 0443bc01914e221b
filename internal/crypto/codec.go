package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Codec seals plaintext into SealedBlob bytes and opens them again.
type Codec struct {
	rand io.Reader
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithRandom sets the nonce source. Tests use it for known-answer vectors.
func WithRandom(r io.Reader) CodecOption {
	return func(c *Codec) {
		c.rand = r
	}
}

// NewCodec creates a codec backed by crypto/rand.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateNonce returns NonceSize fresh random bytes.
func (c *Codec) GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts plaintext under kc and packs the result. A nil nonce is
// replaced with a fresh one.
func (c *Codec) Seal(kc KeyCipher, nonce, plaintext []byte) ([]byte, error) {
	return c.seal(nonce, func(n []byte) ([]byte, error) {
		return kc.Encrypt(n, plaintext)
	})
}

// SealWithAAD is Seal with additional data bound into the tag. The data is
// not stored in the blob; OpenWithAAD must be given the same bytes.
func (c *Codec) SealWithAAD(kc AADCipher, nonce, plaintext, aad []byte) ([]byte, error) {
	return c.seal(nonce, func(n []byte) ([]byte, error) {
		return kc.EncryptWithAAD(n, plaintext, aad)
	})
}

func (c *Codec) seal(nonce []byte, encrypt func(nonce []byte) ([]byte, error)) ([]byte, error) {
	if nonce == nil {
		var err error
		if nonce, err = c.GenerateNonce(); err != nil {
			return nil, err
		}
	}
	if !ValidNonceSize(len(nonce)) {
		return nil, formatError("seal", fmt.Sprintf("nonce length %d", len(nonce)))
	}

	ciphertext, err := encrypt(nonce)
	if err != nil {
		return nil, err
	}

	return Pack(nonce, ciphertext)
}

// Open unpacks blob and decrypts it under kc. Format errors are reported
// before kc is used.
func (c *Codec) Open(kc KeyCipher, blob []byte) ([]byte, error) {
	sb, err := Unpack(blob)
	if err != nil {
		return nil, err
	}
	return c.OpenSealed(kc, sb)
}

// OpenWithAAD reverses SealWithAAD.
func (c *Codec) OpenWithAAD(kc AADCipher, blob, aad []byte) ([]byte, error) {
	sb, err := Unpack(blob)
	if err != nil {
		return nil, err
	}
	return kc.DecryptWithAAD(sb.Nonce, sb.Ciphertext, aad)
}

// OpenSealed decrypts an already unpacked blob.
func (c *Codec) OpenSealed(kc KeyCipher, sb *SealedBlob) ([]byte, error) {
	return kc.Decrypt(sb.Nonce, sb.Ciphertext)
}
