package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/TheMichaelB/walletseal/internal/models"
)

// AESGCM is an in-memory AES key used in GCM mode without padding.
type AESGCM struct {
	block cipher.Block
}

// NewAESGCM creates a cipher from raw key bytes. The key schedule is
// expanded immediately, so the caller may wipe key afterwards.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if err := ValidateKeySize(len(key)); err != nil {
		return nil, err
	}

	// Create cipher
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	return &AESGCM{block: block}, nil
}

// Encrypt seals plaintext and appends the tag.
func (a *AESGCM) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	return a.EncryptWithAAD(nonce, plaintext, nil)
}

// Decrypt opens ciphertext||tag.
func (a *AESGCM) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	return a.DecryptWithAAD(nonce, ciphertext, nil)
}

// EncryptWithAAD seals plaintext and authenticates aad alongside it.
func (a *AESGCM) EncryptWithAAD(nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := a.aead(len(nonce))
	if err != nil {
		return nil, err
	}

	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// DecryptWithAAD opens ciphertext||tag, failing unless aad matches the
// data given at encryption.
func (a *AESGCM) DecryptWithAAD(nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := a.aead(len(nonce))
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < TagSize {
		return nil, formatError("decrypt", fmt.Sprintf("ciphertext length %d shorter than tag", len(ciphertext)))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, models.NewCryptoError(models.KindAuthTagMismatch, "decrypt", "", err)
	}

	return plaintext, nil
}

func (a *AESGCM) aead(nonceSize int) (cipher.AEAD, error) {
	if !ValidNonceSize(nonceSize) {
		return nil, formatError("gcm", fmt.Sprintf("nonce length %d", nonceSize))
	}

	var (
		aead cipher.AEAD
		err  error
	)
	if nonceSize == NonceSize {
		aead, err = cipher.NewGCM(a.block)
	} else {
		aead, err = cipher.NewGCMWithNonceSize(a.block, nonceSize)
	}
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return aead, nil
}
