package crypto

// KeyCipher is a symmetric AES-GCM key, either held in memory (password mode)
// or kept inside a key store (device mode).
type KeyCipher interface {
	// Encrypt returns ciphertext with the 16-byte tag appended.
	Encrypt(nonce, plaintext []byte) ([]byte, error)

	// Decrypt verifies the tag and returns the plaintext.
	// It never returns partial plaintext on failure.
	Decrypt(nonce, ciphertext []byte) ([]byte, error)
}

// AADCipher is a KeyCipher that also binds additional authenticated data,
// so ciphertext only opens in the context it was sealed for.
type AADCipher interface {
	KeyCipher

	EncryptWithAAD(nonce, plaintext, aad []byte) ([]byte, error)
	DecryptWithAAD(nonce, ciphertext, aad []byte) ([]byte, error)
}
