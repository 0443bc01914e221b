package keystore

import (
	"github.com/TheMichaelB/walletseal/internal/crypto"
	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/metrics"
	"github.com/TheMichaelB/walletseal/internal/models"
)

// Handle is a device key usable as a crypto.KeyCipher. Each use checks the
// authentication window and opens the material only for that call. A handle
// does not outlive a Provider.Delete.
type Handle struct {
	entry      *Entry
	provider   *Provider
	generation uint64
	gate       *AuthGate
	deriver    *crypto.KeyDeriver
	logger     *events.Logger
	metrics    *metrics.Registry
}

// Alias returns the key alias.
func (h *Handle) Alias() string {
	return h.entry.Alias
}

// Entry returns the stored entry metadata.
func (h *Handle) Entry() *Entry {
	return h.entry
}

// Encrypt seals plaintext under the device key.
func (h *Handle) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	kc, err := h.cipher("encrypt", PurposeEncrypt, nonce)
	if err != nil {
		return nil, err
	}
	return kc.Encrypt(nonce, plaintext)
}

// Decrypt opens ciphertext under the device key.
func (h *Handle) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	kc, err := h.cipher("decrypt", PurposeDecrypt, nonce)
	if err != nil {
		return nil, err
	}
	return kc.Decrypt(nonce, ciphertext)
}

func (h *Handle) cipher(op string, purpose Purpose, nonce []byte) (*crypto.AESGCM, error) {
	spec := h.entry.Spec

	if h.provider.generation.Load() != h.generation {
		h.logger.WithField("key_id", h.entry.ID.String()).Warn("Device key handle used after reset")
		return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, op, "device key was reset", nil)
	}

	if !spec.Allows(purpose) {
		return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, op, "key not usable for "+string(purpose), nil)
	}

	if spec.UserAuthRequired && !h.gate.Authorized(spec.AuthValidity) {
		h.logger.WithFields(map[string]interface{}{
			"alias":    h.entry.Alias,
			"validity": spec.AuthValidity.String(),
		}).Warn("Device key used outside authentication window")
		if h.metrics != nil {
			h.metrics.DeviceAuthDenialsTotal.Inc()
		}
		return nil, models.NewCryptoError(models.KindDeviceAuthRequired, op, "", nil)
	}

	material, err := h.entry.open()
	if err != nil {
		return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, op, "", err)
	}
	defer material.Destroy()

	if spec.Algorithm != AlgorithmPassphrase {
		kc, err := crypto.NewAESGCM(material.Bytes())
		if err != nil {
			return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, op, "", err)
		}
		return kc, nil
	}

	// Passphrase entries derive a fresh key per nonce
	if len(nonce) == 0 {
		return nil, models.NewCryptoError(models.KindFormat, op, "empty nonce", nil)
	}
	key, err := h.deriver.DeriveKey(material.Bytes(), nonce)
	if err != nil {
		return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, op, "", err)
	}
	defer key.Destroy()

	kc, err := crypto.NewAESGCM(key.Bytes())
	if err != nil {
		return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, op, "", err)
	}
	return kc, nil
}
