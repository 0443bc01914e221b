package encryption

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/walletseal/internal/crypto"
	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/metrics"
	"github.com/TheMichaelB/walletseal/internal/models"
)

// DeviceKeyProvider supplies the device key. LoadKey returns (nil, nil)
// when no key was ever created.
type DeviceKeyProvider interface {
	GetOrCreateKey() (crypto.KeyCipher, error)
	LoadKey() (crypto.KeyCipher, error)
	Delete()
}

// Operation names used in logs and metrics.
const (
	opEncrypt = "encrypt"
	opDecrypt = "decrypt"
)

// ErrUnknownMode is returned for an unsupported encryption type.
var ErrUnknownMode = errors.New("unknown encryption type")

// Manager seals wallet secrets with a password or the device key.
type Manager struct {
	deriver *crypto.KeyDeriver
	codec   *crypto.Codec
	device  DeviceKeyProvider
	logger  *events.Logger
	metrics *metrics.Registry
}

// Option configures a Manager.
type Option func(*Manager)

// WithCodec replaces the default codec.
func WithCodec(c *crypto.Codec) Option {
	return func(m *Manager) {
		m.codec = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *events.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics records every operation in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// NewManager creates a manager. device may be nil when only password mode
// is used.
func NewManager(deriver *crypto.KeyDeriver, device DeviceKeyProvider, opts ...Option) *Manager {
	m := &Manager{
		deriver: deriver,
		codec:   crypto.NewCodec(),
		device:  device,
		logger:  events.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "encryption_manager")
	return m
}

// EncryptWithPassword seals plaintext under a key derived from password.
// The fresh nonce doubles as the derivation salt.
func (m *Manager) EncryptWithPassword(password, plaintext []byte) (blob []byte, err error) {
	defer m.observe(opEncrypt, models.EncryptionTypePassword, time.Now(), &err)

	nonce, err := m.codec.GenerateNonce()
	if err != nil {
		return nil, err
	}

	kc, err := m.passwordCipher(password, nonce)
	if err != nil {
		return nil, err
	}

	return m.codec.Seal(kc, nonce, plaintext)
}

// DecryptWithPassword opens a blob sealed by EncryptWithPassword.
func (m *Manager) DecryptWithPassword(password, blob []byte) (plaintext []byte, err error) {
	defer m.observe(opDecrypt, models.EncryptionTypePassword, time.Now(), &err)

	// Framing is checked before the costly derivation
	sb, err := crypto.Unpack(blob)
	if err != nil {
		return nil, err
	}

	kc, err := m.passwordCipher(password, sb.Nonce)
	if err != nil {
		return nil, err
	}

	return m.codec.OpenSealed(kc, sb)
}

// EncryptWithDeviceKey seals plaintext under the device key, creating the
// key on first use.
func (m *Manager) EncryptWithDeviceKey(plaintext []byte) (blob []byte, err error) {
	defer m.observe(opEncrypt, models.EncryptionTypeDevice, time.Now(), &err)

	if m.device == nil {
		return nil, models.NewCryptoError(models.KindKeyStoreUnavailable, opEncrypt, "no device key provider", nil)
	}

	kc, err := m.device.GetOrCreateKey()
	if err != nil {
		return nil, err
	}

	return m.codec.Seal(kc, nil, plaintext)
}

// DecryptWithDeviceKey opens a blob sealed by EncryptWithDeviceKey.
func (m *Manager) DecryptWithDeviceKey(blob []byte) (plaintext []byte, err error) {
	defer m.observe(opDecrypt, models.EncryptionTypeDevice, time.Now(), &err)

	sb, err := crypto.Unpack(blob)
	if err != nil {
		return nil, err
	}

	if m.device == nil {
		return nil, models.NewCryptoError(models.KindNoDeviceKey, opDecrypt, "no device key provider", nil)
	}

	kc, err := m.device.LoadKey()
	if err != nil {
		return nil, err
	}
	if kc == nil {
		return nil, models.NewCryptoError(models.KindNoDeviceKey, opDecrypt, "", nil)
	}

	return m.codec.OpenSealed(kc, sb)
}

// ResetDeviceKey deletes the device key. Blobs sealed under it become
// unrecoverable.
func (m *Manager) ResetDeviceKey() {
	if m.device == nil {
		return
	}
	m.logger.Info("Resetting device key")
	m.device.Delete()
}

// Encrypt dispatches on mode. password is ignored in device mode.
func (m *Manager) Encrypt(mode models.EncryptionType, password, plaintext []byte) ([]byte, error) {
	switch mode {
	case models.EncryptionTypePassword:
		return m.EncryptWithPassword(password, plaintext)
	case models.EncryptionTypeDevice:
		return m.EncryptWithDeviceKey(plaintext)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
}

// Decrypt dispatches on mode. password is ignored in device mode.
func (m *Manager) Decrypt(mode models.EncryptionType, password, blob []byte) ([]byte, error) {
	switch mode {
	case models.EncryptionTypePassword:
		return m.DecryptWithPassword(password, blob)
	case models.EncryptionTypeDevice:
		return m.DecryptWithDeviceKey(blob)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
}

func (m *Manager) passwordCipher(password, salt []byte) (*crypto.AESGCM, error) {
	key, err := m.deriver.DeriveKey(password, salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer key.Destroy()

	return crypto.NewAESGCM(key.Bytes())
}

func (m *Manager) observe(op string, mode models.EncryptionType, start time.Time, errp *error) {
	err := *errp
	elapsed := time.Since(start)

	if m.metrics != nil {
		m.metrics.RecordOperation(op, mode.String(), err, elapsed)
	}

	logger := m.logger.WithFields(map[string]interface{}{
		"op":          op,
		"mode":        mode.String(),
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		logger.WithError(err).WithField("kind", models.KindOf(err).Code()).Debug("Operation failed")
		return
	}
	logger.Debug("Operation completed")
}
