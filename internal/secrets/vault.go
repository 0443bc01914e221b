package secrets

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/time/rate"

	"github.com/TheMichaelB/walletseal/internal/encryption"
	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/models"
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrMnemonicBits    = errors.New("entropy must be 128 to 256 bits in steps of 32")
	ErrTooManyAttempts = errors.New("too many password attempts, try again later")
	ErrPasswordEmpty   = errors.New("password is required")
)

// Default password attempt budget: a burst of 5, then one every 2 seconds.
const (
	DefaultAttemptBurst = 5
	DefaultAttemptEvery = 2 * time.Second
)

// Vault seals BIP-39 mnemonics through the encryption manager.
type Vault struct {
	manager *encryption.Manager
	logger  *events.Logger

	mu       sync.Mutex
	attempts *rate.Limiter
	now      func() time.Time

	// Clears serialized secrets once they are sealed or parsed
	wipe func([]byte)
}

// VaultOption configures a Vault.
type VaultOption func(*Vault)

// WithAttemptLimit throttles password-mode opens to one every interval
// after an initial burst.
func WithAttemptLimit(every time.Duration, burst int) VaultOption {
	return func(v *Vault) {
		v.attempts = rate.NewLimiter(rate.Every(every), burst)
	}
}

// WithVaultClock sets the time source used for throttling.
func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *Vault) {
		v.now = now
	}
}

// WithVaultLogger sets the logger.
func WithVaultLogger(l *events.Logger) VaultOption {
	return func(v *Vault) {
		v.logger = l
	}
}

// NewVault creates a vault on top of m.
func NewVault(m *encryption.Manager, opts ...VaultOption) *Vault {
	v := &Vault{
		manager:  m,
		logger:   events.NewNopLogger(),
		attempts: rate.NewLimiter(rate.Every(DefaultAttemptEvery), DefaultAttemptBurst),
		now:      time.Now,
		wipe:     memguard.WipeBytes,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.WithField("component", "seed_vault")
	return v
}

// GenerateMnemonic returns a fresh mnemonic with the given entropy size.
func GenerateMnemonic(bits int) (string, error) {
	if bits < 128 || bits > 256 || bits%32 != 0 {
		return "", fmt.Errorf("%w: %d", ErrMnemonicBits, bits)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases the words and collapses whitespace.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// SealMnemonic validates mnemonic and seals it as wallet secrets.
func (v *Vault) SealMnemonic(mode models.EncryptionType, password []byte, mnemonic string) ([]byte, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if mode == models.EncryptionTypePassword && len(password) == 0 {
		return nil, ErrPasswordEmpty
	}

	payload, err := models.WalletSecrets{Mnemonic: mnemonic}.Marshal()
	if err != nil {
		return nil, err
	}
	defer v.wipe(payload)

	blob, err := v.manager.Encrypt(mode, password, payload)
	if err != nil {
		return nil, err
	}

	v.logger.WithFields(map[string]interface{}{
		"mode":  mode.String(),
		"words": len(strings.Fields(mnemonic)),
	}).Info("Mnemonic sealed")
	return blob, nil
}

// OpenMnemonic reverses SealMnemonic. Password-mode attempts are throttled
// and fail with ErrTooManyAttempts once the budget is spent.
func (v *Vault) OpenMnemonic(mode models.EncryptionType, password, blob []byte) (string, error) {
	if mode == models.EncryptionTypePassword && !v.allowAttempt() {
		v.logger.Warn("Password attempt throttled")
		return "", ErrTooManyAttempts
	}

	payload, err := v.manager.Decrypt(mode, password, blob)
	if err != nil {
		return "", err
	}
	defer v.wipe(payload)

	secrets, err := models.ParseWalletSecrets(payload)
	if err != nil {
		return "", err
	}
	if !bip39.IsMnemonicValid(secrets.Mnemonic) {
		return "", ErrInvalidMnemonic
	}
	return secrets.Mnemonic, nil
}

// PruneDeviceKey resets the device key when none of the remaining wallets
// is sealed in device mode. It reports whether the key was reset.
func (v *Vault) PruneDeviceKey(remaining []models.EncryptionType) bool {
	for _, mode := range remaining {
		if mode == models.EncryptionTypeDevice {
			return false
		}
	}
	v.logger.WithField("remaining_wallets", len(remaining)).Info("No wallet uses the device key, resetting")
	v.manager.ResetDeviceKey()
	return true
}

func (v *Vault) allowAttempt() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attempts.AllowN(v.now(), 1)
}
