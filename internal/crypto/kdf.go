package crypto

import (
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// Key sizes
	KeySize   = 16 // AES-128
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// PBKDF2-HMAC-SHA1 parameters shared with existing wallets
	DefaultIterations = 65536
)

// Errors
var (
	ErrInvalidParams = errors.New("invalid key derivation parameters")
	ErrInvalidKey    = errors.New("invalid key size")
)

// KDFParams configures password key derivation.
type KDFParams struct {
	Iterations int  `mapstructure:"iterations" yaml:"iterations" validate:"min=1"`
	KeySize    int  `mapstructure:"key_size" yaml:"key_size" validate:"oneof=16 24 32"`
	Normalize  bool `mapstructure:"normalize" yaml:"normalize"`
}

// DefaultKDFParams returns the parameters every existing blob was sealed with.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Iterations: DefaultIterations,
		KeySize:    KeySize,
	}
}

// Validate checks the parameters.
func (p KDFParams) Validate() error {
	if p.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidParams, p.Iterations)
	}
	if err := ValidateKeySize(p.KeySize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// KeyDeriver turns a password and salt into an AES key.
type KeyDeriver struct {
	params KDFParams
}

// NewKeyDeriver creates a key deriver.
func NewKeyDeriver(params KDFParams) (*KeyDeriver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &KeyDeriver{params: params}, nil
}

// Params returns the derivation parameters.
func (d *KeyDeriver) Params() KDFParams {
	return d.params
}

// DeriveKey derives a key from password and salt with PBKDF2-HMAC-SHA1.
// The caller owns the returned buffer and must Destroy it.
func (d *KeyDeriver) DeriveKey(password, salt []byte) (*memguard.LockedBuffer, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrInvalidParams)
	}

	if d.params.Normalize {
		password = norm.NFKC.Bytes(password)
	}

	key := pbkdf2.Key(password, salt, d.params.Iterations, d.params.KeySize, sha1.New)

	// Moves key into locked memory and wipes the slice
	return memguard.NewBufferFromBytes(key), nil
}

// ValidateKeySize checks that n is a valid AES key length.
func ValidateKeySize(n int) error {
	switch n {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: expected 16, 24 or 32, got %d", ErrInvalidKey, n)
	}
}
