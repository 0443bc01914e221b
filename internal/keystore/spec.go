package keystore

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/TheMichaelB/walletseal/internal/crypto"
)

// DefaultAlias names the device key of every wallet on a device.
const DefaultAlias = "ergowalletkey"

// Key algorithms.
const (
	AlgorithmAES        = "AES"
	AlgorithmPassphrase = "PASSPHRASE"
)

// Purpose is an allowed use of a stored key.
type Purpose string

const (
	PurposeEncrypt Purpose = "encrypt"
	PurposeDecrypt Purpose = "decrypt"
)

var validate = validator.New()

// KeySpec lists the constraints a device key is generated with.
type KeySpec struct {
	Algorithm        string        `json:"algorithm" validate:"oneof=AES PASSPHRASE"`
	BlockMode        string        `json:"block_mode" validate:"eq=GCM"`
	Padding          string        `json:"padding" validate:"eq=NoPadding"`
	Purposes         []Purpose     `json:"purposes" validate:"required,min=1,dive,oneof=encrypt decrypt"`
	UserAuthRequired bool          `json:"user_auth_required"`
	AuthValidity     time.Duration `json:"auth_validity" validate:"gte=0"`
	KeySize          int           `json:"key_size" validate:"oneof=16 24 32"`
	PassphraseLength int           `json:"passphrase_length,omitempty" validate:"gte=0,lte=128"`
}

// DefaultKeySpec returns the spec of a hardware-backed AES device key.
func DefaultKeySpec() KeySpec {
	return KeySpec{
		Algorithm:        AlgorithmAES,
		BlockMode:        "GCM",
		Padding:          "NoPadding",
		Purposes:         []Purpose{PurposeEncrypt, PurposeDecrypt},
		UserAuthRequired: true,
		AuthValidity:     10 * time.Second,
		KeySize:          crypto.KeySize,
	}
}

// PassphraseKeySpec returns the spec of a keychain-held random passphrase.
// Keys are derived from it per nonce, like password mode.
func PassphraseKeySpec() KeySpec {
	spec := DefaultKeySpec()
	spec.Algorithm = AlgorithmPassphrase
	spec.PassphraseLength = crypto.DefaultPassphraseLength
	return spec
}

// Validate checks the spec.
func (s KeySpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid key spec: %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid key spec: %w", err)
	}
	if s.Algorithm == AlgorithmPassphrase && s.PassphraseLength < 16 {
		return fmt.Errorf("invalid key spec: passphrase length %d below 16", s.PassphraseLength)
	}
	if s.UserAuthRequired && s.AuthValidity <= 0 {
		return errors.New("invalid key spec: auth validity must be positive when user auth is required")
	}
	return nil
}

// Allows reports whether the key may be used for p.
func (s KeySpec) Allows(p Purpose) bool {
	for _, allowed := range s.Purposes {
		if allowed == p {
			return true
		}
	}
	return false
}
