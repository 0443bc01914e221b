package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/TheMichaelB/walletseal/internal/crypto"
)

// Keystore backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Device key types.
const (
	KeyTypeAES        = "aes"
	KeyTypePassphrase = "passphrase"
)

var validate = validator.New()

// Config holds all application configuration.
type Config struct {
	// Device key storage
	Keystore KeystoreConfig `mapstructure:"keystore" yaml:"keystore"`

	// Password key derivation
	KDF crypto.KDFParams `mapstructure:"kdf" yaml:"kdf"`

	// Device user authentication
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Logging
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Metrics output
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// KeystoreConfig selects where the device key lives.
type KeystoreConfig struct {
	Backend          string        `mapstructure:"backend" yaml:"backend" validate:"oneof=memory file sqlite"`
	Path             string        `mapstructure:"path" yaml:"path"`                       // Directory (file) or database (sqlite)
	MasterKeyFile    string        `mapstructure:"master_key_file" yaml:"master_key_file"` // Wraps stored key material
	Alias            string        `mapstructure:"alias" yaml:"alias" validate:"required,max=128"`
	KeyType          string        `mapstructure:"key_type" yaml:"key_type" validate:"oneof=aes passphrase"`
	UserAuthRequired bool          `mapstructure:"user_auth_required" yaml:"user_auth_required"`
	AuthValidity     time.Duration `mapstructure:"auth_validity" yaml:"auth_validity" validate:"gte=0"`
}

// AuthConfig for the TOTP authenticator that stands in for a biometric prompt.
type AuthConfig struct {
	TOTPSecret string `mapstructure:"totp_secret" yaml:"totp_secret,omitempty"`
	Issuer     string `mapstructure:"issuer" yaml:"issuer"`
	Account    string `mapstructure:"account" yaml:"account"`
	Period     uint   `mapstructure:"period" yaml:"period" validate:"min=1"`
	Skew       uint   `mapstructure:"skew" yaml:"skew" validate:"max=3"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	File   string `mapstructure:"file" yaml:"file"` // Log file path (empty = stderr)
	Color  bool   `mapstructure:"color" yaml:"color"`
}

// MetricsConfig for the prometheus textfile dump.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"` // Empty disables metrics output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".walletseal"

	return &Config{
		Keystore: KeystoreConfig{
			Backend:          BackendFile,
			Path:             filepath.Join(dataDir, "keys"),
			MasterKeyFile:    filepath.Join(dataDir, "master.key"),
			Alias:            "ergowalletkey",
			KeyType:          KeyTypeAES,
			UserAuthRequired: true,
			AuthValidity:     10 * time.Second,
		},
		KDF: crypto.DefaultKDFParams(),
		Auth: AuthConfig{
			Issuer:  "walletseal",
			Account: "device",
			Period:  30,
			Skew:    1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Keystore.Backend != BackendMemory && c.Keystore.Path == "" {
		return fmt.Errorf("keystore.path is required for backend %s", c.Keystore.Backend)
	}

	if c.Keystore.Backend != BackendMemory && c.Keystore.MasterKeyFile == "" {
		return errors.New("keystore.master_key_file is required for persistent backends")
	}

	if c.Keystore.UserAuthRequired && c.Keystore.AuthValidity <= 0 {
		return errors.New("keystore.auth_validity must be positive when user auth is required")
	}

	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	switch c.Keystore.Backend {
	case BackendFile:
		dirs = append(dirs, c.Keystore.Path)
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Keystore.Path))
	}

	if c.Keystore.Backend != BackendMemory && c.Keystore.MasterKeyFile != "" {
		dirs = append(dirs, filepath.Dir(c.Keystore.MasterKeyFile))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	if c.Metrics.Textfile != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	// Report the first failure
	e := validationErrs[0]
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("invalid %s: %v (expected one of %s)", field, e.Value(), e.Param())
	case "min", "gte":
		return fmt.Errorf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Errorf("%s must not exceed %s", field, e.Param())
	default:
		return fmt.Errorf("%s failed %s validation", field, e.Tag())
	}
}
