package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/TheMichaelB/walletseal/internal/storage"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "WALLETSEAL",
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	// Start with defaults
	setDefaults(v, DefaultConfig())

	// Environment overrides, e.g. WALLETSEAL_LOG_LEVEL
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		v.SetConfigName("walletseal")
		for _, dir := range l.defaultDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultDirs returns directories searched for walletseal.{yaml,json}.
func (l *Loader) defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "walletseal"),
			filepath.Join(homeDir, ".walletseal"),
		)
	}

	return dirs
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("keystore.backend", cfg.Keystore.Backend)
	v.SetDefault("keystore.path", cfg.Keystore.Path)
	v.SetDefault("keystore.master_key_file", cfg.Keystore.MasterKeyFile)
	v.SetDefault("keystore.alias", cfg.Keystore.Alias)
	v.SetDefault("keystore.key_type", cfg.Keystore.KeyType)
	v.SetDefault("keystore.user_auth_required", cfg.Keystore.UserAuthRequired)
	v.SetDefault("keystore.auth_validity", cfg.Keystore.AuthValidity)

	v.SetDefault("kdf.iterations", cfg.KDF.Iterations)
	v.SetDefault("kdf.key_size", cfg.KDF.KeySize)
	v.SetDefault("kdf.normalize", cfg.KDF.Normalize)

	v.SetDefault("auth.totp_secret", cfg.Auth.TOTPSecret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.account", cfg.Auth.Account)
	v.SetDefault("auth.period", cfg.Auth.Period)
	v.SetDefault("auth.skew", cfg.Auth.Skew)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)

	v.SetDefault("metrics.textfile", cfg.Metrics.Textfile)
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	example := "# walletseal configuration file\n" +
		"# Environment variables override these settings using the WALLETSEAL_ prefix\n" +
		"# For example: WALLETSEAL_LOG_LEVEL=debug, WALLETSEAL_KEYSTORE_BACKEND=sqlite\n\n" +
		string(data)

	if err := storage.WriteFile(path, []byte(example), 0600, storage.ConflictError); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
