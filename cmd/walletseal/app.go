package main

import (
	"errors"
	"fmt"

	"github.com/TheMichaelB/walletseal/internal/config"
	"github.com/TheMichaelB/walletseal/internal/crypto"
	"github.com/TheMichaelB/walletseal/internal/encryption"
	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/keystore"
	"github.com/TheMichaelB/walletseal/internal/metrics"
	"github.com/TheMichaelB/walletseal/internal/secrets"
)

// App wires the keystore, encryption manager and vault from config.
type App struct {
	Config   *config.Config
	Store    keystore.Store
	Provider *keystore.Provider
	Gate     *keystore.AuthGate
	Manager  *encryption.Manager
	Vault    *secrets.Vault
	Metrics  *metrics.Registry

	logger *events.Logger
}

// NewApp builds the application graph.
func NewApp(cfg *config.Config, logger *events.Logger) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := openStore(&cfg.Keystore, logger)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	var auth keystore.Authenticator
	if cfg.Auth.TOTPSecret != "" {
		totpAuth, err := keystore.NewTOTPAuthenticator(cfg.Auth.TOTPSecret, cfg.Auth.Period, cfg.Auth.Skew)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
		auth = totpAuth
	}
	gate := keystore.NewAuthGate(auth)

	reg := metrics.NewRegistry()

	spec := keystore.DefaultKeySpec()
	if cfg.Keystore.KeyType == config.KeyTypePassphrase {
		spec = keystore.PassphraseKeySpec()
	}
	spec.UserAuthRequired = cfg.Keystore.UserAuthRequired
	spec.AuthValidity = cfg.Keystore.AuthValidity

	provider, err := keystore.NewProvider(keystore.ProviderConfig{
		Store:   store,
		Alias:   cfg.Keystore.Alias,
		Spec:    spec,
		Gate:    gate,
		KDF:     cfg.KDF,
		Logger:  logger,
		Metrics: reg,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	deriver, err := crypto.NewKeyDeriver(cfg.KDF)
	if err != nil {
		store.Close()
		return nil, err
	}

	manager := encryption.NewManager(deriver, provider,
		encryption.WithLogger(logger),
		encryption.WithMetrics(reg))

	return &App{
		Config:   cfg,
		Store:    store,
		Provider: provider,
		Gate:     gate,
		Manager:  manager,
		Vault:    secrets.NewVault(manager, secrets.WithVaultLogger(logger)),
		Metrics:  reg,
		logger:   logger,
	}, nil
}

func openStore(cfg *config.KeystoreConfig, logger *events.Logger) (keystore.Store, error) {
	if cfg.Backend == config.BackendMemory {
		logger.Warn("Memory keystore selected, the device key will not outlive this process")
		return keystore.NewMemoryStore(logger), nil
	}

	master, err := keystore.LoadOrCreateMasterKey(cfg.MasterKeyFile)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendFile:
		return keystore.NewFileStore(cfg.Path, master, logger)
	case config.BackendSQLite:
		return keystore.NewSQLiteStore(cfg.Path, master, logger)
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", cfg.Backend)
	}
}

// Authenticate opens the device key window with a TOTP code. It is a no-op
// when the key does not require user authentication.
func (a *App) Authenticate(code string) error {
	if !a.Config.Keystore.UserAuthRequired {
		return nil
	}
	if a.Config.Auth.TOTPSecret == "" {
		return errors.New("device key requires authentication but no TOTP secret is configured; run 'walletseal enroll'")
	}
	if code == "" {
		return errors.New("device key requires authentication; pass --otp")
	}
	return a.Gate.Authenticate(code)
}

// Close flushes metrics and releases the keystore.
func (a *App) Close() error {
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := a.Metrics.WriteTextfile(path); err != nil {
			a.logger.WithError(err).Warn("Failed to write metrics")
		}
	}
	return a.Store.Close()
}
