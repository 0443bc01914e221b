package keystore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/TheMichaelB/walletseal/internal/crypto"
	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/metrics"
	"github.com/TheMichaelB/walletseal/internal/models"
)

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	Store   Store
	Alias   string  // Defaults to DefaultAlias
	Spec    KeySpec // Defaults to DefaultKeySpec
	Gate    *AuthGate
	KDF     crypto.KDFParams // Used by passphrase keys; defaults to DefaultKDFParams
	Logger  *events.Logger
	Metrics *metrics.Registry
}

// Provider manages the lifecycle of the single device key stored under a
// fixed alias.
type Provider struct {
	store   Store
	alias   string
	spec    KeySpec
	gate    *AuthGate
	deriver *crypto.KeyDeriver
	logger  *events.Logger
	metrics *metrics.Registry

	// Serializes lazy creation within the process
	mu sync.Mutex

	// Bumped by Delete; handles from an earlier generation refuse to work
	generation atomic.Uint64
}

// NewProvider creates a device key provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.Store == nil {
		return nil, errors.New("key store is required")
	}
	if cfg.Alias == "" {
		cfg.Alias = DefaultAlias
	}
	if err := validateAlias(cfg.Alias); err != nil {
		return nil, err
	}
	if cfg.Spec.Algorithm == "" {
		cfg.Spec = DefaultKeySpec()
	}
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	if cfg.Gate == nil {
		cfg.Gate = NewAuthGate(nil)
	}
	if cfg.KDF.Iterations == 0 {
		cfg.KDF = crypto.DefaultKDFParams()
	}
	if cfg.Logger == nil {
		cfg.Logger = events.NewNopLogger()
	}

	deriver, err := crypto.NewKeyDeriver(cfg.KDF)
	if err != nil {
		return nil, err
	}

	return &Provider{
		store:   cfg.Store,
		alias:   cfg.Alias,
		spec:    cfg.Spec,
		gate:    cfg.Gate,
		deriver: deriver,
		logger:  cfg.Logger.WithFields(map[string]interface{}{"component": "device_key_provider", "alias": cfg.Alias}),
		metrics: cfg.Metrics,
	}, nil
}

// Alias returns the key alias.
func (p *Provider) Alias() string {
	return p.alias
}

// Gate returns the authentication gate guarding the key.
func (p *Provider) Gate() *AuthGate {
	return p.gate
}

// GetOrCreateKey returns the device key, generating it on first use.
func (p *Provider) GetOrCreateKey() (crypto.KeyCipher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, err := p.store.Load(p.alias)
	if err == nil {
		return p.handle(entry), nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, p.unavailable("load", err)
	}

	entry, err = p.store.Generate(p.alias, p.spec)
	if errors.Is(err, ErrEntryExists) {
		// Another process created it first
		entry, err = p.store.Load(p.alias)
		if err != nil {
			return nil, p.unavailable("load", err)
		}
		return p.handle(entry), nil
	}
	if err != nil {
		return nil, p.unavailable("generate", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"key_id":    entry.ID.String(),
		"algorithm": entry.Spec.Algorithm,
	}).Info("Generated device key")
	if p.metrics != nil {
		p.metrics.DeviceKeyGenerationsTotal.Inc()
	}

	return p.handle(entry), nil
}

// LoadKey returns the device key, or nil without error if none exists.
func (p *Provider) LoadKey() (crypto.KeyCipher, error) {
	entry, err := p.store.Load(p.alias)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, p.unavailable("load", err)
	}
	return p.handle(entry), nil
}

// Delete removes the device key. Failures are logged, never returned.
// Handles obtained before the call stop working even if removal fails;
// callers must fetch a new one. Handles held by other processes are not
// affected.
func (p *Provider) Delete() {
	p.generation.Add(1)

	if err := p.store.Delete(p.alias); err != nil {
		p.logger.WithError(err).Warn("Failed to delete device key")
		return
	}

	p.logger.Info("Deleted device key")
	if p.metrics != nil {
		p.metrics.DeviceKeyResetsTotal.Inc()
	}
}

func (p *Provider) handle(entry *Entry) *Handle {
	return &Handle{
		entry:      entry,
		provider:   p,
		generation: p.generation.Load(),
		gate:       p.gate,
		deriver:    p.deriver,
		logger:     p.logger,
		metrics:    p.metrics,
	}
}

func (p *Provider) unavailable(op string, err error) error {
	p.logger.WithError(err).WithField("op", op).Error("Key store unavailable")
	return models.NewCryptoError(models.KindKeyStoreUnavailable, op, fmt.Sprintf("alias %s", p.alias), err)
}
