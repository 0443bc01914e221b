package keystore_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/walletseal/internal/crypto"
	"github.com/TheMichaelB/walletseal/internal/keystore"
	"github.com/TheMichaelB/walletseal/internal/metrics"
	"github.com/TheMichaelB/walletseal/internal/models"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (s failingStore) Generate(string, keystore.KeySpec) (*keystore.Entry, error) { return nil, s.err }
func (s failingStore) Load(string) (*keystore.Entry, error)                       { return nil, s.err }
func (s failingStore) Delete(string) error                                        { return s.err }
func (s failingStore) Close() error                                               { return nil }

// racingStore simulates another process generating the key between
// this process's Load and Generate.
type racingStore struct {
	keystore.Store
	winner *keystore.Entry
}

func (s *racingStore) Generate(alias string, spec keystore.KeySpec) (*keystore.Entry, error) {
	if s.winner == nil {
		entry, err := s.Store.Generate(alias, spec)
		if err != nil {
			return nil, err
		}
		s.winner = entry
	}
	return nil, keystore.ErrEntryExists
}

func newProvider(t *testing.T, cfg keystore.ProviderConfig) *keystore.Provider {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = keystore.NewMemoryStore(nil)
	}
	p, err := keystore.NewProvider(cfg)
	require.NoError(t, err)
	return p
}

func TestProviderLazyCreation(t *testing.T) {
	reg := metrics.NewRegistry()
	p := newProvider(t, keystore.ProviderConfig{Metrics: reg})
	assert.Equal(t, keystore.DefaultAlias, p.Alias())

	kc, err := p.LoadKey()
	require.NoError(t, err)
	assert.Nil(t, kc)

	first, err := p.GetOrCreateKey()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := p.GetOrCreateKey()
	require.NoError(t, err)

	loaded, err := p.LoadKey()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	id := first.(*keystore.Handle).Entry().ID
	assert.Equal(t, id, second.(*keystore.Handle).Entry().ID)
	assert.Equal(t, id, loaded.(*keystore.Handle).Entry().ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.DeviceKeyGenerationsTotal))
}

func TestProviderConcurrentCreation(t *testing.T) {
	p := newProvider(t, keystore.ProviderConfig{})

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kc, err := p.GetOrCreateKey()
			if assert.NoError(t, err) {
				ids[i] = kc.(*keystore.Handle).Entry().ID.String()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestProviderLostCreationRace(t *testing.T) {
	store := &racingStore{Store: keystore.NewMemoryStore(nil)}
	p := newProvider(t, keystore.ProviderConfig{Store: store})

	kc, err := p.GetOrCreateKey()
	require.NoError(t, err)
	require.NotNil(t, store.winner)
	assert.Equal(t, store.winner.ID, kc.(*keystore.Handle).Entry().ID)
}

func TestProviderAuthWindow(t *testing.T) {
	clock := newFakeClock()
	gate := keystore.NewAuthGate(nil, keystore.WithClock(clock.Now))
	reg := metrics.NewRegistry()
	p := newProvider(t, keystore.ProviderConfig{Gate: gate, Metrics: reg})
	codec := crypto.NewCodec()

	kc, err := p.GetOrCreateKey()
	require.NoError(t, err)

	// No prompt yet
	_, err = codec.Seal(kc, nil, []byte("secret"))
	assert.ErrorIs(t, err, models.ErrDeviceAuthRequired)

	gate.Grant()
	blob, err := codec.Seal(kc, nil, []byte("secret"))
	require.NoError(t, err)

	clock.Advance(9 * time.Second)
	plaintext, err := codec.Open(kc, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plaintext)

	clock.Advance(time.Second)
	_, err = codec.Open(kc, blob)
	assert.ErrorIs(t, err, models.ErrDeviceAuthRequired)
	assert.Equal(t, models.KindDeviceAuthRequired, models.KindOf(err))

	// A new prompt reopens the window
	gate.Grant()
	_, err = codec.Open(kc, blob)
	assert.NoError(t, err)

	gate.Revoke()
	_, err = codec.Open(kc, blob)
	assert.ErrorIs(t, err, models.ErrDeviceAuthRequired)

	assert.Equal(t, 3.0, testutil.ToFloat64(reg.DeviceAuthDenialsTotal))
}

func TestProviderPassphraseKey(t *testing.T) {
	p := newProvider(t, keystore.ProviderConfig{
		Spec: func() keystore.KeySpec {
			spec := keystore.PassphraseKeySpec()
			spec.UserAuthRequired = false
			return spec
		}(),
		KDF: crypto.KDFParams{Iterations: 16, KeySize: crypto.KeySize},
	})
	codec := crypto.NewCodec()

	kc, err := p.GetOrCreateKey()
	require.NoError(t, err)

	blob, err := codec.Seal(kc, nil, []byte("ios wallet"))
	require.NoError(t, err)

	plaintext, err := codec.Open(kc, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("ios wallet"), plaintext)

	blob[len(blob)-1] ^= 0x80
	_, err = codec.Open(kc, blob)
	assert.ErrorIs(t, err, models.ErrAuthTagMismatch)
}

func TestProviderStoreFailures(t *testing.T) {
	cause := errors.New("keystore daemon not running")
	p := newProvider(t, keystore.ProviderConfig{Store: failingStore{err: cause}})

	_, err := p.LoadKey()
	assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)
	assert.ErrorIs(t, err, cause)

	_, err = p.GetOrCreateKey()
	assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)
}

func TestProviderGenerateFailure(t *testing.T) {
	store := &generateFails{Store: keystore.NewMemoryStore(nil)}
	p := newProvider(t, keystore.ProviderConfig{Store: store})

	_, err := p.GetOrCreateKey()
	assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)
}

type generateFails struct {
	keystore.Store
}

func (generateFails) Generate(string, keystore.KeySpec) (*keystore.Entry, error) {
	return nil, errors.New("secure element full")
}

func TestProviderCorruptEntry(t *testing.T) {
	p := newProvider(t, keystore.ProviderConfig{Store: failingStore{err: keystore.ErrEntryCorrupt}})

	_, err := p.LoadKey()
	assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)
	assert.ErrorIs(t, err, keystore.ErrEntryCorrupt)
}

func TestProviderDelete(t *testing.T) {
	reg := metrics.NewRegistry()
	p := newProvider(t, keystore.ProviderConfig{Metrics: reg})

	_, err := p.GetOrCreateKey()
	require.NoError(t, err)

	p.Delete()
	kc, err := p.LoadKey()
	require.NoError(t, err)
	assert.Nil(t, kc)

	// Deleting an absent key is harmless
	p.Delete()
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.DeviceKeyResetsTotal))

	// A fresh key is generated on next use
	_, err = p.GetOrCreateKey()
	assert.NoError(t, err)
}

func TestProviderDeleteInvalidatesHandles(t *testing.T) {
	p := newProvider(t, keystore.ProviderConfig{Spec: noAuthSpec()})

	stale, err := p.GetOrCreateKey()
	require.NoError(t, err)
	blob, err := crypto.NewCodec().Seal(stale, nil, []byte("before reset"))
	require.NoError(t, err)

	p.Delete()

	_, err = crypto.NewCodec().Seal(stale, nil, []byte("after reset"))
	assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)
	_, err = crypto.NewCodec().Open(stale, blob)
	assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)

	fresh, err := p.GetOrCreateKey()
	require.NoError(t, err)
	_, err = crypto.NewCodec().Seal(fresh, nil, []byte("new key"))
	assert.NoError(t, err)

	t.Run("failed delete still invalidates", func(t *testing.T) {
		store := &flakyDeleteStore{Store: keystore.NewMemoryStore(nil)}
		p := newProvider(t, keystore.ProviderConfig{Store: store, Spec: noAuthSpec()})

		kc, err := p.GetOrCreateKey()
		require.NoError(t, err)

		store.err = errors.New("read-only filesystem")
		p.Delete()

		_, err = crypto.NewCodec().Seal(kc, nil, []byte("x"))
		assert.ErrorIs(t, err, models.ErrKeyStoreUnavailable)
	})
}

// flakyDeleteStore fails Delete with err when set.
type flakyDeleteStore struct {
	keystore.Store
	err error
}

func (s *flakyDeleteStore) Delete(alias string) error {
	if s.err != nil {
		return s.err
	}
	return s.Store.Delete(alias)
}

func TestProviderDeleteSwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	p := newProvider(t, keystore.ProviderConfig{
		Store:  failingStore{err: errors.New("permission denied")},
		Logger: testLogger(&buf),
	})

	assert.NotPanics(t, p.Delete)
	assert.Contains(t, buf.String(), "Failed to delete device key")
	assert.Contains(t, buf.String(), "permission denied")
}

func TestNewProviderValidation(t *testing.T) {
	_, err := keystore.NewProvider(keystore.ProviderConfig{})
	assert.Error(t, err)

	_, err = keystore.NewProvider(keystore.ProviderConfig{Store: keystore.NewMemoryStore(nil), Alias: "bad alias"})
	assert.ErrorIs(t, err, keystore.ErrInvalidAlias)

	spec := keystore.DefaultKeySpec()
	spec.AuthValidity = 0
	_, err = keystore.NewProvider(keystore.ProviderConfig{Store: keystore.NewMemoryStore(nil), Spec: spec})
	assert.ErrorContains(t, err, "auth validity")
}
