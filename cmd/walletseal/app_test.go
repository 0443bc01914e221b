package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/walletseal/internal/config"
	"github.com/TheMichaelB/walletseal/internal/crypto"
	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/keystore"
	"github.com/TheMichaelB/walletseal/internal/models"
	"github.com/TheMichaelB/walletseal/internal/storage"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Keystore.Backend = backend
	cfg.Keystore.MasterKeyFile = filepath.Join(dir, "master.key")
	switch backend {
	case config.BackendSQLite:
		cfg.Keystore.Path = filepath.Join(dir, "keys.db")
	default:
		cfg.Keystore.Path = filepath.Join(dir, "keys")
	}
	cfg.Keystore.UserAuthRequired = false
	cfg.KDF = crypto.KDFParams{Iterations: 8, KeySize: crypto.KeySize}
	cfg.Metrics.Textfile = filepath.Join(dir, "metrics", "walletseal.prom")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewAppBackends(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			a, err := NewApp(cfg, events.NewNopLogger())
			require.NoError(t, err)

			blob, err := a.Manager.Encrypt(models.EncryptionTypeDevice, nil, []byte("secret"))
			require.NoError(t, err)
			plaintext, err := a.Manager.Decrypt(models.EncryptionTypeDevice, nil, blob)
			require.NoError(t, err)
			assert.Equal(t, []byte("secret"), plaintext)

			require.NoError(t, a.Close())
			assert.FileExists(t, cfg.Metrics.Textfile)
		})
	}
}

func TestAppDeviceKeySurvivesRestart(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)

	first, err := NewApp(cfg, events.NewNopLogger())
	require.NoError(t, err)
	blob, err := first.Manager.EncryptWithDeviceKey([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewApp(cfg, events.NewNopLogger())
	require.NoError(t, err)
	defer second.Close()

	plaintext, err := second.Manager.DecryptWithDeviceKey(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), plaintext)
}

func TestAppAuthenticate(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Keystore.UserAuthRequired = true
	cfg.Keystore.AuthValidity = 10 * time.Second

	t.Run("no secret configured", func(t *testing.T) {
		a, err := NewApp(cfg, events.NewNopLogger())
		require.NoError(t, err)
		defer a.Close()

		assert.ErrorContains(t, a.Authenticate("123456"), "walletseal enroll")
	})

	t.Run("totp", func(t *testing.T) {
		cfg.Auth.TOTPSecret = "JBSWY3DPEHPK3PXP"
		a, err := NewApp(cfg, events.NewNopLogger())
		require.NoError(t, err)
		defer a.Close()

		assert.ErrorContains(t, a.Authenticate(""), "--otp")

		_, err = a.Manager.EncryptWithDeviceKey([]byte("x"))
		assert.ErrorIs(t, err, models.ErrDeviceAuthRequired)

		auth, err := keystore.NewTOTPAuthenticator(cfg.Auth.TOTPSecret, cfg.Auth.Period, cfg.Auth.Skew)
		require.NoError(t, err)
		code, err := auth.GenerateCode(time.Now())
		require.NoError(t, err)

		require.NoError(t, a.Authenticate(code))
		_, err = a.Manager.EncryptWithDeviceKey([]byte("x"))
		assert.NoError(t, err)
	})

	t.Run("auth not required", func(t *testing.T) {
		noAuth := testConfig(t, config.BackendMemory)
		a, err := NewApp(noAuth, events.NewNopLogger())
		require.NoError(t, err)
		defer a.Close()

		assert.NoError(t, a.Authenticate(""))
	})
}

func TestReadWriteHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.hex")
	require.NoError(t, writeOutput(path, []byte("0000000c00\n"), false))

	data, err := readInput(path, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0x0c, 0}, data)

	raw, err := readInput(path, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("0000000c00\n"), raw)

	assert.ErrorIs(t, writeOutput(path, []byte("zz"), false), storage.ErrFileExists)
	require.NoError(t, writeOutput(path, []byte("zz"), true))
	_, err = readInput(path, true)
	assert.ErrorContains(t, err, "decode hex input")
}

func TestResolveCredentialsReturnsWipeableCopy(t *testing.T) {
	f := &cryptoFlags{mode: "password", password: "correct horse"}

	mode, password, err := resolveCredentials(f, true)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionTypePassword, mode)
	assert.Equal(t, []byte("correct horse"), password)

	memguard.WipeBytes(password)
	assert.Equal(t, make([]byte, len("correct horse")), password)

	_, again, err := resolveCredentials(f, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("correct horse"), again)
}
