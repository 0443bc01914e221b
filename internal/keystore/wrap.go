package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/TheMichaelB/walletseal/internal/crypto"
)

// MasterKeySize is the AES-256 key protecting persisted key material.
const MasterKeySize = 32

// NewMasterKey returns a random master key.
func NewMasterKey() *memguard.Enclave {
	return memguard.NewBufferRandom(MasterKeySize).Seal()
}

// LoadOrCreateMasterKey reads a hex-encoded master key from path,
// creating the file with a fresh key when it does not exist.
func LoadOrCreateMasterKey(path string) (*memguard.Enclave, error) {
	return loadOrCreateMasterKey(path, false)
}

// loadOrCreateMasterKey creates the key at most once. A path that exists for
// O_EXCL but not for reading (a dangling symlink) fails on the second pass.
func loadOrCreateMasterKey(path string, created bool) (*memguard.Enclave, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if created {
			return nil, fmt.Errorf("master key %s exists but cannot be read (dangling link?)", path)
		}
		return createMasterKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read master key: %w", err)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	memguard.WipeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(raw) != MasterKeySize {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(raw))
	}

	return memguard.NewEnclave(raw), nil
}

// syncFile is replaced in tests to simulate a failing disk.
var syncFile = (*os.File).Sync

func createMasterKey(path string) (*memguard.Enclave, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create master key directory: %w", err)
	}

	buf := memguard.NewBufferRandom(MasterKeySize)
	encoded := []byte(hex.EncodeToString(buf.Bytes()))
	defer memguard.WipeBytes(encoded)

	// O_EXCL so two processes never overwrite each other's key
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if errors.Is(err, os.ErrExist) {
		buf.Destroy()
		return loadOrCreateMasterKey(path, true)
	}
	if err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("create master key: %w", err)
	}

	// A partial key left behind would be read back as corrupt on the next run
	discard := func() {
		buf.Destroy()
		f.Close()
		_ = os.Remove(path)
	}

	if _, err := f.Write(encoded); err != nil {
		discard()
		return nil, fmt.Errorf("write master key: %w", err)
	}
	if err := syncFile(f); err != nil {
		discard()
		return nil, fmt.Errorf("sync master key: %w", err)
	}
	if err := f.Close(); err != nil {
		buf.Destroy()
		_ = os.Remove(path)
		return nil, fmt.Errorf("close master key: %w", err)
	}

	return buf.Seal(), nil
}

// wrapper seals key material under the store master key using the same
// blob format as wallet secrets.
type wrapper struct {
	master *memguard.Enclave
	codec  *crypto.Codec
}

func newWrapper(master *memguard.Enclave) (*wrapper, error) {
	if master == nil {
		return nil, errors.New("master key is required")
	}
	if master.Size() != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, master.Size())
	}
	return &wrapper{master: master, codec: crypto.NewCodec()}, nil
}

func (w *wrapper) cipher() (*crypto.AESGCM, error) {
	key, err := w.master.Open()
	if err != nil {
		return nil, fmt.Errorf("open master key: %w", err)
	}
	defer key.Destroy()

	return crypto.NewAESGCM(key.Bytes())
}

// entryBinding is the additional data sealed with an entry's material. It
// ties the material to the alias, id and spec it was created with, so an
// edited spec fails to unwrap.
func entryBinding(alias string, id uuid.UUID, spec KeySpec) ([]byte, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal key spec: %w", err)
	}

	binding := make([]byte, 0, len(entryBindingLabel)+len(alias)+len(specJSON)+40)
	binding = append(binding, entryBindingLabel...)
	binding = append(binding, 0)
	binding = append(binding, alias...)
	binding = append(binding, 0)
	binding = append(binding, id.String()...)
	binding = append(binding, 0)
	binding = append(binding, specJSON...)
	return binding, nil
}

const entryBindingLabel = "walletseal-key-entry/v1"

// wrap encrypts the entry material bound to its metadata.
func (w *wrapper) wrap(e *Entry) ([]byte, error) {
	aad, err := entryBinding(e.Alias, e.ID, e.Spec)
	if err != nil {
		return nil, err
	}

	kc, err := w.cipher()
	if err != nil {
		return nil, err
	}

	material, err := e.open()
	if err != nil {
		return nil, err
	}
	defer material.Destroy()

	return w.codec.SealWithAAD(kc, nil, material.Bytes(), aad)
}

// unwrap decrypts material stored for the given metadata; any failure,
// including metadata that differs from what was wrapped, means the entry
// is corrupt.
func (w *wrapper) unwrap(blob []byte, alias string, id uuid.UUID, spec KeySpec) (*memguard.Enclave, error) {
	aad, err := entryBinding(alias, id, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}

	kc, err := w.cipher()
	if err != nil {
		return nil, err
	}

	material, err := w.codec.OpenWithAAD(kc, blob, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}
	if len(material) == 0 {
		return nil, fmt.Errorf("%w: empty key material", ErrEntryCorrupt)
	}

	return memguard.NewEnclave(material), nil
}
