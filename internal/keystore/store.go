package keystore

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/TheMichaelB/walletseal/internal/crypto"
)

// Store is a platform key store holding device keys by alias.
type Store interface {
	// Generate creates key material for alias. It fails with
	// ErrEntryExists if the alias is taken.
	Generate(alias string, spec KeySpec) (*Entry, error)

	// Load returns the entry for alias, or ErrEntryNotFound.
	Load(alias string) (*Entry, error)

	// Delete removes alias. Deleting an absent alias is not an error.
	Delete(alias string) error

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrEntryNotFound = errors.New("key entry not found")
	ErrEntryExists   = errors.New("key entry already exists")
	ErrEntryCorrupt  = errors.New("key entry is corrupt")
	ErrStoreClosed   = errors.New("key store is closed")
	ErrInvalidAlias  = errors.New("invalid key alias")
)

// CurrentSchemaVersion of persisted entries.
const CurrentSchemaVersion = 1

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Entry is a stored device key. Its material never leaves the package.
type Entry struct {
	ID        uuid.UUID
	Alias     string
	Spec      KeySpec
	CreatedAt time.Time

	material *memguard.Enclave
}

// newEntry generates fresh material for spec.
func newEntry(alias string, spec KeySpec) (*Entry, error) {
	if err := validateAlias(alias); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var material *memguard.Enclave
	switch spec.Algorithm {
	case AlgorithmPassphrase:
		passphrase, err := crypto.GeneratePassphrase(spec.PassphraseLength)
		if err != nil {
			return nil, err
		}
		material = memguard.NewEnclave(passphrase)
	default:
		material = memguard.NewBufferRandom(spec.KeySize).Seal()
	}

	return &Entry{
		ID:        uuid.New(),
		Alias:     alias,
		Spec:      spec,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		material:  material,
	}, nil
}

// open decrypts the material into a locked buffer the caller must destroy.
func (e *Entry) open() (*memguard.LockedBuffer, error) {
	if e.material == nil {
		return nil, fmt.Errorf("%w: no key material", ErrEntryCorrupt)
	}
	buf, err := e.material.Open()
	if err != nil {
		return nil, fmt.Errorf("open key material: %w", err)
	}
	return buf, nil
}

func validateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	return nil
}
