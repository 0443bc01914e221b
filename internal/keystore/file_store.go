package keystore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/TheMichaelB/walletseal/internal/events"
)

// FileStore keeps one JSON file per alias, with the key material
// wrapped under a master key.
type FileStore struct {
	baseDir string
	wrapper *wrapper
	logger  *events.Logger

	mu     sync.RWMutex
	closed bool
}

// fileRecord is the on-disk form of an entry.
type fileRecord struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Alias         string    `json:"alias"`
	Spec          KeySpec   `json:"spec"`
	CreatedAt     time.Time `json:"created_at"`
	Material      string    `json:"material"` // Base64 sealed blob
	Checksum      string    `json:"checksum,omitempty"`
}

// NewFileStore creates a file-based key store.
func NewFileStore(baseDir string, master *memguard.Enclave, logger *events.Logger) (*FileStore, error) {
	if logger == nil {
		logger = events.NewNopLogger()
	}

	w, err := newWrapper(master)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	return &FileStore{
		baseDir: baseDir,
		wrapper: w,
		logger:  logger.WithField("component", "file_key_store"),
	}, nil
}

// Generate creates a new entry and persists it.
func (s *FileStore) Generate(alias string, spec KeySpec) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry, err := newEntry(alias, spec)
	if err != nil {
		return nil, err
	}

	record, err := s.encode(entry)
	if err != nil {
		return nil, err
	}

	path := s.entryPath(alias)

	s.logger.WithFields(map[string]interface{}{
		"alias": alias,
		"path":  path,
	}).Debug("Writing key entry")

	// Write temp file, then link into place; link fails if the alias exists
	tmpPath := fmt.Sprintf("%s.%s.tmp", path, entry.ID)
	if err := os.WriteFile(tmpPath, record, 0600); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	// Sync to disk
	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrEntryExists
		}
		return nil, fmt.Errorf("link key entry: %w", err)
	}

	return entry, nil
}

// Load reads and unwraps the entry for alias.
func (s *FileStore) Load(alias string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if err := validateAlias(alias); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.entryPath(alias))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read key entry: %w", err)
	}

	return s.decode(alias, data)
}

// Delete removes the entry file.
func (s *FileStore) Delete(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := validateAlias(alias); err != nil {
		return err
	}

	s.logger.WithField("alias", alias).Info("Deleting key entry")

	if err := os.Remove(s.entryPath(alias)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove key entry: %w", err)
	}
	return nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Helper methods

func (s *FileStore) entryPath(alias string) string {
	return filepath.Join(s.baseDir, alias+".json")
}

func (s *FileStore) encode(e *Entry) ([]byte, error) {
	material, err := s.wrapper.wrap(e)
	if err != nil {
		return nil, fmt.Errorf("wrap key material: %w", err)
	}

	record := fileRecord{
		SchemaVersion: CurrentSchemaVersion,
		ID:            e.ID.String(),
		Alias:         e.Alias,
		Spec:          e.Spec,
		CreatedAt:     e.CreatedAt,
		Material:      base64.StdEncoding.EncodeToString(material),
	}

	// Calculate checksum (without checksum field)
	record.Checksum, err = recordChecksum(record)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal key entry: %w", err)
	}
	return data, nil
}

func (s *FileStore) decode(alias string, data []byte) (*Entry, error) {
	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}

	calculated, err := recordChecksum(record)
	if err != nil {
		return nil, err
	}
	if record.Checksum == "" || calculated != record.Checksum {
		s.logger.WithFields(map[string]interface{}{
			"alias":    alias,
			"expected": record.Checksum,
			"actual":   calculated,
		}).Error("Key entry checksum mismatch")
		return nil, fmt.Errorf("%w: checksum mismatch", ErrEntryCorrupt)
	}

	if record.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrEntryCorrupt, record.SchemaVersion)
	}
	if record.Alias != alias {
		return nil, fmt.Errorf("%w: entry belongs to %q", ErrEntryCorrupt, record.Alias)
	}

	id, err := uuid.Parse(record.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}

	blob, err := base64.StdEncoding.DecodeString(record.Material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}

	material, err := s.wrapper.unwrap(blob, record.Alias, id, record.Spec)
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:        id,
		Alias:     record.Alias,
		Spec:      record.Spec,
		CreatedAt: record.CreatedAt,
		material:  material,
	}, nil
}

func recordChecksum(record fileRecord) (string, error) {
	record.Checksum = ""
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal key entry for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
