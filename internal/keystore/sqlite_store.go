package keystore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/walletseal/internal/events"
)

// SQLiteStore keeps entries in a SQLite database, with the key material
// wrapped under a master key.
type SQLiteStore struct {
	db      *sql.DB
	wrapper *wrapper
	logger  *events.Logger
}

// NewSQLiteStore creates a SQLite key store.
func NewSQLiteStore(dbPath string, master *memguard.Enclave, logger *events.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = events.NewNopLogger()
	}

	w, err := newWrapper(master)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:      db,
		wrapper: w,
		logger:  logger.WithField("component", "sqlite_key_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS key_entries (
        alias TEXT PRIMARY KEY,
        id TEXT NOT NULL UNIQUE,
        spec TEXT NOT NULL,
        material BLOB NOT NULL,
        created_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Generate creates a new entry and inserts it.
func (s *SQLiteStore) Generate(alias string, spec KeySpec) (*Entry, error) {
	entry, err := newEntry(alias, spec)
	if err != nil {
		return nil, err
	}

	material, err := s.wrapper.wrap(entry)
	if err != nil {
		return nil, fmt.Errorf("wrap key material: %w", err)
	}

	specJSON, err := json.Marshal(entry.Spec)
	if err != nil {
		return nil, fmt.Errorf("marshal key spec: %w", err)
	}

	s.logger.WithField("alias", alias).Debug("Inserting key entry")

	res, err := s.db.Exec(`
        INSERT OR IGNORE INTO key_entries (alias, id, spec, material, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, alias, entry.ID.String(), string(specJSON), material, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert key entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert key entry: %w", err)
	}
	if n == 0 {
		return nil, ErrEntryExists
	}

	return entry, nil
}

// Load reads and unwraps the entry for alias.
func (s *SQLiteStore) Load(alias string) (*Entry, error) {
	s.logger.WithField("alias", alias).Debug("Loading key entry from SQLite")

	var (
		id        string
		specJSON  string
		material  []byte
		createdAt time.Time
	)

	err := s.db.QueryRow(`
        SELECT id, spec, material, created_at
        FROM key_entries
        WHERE alias = ?
    `, alias).Scan(&id, &specJSON, &material, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query key entry: %w", err)
	}

	entryID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}

	var spec KeySpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	}

	enclave, err := s.wrapper.unwrap(material, alias, entryID, spec)
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:        entryID,
		Alias:     alias,
		Spec:      spec,
		CreatedAt: createdAt.UTC(),
		material:  enclave,
	}, nil
}

// Delete removes alias.
func (s *SQLiteStore) Delete(alias string) error {
	s.logger.WithField("alias", alias).Info("Deleting key entry in SQLite")

	if _, err := s.db.Exec("DELETE FROM key_entries WHERE alias = ?", alias); err != nil {
		return fmt.Errorf("delete key entry: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
