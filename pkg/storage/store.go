package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dougsko/siggen/pkg/logging"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDatabasePath is used when no path is configured
const DefaultDatabasePath = "./siggen.db"

// ErrPresetNotFound is returned for names with no saved preset
var ErrPresetNotFound = errors.New("preset not found")

// Store keeps presets and the parameter change history in SQLite
type Store struct {
	db         *sql.DB
	dbPath     string
	maxHistory int
}

// NewStore opens or creates the database at dbPath. History beyond
// maxHistory entries is trimmed; zero keeps everything.
func NewStore(dbPath string, maxHistory int) (*Store, error) {
	store := &Store{
		dbPath:     dbPath,
		maxHistory: maxHistory,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (s *Store) initialize() error {
	if s.dbPath == "" {
		s.dbPath = DefaultDatabasePath
	}

	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := s.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if err := s.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "Store initialized: %s (max %d history entries)", s.dbPath, s.maxHistory)
	return nil
}

// createTables creates the database schema
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS presets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS preset_values (
		preset_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (preset_id, key),
		FOREIGN KEY (preset_id) REFERENCES presets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS param_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// createIndexes creates database indexes
func (s *Store) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_param_history_timestamp ON param_history(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_param_history_key ON param_history(key)",
	}

	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
