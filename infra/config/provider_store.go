package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ProviderStore handles persistent storage of provider credentials and
// settings. Each provider has one config map per environment.
type ProviderStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewProviderStore opens (or creates) the SQLite-backed provider store.
func NewProviderStore(dbPath string) (*ProviderStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	store := &ProviderStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *ProviderStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS provider_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_name TEXT NOT NULL,
		environment TEXT NOT NULL,
		config_data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(provider_name, environment)
	);

	CREATE INDEX IF NOT EXISTS idx_provider_env ON provider_configs(provider_name, environment);
	`

	_, err := s.db.Exec(query)
	return err
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *ProviderStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				log.Printf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1)
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// Save stores a provider configuration, replacing any existing one for the
// same provider and environment.
func (s *ProviderStore) Save(providerName, environment string, config map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return s.retryOperation(func() error {
		query := `
		INSERT INTO provider_configs (provider_name, environment, config_data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider_name, environment)
		DO UPDATE SET
			config_data = excluded.config_data,
			updated_at = CURRENT_TIMESTAMP
		`

		if _, err := s.db.Exec(query, providerName, environment, string(configJSON)); err != nil {
			return fmt.Errorf("failed to save provider config: %w", err)
		}
		return nil
	}, 3)
}

// Load returns the configuration for a provider in the given environment.
func (s *ProviderStore) Load(providerName, environment string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config map[string]string
	err := s.retryOperation(func() error {
		query := `
		SELECT config_data
		FROM provider_configs
		WHERE provider_name = ? AND environment = ?
		`

		var configJSON string
		err := s.db.QueryRow(query, providerName, environment).Scan(&configJSON)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("no configuration found for provider %s (%s)", providerName, environment)
			}
			return fmt.Errorf("failed to load provider config: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
		return nil
	}, 3)

	return config, err
}

// ProviderNames returns all provider names that have stored configuration
// for the given environment.
func (s *ProviderStore) ProviderNames(environment string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT provider_name
		FROM provider_configs
		WHERE environment = ?
		ORDER BY provider_name
	`, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan provider name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Delete removes a provider configuration.
func (s *ProviderStore) Delete(providerName, environment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		result, err := s.db.Exec(`
			DELETE FROM provider_configs
			WHERE provider_name = ? AND environment = ?
		`, providerName, environment)
		if err != nil {
			return fmt.Errorf("failed to delete provider config: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("no configuration found for provider %s (%s)", providerName, environment)
		}
		return nil
	}, 3)
}

// Close closes the database connection
func (s *ProviderStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
