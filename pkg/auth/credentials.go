// Package auth stores the Instagram cookie set across runs. Credentials
// are supplied pre-obtained; there is no login-flow automation.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store errors.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Account holds one account's cookie set.
type Account struct {
	Username     string    `json:"username"`
	SessionID    string    `json:"session_id"`
	CSRFToken    string    `json:"csrf_token"`
	DSUserID     string    `json:"ds_user_id"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials.
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

// Manager handles credential storage with fallback backends: system
// keychain first, encrypted file second, environment last.
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with the available backends.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves credentials using the first store that accepts them.
func (m *Manager) Store(account *Account) error {
	if account.Username == "" {
		return errors.New("username is required")
	}
	if account.SessionID == "" {
		return errors.New("session ID is required")
	}
	if account.CSRFToken == "" {
		return errors.New("CSRF token is required")
	}
	if account.DSUserID == "" {
		return errors.New("ds_user_id is required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them.
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for account: %s", username)
}

// RetrieveDefault gets the environment credentials or the first stored account.
func (m *Manager) RetrieveDefault() (*Account, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if account, err := envStore.Retrieve(""); err == nil && account != nil {
			return account, nil
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, errors.New("no credentials found")
}

// List returns all stored accounts from all stores, most recent version wins.
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Username]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Username] = account
			}
		}
	}

	var result []*Account
	for _, account := range accountMap {
		result = append(result, account)
	}

	return result, nil
}

// Delete removes credentials from all stores.
func (m *Manager) Delete(username string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for account: %s", username)
	}

	return nil
}

// getConfigDir returns the per-user configuration directory.
func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "igdownloader")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}
