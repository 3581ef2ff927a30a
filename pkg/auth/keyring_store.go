package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igdownloader"
	keyringPrefix  = "instagram_"
)

// KeyringStore implements CredentialStore using the system keychain.
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store, probing availability.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain.
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := keyring.Set(keyringService, keyringPrefix+account.Username, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return nil
}

// Retrieve gets credentials from the system keychain.
func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+username)
	if err != nil {
		return nil, ErrCredentialsNotFound
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// List is not supported by the keychain; individual keys cannot be
// enumerated portably.
func (k *KeyringStore) List() ([]*Account, error) {
	return nil, ErrStoreUnavailable
}

// Delete removes credentials from the system keychain.
func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	if err := keyring.Delete(keyringService, keyringPrefix+username); err != nil {
		return ErrCredentialsNotFound
	}
	return nil
}

// Exists checks if credentials exist in the keychain.
func (k *KeyringStore) Exists(username string) bool {
	account, err := k.Retrieve(username)
	return err == nil && account != nil
}
