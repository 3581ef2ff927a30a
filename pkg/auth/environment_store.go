package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// Read-only; primarily for CI and scripted runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-backed store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables.
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	sessionID := os.Getenv("IGDL_SESSION_ID")
	csrfToken := os.Getenv("IGDL_CSRF_TOKEN")
	dsUserID := os.Getenv("IGDL_DS_USER_ID")
	userAgent := os.Getenv("IGDL_USER_AGENT")

	if sessionID == "" || csrfToken == "" || dsUserID == "" {
		return nil, ErrCredentialsNotFound
	}

	if username == "" {
		username = "default"
	}

	return &Account{
		Username:     username,
		SessionID:    sessionID,
		CSRFToken:    csrfToken,
		DSUserID:     dsUserID,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}, nil
}

// List returns the environment account when present.
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables.
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials are present.
func (e *EnvironmentStore) Exists(username string) bool {
	account, err := e.Retrieve(username)
	return err == nil && account != nil
}
