package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(username string) *Account {
	return &Account{
		Username:     username,
		SessionID:    "session-" + username,
		CSRFToken:    "csrf-" + username,
		DSUserID:     "111",
		LastModified: time.Now(),
	}
}

func newTestStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	t.Setenv("IGDL_PASSPHRASE", "test-passphrase")

	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "credentials.enc"))
	require.NoError(t, err)
	return store
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Store(testAccount("alice")))

	got, err := store.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "session-alice", got.SessionID)
	assert.Equal(t, "csrf-alice", got.CSRFToken)
	assert.Equal(t, "111", got.DSUserID)

	assert.True(t, store.Exists("alice"))
	assert.False(t, store.Exists("bob"))
}

func TestEncryptedStoreFileIsNotPlaintext(t *testing.T) {
	t.Setenv("IGDL_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("alice")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "session-alice")

	// Outer envelope is JSON with base64 payloads.
	var envelope struct {
		Salt      string `json:"salt"`
		Encrypted string `json:"encrypted"`
		Version   int    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(content, &envelope))
	assert.NotEmpty(t, envelope.Salt)
	assert.NotEmpty(t, envelope.Encrypted)
	assert.Equal(t, 1, envelope.Version)
}

func TestEncryptedStoreWrongPassphrase(t *testing.T) {
	t.Setenv("IGDL_PASSPHRASE", "right")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("alice")))

	store.SetPassphrase("wrong")
	_, err = store.Retrieve("alice")
	assert.Error(t, err)
}

func TestEncryptedStoreList(t *testing.T) {
	store := newTestStore(t)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, store.Store(testAccount("alice")))
	require.NoError(t, store.Store(testAccount("bob")))

	accounts, err = store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestEncryptedStoreDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Store(testAccount("alice")))
	require.NoError(t, store.Store(testAccount("bob")))

	require.NoError(t, store.Delete("alice"))
	assert.False(t, store.Exists("alice"))
	assert.True(t, store.Exists("bob"))

	assert.ErrorIs(t, store.Delete("alice"), ErrCredentialsNotFound)
}

func TestEncryptedStoreRetrieveMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Retrieve("nobody")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	_, err = store.Retrieve("")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEncryptedStoreUpdateExisting(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Store(testAccount("alice")))

	updated := testAccount("alice")
	updated.SessionID = "rotated-session"
	require.NoError(t, store.Store(updated))

	got, err := store.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "rotated-session", got.SessionID)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
