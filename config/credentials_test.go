package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func writeTestSSHKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestCredentialStore_PlainText(t *testing.T) {
	dir := t.TempDir()

	store := NewCredentialStore(SecurityPlainText, nil)
	require.NoError(t, store.Load(dir))
	assert.Empty(t, store.Get("openai"))

	store.Set("openai", "sk-test")
	store.Set("anthropic", "ant-test")
	require.NoError(t, store.Save(dir))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := NewCredentialStore(SecurityPlainText, nil)
	require.NoError(t, reloaded.Load(dir))
	assert.Equal(t, "sk-test", reloaded.Get("openai"))
	assert.Equal(t, "ant-test", reloaded.Get("anthropic"))

	reloaded.Delete("openai")
	assert.Empty(t, reloaded.Get("openai"))
}

func TestCredentialStore_SSHKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestSSHKey(t, "")

	enc := NewEncryptionManager(keyPath, "")
	require.NoError(t, enc.Initialize())

	store := NewCredentialStore(SecuritySSHKey, enc)
	store.Set("coach", "bearer-token")
	require.NoError(t, store.Save(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bearer-token")
	assert.NoFileExists(t, filepath.Join(dir, "credentials.toml"))

	// A fresh manager derives the same key from the same SSH key.
	enc2 := NewEncryptionManager(keyPath, "")
	require.NoError(t, enc2.Initialize())
	reloaded := NewCredentialStore(SecuritySSHKey, enc2)
	require.NoError(t, reloaded.Load(dir))
	assert.Equal(t, "bearer-token", reloaded.Get("coach"))
}

func TestCredentialStore_UnknownMethod(t *testing.T) {
	store := NewCredentialStore(SecurityMethod("rot13"), nil)
	assert.Error(t, store.Save(t.TempDir()))
}

func TestEncryptionManager(t *testing.T) {
	t.Run("not initialized", func(t *testing.T) {
		enc := NewEncryptionManager("/nonexistent", "")
		_, err := enc.Encrypt([]byte("x"))
		assert.Error(t, err)
	})

	t.Run("encrypted key requires passphrase", func(t *testing.T) {
		keyPath := writeTestSSHKey(t, "hunter2")

		encrypted, err := IsSSHKeyEncrypted(keyPath)
		require.NoError(t, err)
		assert.True(t, encrypted)

		assert.Error(t, NewEncryptionManager(keyPath, "").Initialize())
		require.NoError(t, NewEncryptionManager(keyPath, "hunter2").Initialize())
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		enc := NewEncryptionManager(writeTestSSHKey(t, ""), "")
		require.NoError(t, enc.Initialize())

		sealed, err := enc.Encrypt([]byte("walk after dinner"))
		require.NoError(t, err)

		plain, err := enc.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "walk after dinner", string(plain))

		sealed[len(sealed)-1] ^= 0xff
		_, err = enc.Decrypt(sealed)
		assert.Error(t, err)

		_, err = enc.Decrypt([]byte{1, 2})
		assert.Error(t, err)
	})
}
