package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore keeps upstream API keys (openai, anthropic, coach API)
// either in plain TOML or encrypted with an SSH-derived key.
type CredentialStore struct {
	method      SecurityMethod
	credentials map[string]string
	encManager  *EncryptionManager
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

// NewCredentialStore creates a store. encManager is required for
// SecuritySSHKey and ignored otherwise.
func NewCredentialStore(method SecurityMethod, encManager *EncryptionManager) *CredentialStore {
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		encManager:  encManager,
	}
}

// OpenCredentialStore builds and loads the store described by the user config.
func OpenCredentialStore(cfg *Config, passphrase string) (*CredentialStore, error) {
	method := SecurityMethod(cfg.User.Security.Method)
	if method == "" {
		method = SecurityPlainText
	}

	var enc *EncryptionManager
	if method == SecuritySSHKey {
		enc = NewEncryptionManager(ExpandPath(cfg.User.Security.SSHKeyPath), passphrase)
		if err := enc.Initialize(); err != nil {
			return nil, err
		}
	}

	store := NewCredentialStore(method, enc)
	if err := store.Load(cfg.DataDir()); err != nil {
		return nil, err
	}
	return store, nil
}

func (c *CredentialStore) Load(dataDir string) error {
	var data []byte
	var err error

	switch c.method {
	case SecurityPlainText:
		data, err = readIfExists(filepath.Join(dataDir, "credentials.toml"))
	case SecuritySSHKey:
		data, err = readIfExists(filepath.Join(dataDir, "credentials.enc"))
		if err == nil && data != nil {
			data, err = c.encManager.Decrypt(data)
		}
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	if data == nil {
		return nil
	}

	var cf credentialsFile
	if _, err := toml.Decode(string(data), &cf); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials != nil {
		c.credentials = cf.Credentials
	}
	return nil
}

func (c *CredentialStore) Save(dataDir string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(credentialsFile{Credentials: c.credentials}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	switch c.method {
	case SecurityPlainText:
		return os.WriteFile(filepath.Join(dataDir, "credentials.toml"), buf.Bytes(), 0600)
	case SecuritySSHKey:
		sealed, err := c.encManager.Encrypt(buf.Bytes())
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		return os.WriteFile(filepath.Join(dataDir, "credentials.enc"), sealed, 0600)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

func (c *CredentialStore) Get(id string) string {
	return c.credentials[id]
}

func (c *CredentialStore) Set(id, secret string) {
	c.credentials[id] = secret
}

func (c *CredentialStore) Delete(id string) {
	delete(c.credentials, id)
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
