package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/charmbracelet/log"

	"github.com/nhle/contextcatcher/internal/model"
)

const serviceName = "contextcatcher"

// Keys under which secrets are stored in the keyring.
const (
	KeyEmailPassword = "email.password"
	KeyLLMAPIKey     = "llm.api_key"
)

// Store is the subset of keyring operations used by the application.
type Store interface {
	Get(key string) (keyring.Item, error)
	Set(item keyring.Item) error
	Remove(key string) error
}

// Open returns the system keyring configured for this application.
func Open() (Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/contextcatcher/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("contextcatcher-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a secret by key.
func Get(ring Store, key string) (string, error) {
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a secret by key.
func Set(ring Store, key, value string) error {
	err := ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a secret by key.
func Delete(ring Store, key string) error {
	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// FillSecrets populates the mailbox password and LLM API key from the
// keyring when the config left them empty. Missing keyring entries are not
// an error.
func FillSecrets(ring Store, cfg *model.AppConfig, logger *log.Logger) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		val, err := Get(ring, key)
		if err != nil {
			if !errors.Is(err, keyring.ErrKeyNotFound) {
				logger.Warn("keyring lookup failed", "key", key, "err", err)
			}
			return
		}
		*dst = val
	}

	fill(&cfg.Email.Password, KeyEmailPassword)
	fill(&cfg.LLM.APIKey, KeyLLMAPIKey)
}
