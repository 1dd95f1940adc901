// Package secret keeps the AirVPN API key in the operating system keyring.
package secret

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// DefaultService is the keyring service name.
	DefaultService = "airvpn-bridge"

	// DefaultUser is the keyring account the API key is stored under.
	DefaultUser = "api-key"
)

// ErrNotFound is returned when no key is stored.
var ErrNotFound = errors.New("api key not found in keyring")

// Keyring reads and writes one secret in the system keyring.
type Keyring struct {
	Service string
	User    string
}

// New returns a Keyring for the given instance. An empty instance uses the
// default account.
func New(instance string) Keyring {
	user := DefaultUser
	if instance != "" {
		user = instance + "/" + DefaultUser
	}
	return Keyring{Service: DefaultService, User: user}
}

// Lookup returns the stored key.
func (k Keyring) Lookup() (string, error) {
	key, err := keyring.Get(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s/%s: %w", k.Service, k.User, err)
	}
	return key, nil
}

// Store saves key, replacing any stored value. Surrounding whitespace is
// trimmed.
func (k Keyring) Store(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key cannot be empty")
	}
	if err := keyring.Set(k.Service, k.User, key); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", k.Service, k.User, err)
	}
	return nil
}

// Delete removes the stored key. Deleting a missing key is not an error.
func (k Keyring) Delete() error {
	err := keyring.Delete(k.Service, k.User)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s/%s: %w", k.Service, k.User, err)
	}
	return nil
}
