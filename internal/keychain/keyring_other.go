//go:build !darwin

package keychain

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// SystemStore keeps secrets in the platform keyring: the Secret Service on
// Linux, Credential Manager on Windows.
type SystemStore struct {
	service string
}

// NewSystemStore creates a keyring-backed store for ServiceName.
func NewSystemStore() *SystemStore {
	return &SystemStore{service: ServiceName}
}

// Set stores a secret in the keyring. Overwrites if it already exists.
func (s *SystemStore) Set(key, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return wrapKeyringErr("set", key, err)
	}
	return nil
}

// Get retrieves a secret from the keyring.
func (s *SystemStore) Get(key string) (string, error) {
	val, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", wrapKeyringErr("get", key, err)
	}
	return val, nil
}

// Delete removes a secret from the keyring.
func (s *SystemStore) Delete(key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return wrapKeyringErr("delete", key, err)
	}
	return nil
}

// checkBackend checks that the keyring backend answers. Tests replace it.
var checkBackend = checkFacility

// wrapKeyringErr marks err as ErrUnavailable when the keyring backend
// cannot be reached at all. go-keyring passes bus errors through untyped,
// so a failed operation that is not recognisably a missing service
// re-checks the facility.
func wrapKeyringErr(op, key string, err error) error {
	if errors.Is(err, keyring.ErrUnsupportedPlatform) || serviceMissing(err) || checkBackend() != nil {
		return fmt.Errorf("keyring %s %q: %w: %w", op, key, ErrUnavailable, err)
	}
	return fmt.Errorf("keyring %s %q: %w", op, key, err)
}
