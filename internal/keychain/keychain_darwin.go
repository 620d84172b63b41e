//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemStore keeps secrets as generic passwords in the macOS Keychain.
type SystemStore struct {
	service string
	add     func(gokeychain.Item) error
	update  func(query, item gokeychain.Item) error
}

// NewSystemStore creates a Keychain-backed store for ServiceName.
func NewSystemStore() *SystemStore {
	return &SystemStore{
		service: ServiceName,
		add:     gokeychain.AddItem,
		update:  gokeychain.UpdateItem,
	}
}

// Set stores a secret in the Keychain. Overwrites if it already exists.
// An existing item is updated in place, never removed first, so a failed
// write leaves the previous value readable.
func (s *SystemStore) Set(key, value string) error {
	item := gokeychain.NewGenericPassword(
		s.service,
		key,
		fmt.Sprintf("%s: %s", s.service, key),
		[]byte(value),
		"",
	)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	err := s.add(item)
	if errors.Is(err, gokeychain.ErrorDuplicateItem) {
		query := gokeychain.NewItem()
		query.SetSecClass(gokeychain.SecClassGenericPassword)
		query.SetService(s.service)
		query.SetAccount(key)

		change := gokeychain.NewItem()
		change.SetData([]byte(value))
		if err := s.update(query, change); err != nil {
			return wrapKeychainErr("update", key, err)
		}
		return nil
	}
	if err != nil {
		return wrapKeychainErr("add", key, err)
	}
	return nil
}

// Get retrieves a secret from the Keychain.
func (s *SystemStore) Get(key string) (string, error) {
	data, err := gokeychain.GetGenericPassword(s.service, key, "", "")
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", wrapKeychainErr("get", key, err)
	}
	// GetGenericPassword returns nil data and no error for a missing item.
	if data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return string(data), nil
}

// Delete removes a secret from the Keychain.
func (s *SystemStore) Delete(key string) error {
	err := gokeychain.DeleteGenericPasswordItem(s.service, key)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return wrapKeychainErr("delete", key, err)
	}
	return nil
}

func wrapKeychainErr(op, key string, err error) error {
	switch {
	case errors.Is(err, gokeychain.ErrorNotAvailable),
		errors.Is(err, gokeychain.ErrorNoSuchKeychain),
		errors.Is(err, gokeychain.ErrorInteractionNotAllowed):
		return fmt.Errorf("keychain %s %q: %w: %w", op, key, ErrUnavailable, err)
	}
	return fmt.Errorf("keychain %s %q: %w", op, key, err)
}
