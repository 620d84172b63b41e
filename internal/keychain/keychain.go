// Package keychain stores the Rally API key in the operating system's
// credential store.
//
// The key lives under a fixed identity:
//   - Service: "rally-notifier"
//   - Account: "rally-api-key"
//
// On macOS it is a generic password in the login Keychain, scoped with
// kSecAttrAccessibleWhenUnlockedThisDeviceOnly. Elsewhere it goes through
// the platform keyring (Secret Service on Linux, Credential Manager on
// Windows).
package keychain

import "errors"

const (
	// ServiceName is the credential store service attribute.
	ServiceName = "rally-notifier"
	// AccountName is the account the API key is stored under.
	AccountName = "rally-api-key"
)

// ErrNotFound is returned when a secret does not exist in the store.
var ErrNotFound = errors.New("secret not found")

// ErrUnavailable is wrapped by a Store when the credential facility itself
// cannot be reached (no keychain, no Secret Service on the session bus).
var ErrUnavailable = errors.New("credential store unavailable")

// Store is keyed secret storage.
//
// Get returns an error wrapping ErrNotFound for a missing key. Delete of a
// missing key returns nil.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}
