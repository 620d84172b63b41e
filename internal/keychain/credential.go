package keychain

import (
	"errors"

	"github.com/benaskins/rally/internal/fault"
)

// Credential is the single API key held in a Store under AccountName.
//
// Nothing is cached: every call reads or writes the Store, so a key
// changed outside the process is seen on the next Get.
type Credential struct {
	store   Store
	account string
}

// NewCredential binds the API key identity to store.
func NewCredential(store Store) *Credential {
	return &Credential{store: store, account: AccountName}
}

// Set stores value, replacing any existing key.
func (c *Credential) Set(value string) error {
	if err := c.store.Set(c.account, value); err != nil {
		return classify("keychain set", fault.StoreWriteFailed, err)
	}
	return nil
}

// Get returns the stored key. ok is false, with a nil error, when no key is
// stored.
func (c *Credential) Get() (value string, ok bool, err error) {
	value, err = c.store.Get(c.account)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, classify("keychain get", fault.StoreReadFailed, err)
	}
	return value, true, nil
}

// Delete removes the key. Deleting a missing key succeeds.
func (c *Credential) Delete() error {
	if err := c.store.Delete(c.account); err != nil && !errors.Is(err, ErrNotFound) {
		return classify("keychain delete", fault.StoreWriteFailed, err)
	}
	return nil
}

func classify(op string, kind fault.Kind, err error) error {
	if errors.Is(err, ErrUnavailable) {
		kind = fault.StoreUnavailable
	}
	return fault.New(kind, op, err)
}
