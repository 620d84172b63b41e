//go:build !darwin && !linux

package keychain

// checkFacility is a no-op where go-keyring talks to a built-in OS API.
func checkFacility() error {
	return nil
}

func serviceMissing(err error) bool {
	return false
}
