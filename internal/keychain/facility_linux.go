package keychain

import (
	"errors"

	"github.com/godbus/dbus/v5"
	ss "github.com/zalando/go-keyring/secret_service"
)

// checkFacility reports whether a Secret Service provider answers on the
// session bus. Connecting to the bus alone proves nothing, so it opens and
// closes a session.
func checkFacility() error {
	svc, err := ss.NewSecretService()
	if err != nil {
		return err
	}
	session, err := svc.OpenSession()
	if err != nil {
		return err
	}
	return svc.Close(session)
}

// serviceMissing reports whether err is the session bus saying no Secret
// Service provider is running.
func serviceMissing(err error) bool {
	var name string
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	switch {
	case errors.As(err, &dbusErr):
		name = dbusErr.Name
	case errors.As(err, &dbusErrPtr) && dbusErrPtr != nil:
		name = dbusErrPtr.Name
	default:
		return false
	}
	switch name {
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner",
		"org.freedesktop.DBus.Error.Spawn.ServiceNotFound":
		return true
	}
	return false
}
