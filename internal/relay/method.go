package relay

import (
	"net/http"
	"strings"

	"github.com/benaskins/rally/internal/fault"
)

var standardMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
	http.MethodConnect,
}

// NormalizeMethod validates m as an HTTP method token. Any casing of a
// standard method is upper-cased; other valid tokens are extension methods
// and are returned unchanged.
func NormalizeMethod(m string) (string, error) {
	if m == "" {
		return "", fault.Errorf(fault.InvalidMethod, "relay", "empty method")
	}
	for i := 0; i < len(m); i++ {
		if !isTokenChar(m[i]) {
			return "", fault.Errorf(fault.InvalidMethod, "relay", "invalid method %q", m)
		}
	}
	for _, std := range standardMethods {
		if strings.EqualFold(m, std) {
			return std, nil
		}
	}
	return m, nil
}

// isTokenChar reports whether c is a tchar (RFC 9110 section 5.6.2).
func isTokenChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}
