package auth

import (
	"net/http"
	"strings"
)

// Default credential location.
const (
	DefaultTokenHeader = "Authorization"
	DefaultTokenPrefix = "Bearer "
)

// ExtractToken pulls the credential from the configured header,
// stripping the scheme prefix. Returns ErrMissingToken when the header
// is absent or carries a different scheme.
func ExtractToken(r *http.Request, header, prefix string) (string, error) {
	if header == "" {
		header = DefaultTokenHeader
	}
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}

	value := r.Header.Get(header)
	if value == "" {
		return "", ErrMissingToken
	}

	// Scheme comparison is case-insensitive per RFC 7235.
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}

	token := strings.TrimSpace(value[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}

	return token, nil
}
