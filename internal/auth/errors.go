package auth

import (
	"fmt"

	"github.com/edgegate/edgegate/internal/util"
)

// Validation failure reasons. All wrap util.ErrAuthInvalid so callers
// can classify them with a single errors.Is check.
var (
	// ErrMissingToken indicates the request carried no credential.
	ErrMissingToken = fmt.Errorf("%w: missing token", util.ErrAuthInvalid)

	// ErrMalformedToken indicates the credential could not be parsed.
	ErrMalformedToken = fmt.Errorf("%w: malformed token", util.ErrAuthInvalid)

	// ErrTokenExpired indicates the token is past its expiration.
	ErrTokenExpired = fmt.Errorf("%w: token expired", util.ErrAuthInvalid)

	// ErrInvalidSignature indicates signature verification failed.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", util.ErrAuthInvalid)

	// ErrInvalidIssuer indicates the token issuer is not trusted.
	ErrInvalidIssuer = fmt.Errorf("%w: invalid issuer", util.ErrAuthInvalid)

	// ErrInvalidAudience indicates the token audience does not match.
	ErrInvalidAudience = fmt.Errorf("%w: invalid audience", util.ErrAuthInvalid)
)
