// Package auth validates request credentials against an external
// token authority. Verification keys are fetched from the authority's
// JWKS endpoint and refreshed in the background; validation outcomes
// are cached briefly to bound the per-request crypto cost.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
)

// Validator validates bearer tokens.
type Validator interface {
	// Validate verifies the token's signature and standard claims.
	Validate(ctx context.Context, token string) (*Claims, error)

	// ValidateWithAudiences additionally requires one of the given
	// audiences to be present in the token.
	ValidateWithAudiences(ctx context.Context, token string, audiences []string) (*Claims, error)
}

// TokenValidator validates JWTs against a JWKS key set.
type TokenValidator struct {
	config  config.AuthConfig
	keySet  jwk.Set
	results *resultCache
	logger  observability.Logger

	httpClient *http.Client
	cancel     context.CancelFunc
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*TokenValidator)

// WithValidatorLogger sets the validator's logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *TokenValidator) {
		v.logger = logger
	}
}

// WithKeySet sets a static key set, bypassing JWKS fetching.
func WithKeySet(keySet jwk.Set) ValidatorOption {
	return func(v *TokenValidator) {
		v.keySet = keySet
	}
}

// WithHTTPClient sets the HTTP client used for JWKS fetches.
func WithHTTPClient(client *http.Client) ValidatorOption {
	return func(v *TokenValidator) {
		v.httpClient = client
	}
}

// NewTokenValidator creates a validator from auth configuration. It
// performs an initial JWKS fetch so a misconfigured endpoint fails at
// startup rather than on the first request. Call Close to stop the
// background key refresh.
func NewTokenValidator(cfg config.AuthConfig, opts ...ValidatorOption) (*TokenValidator, error) {
	v := &TokenValidator{
		config:     cfg,
		results:    newResultCache(cfg.ResultCacheTTL.Duration(), cfg.ResultCacheSize),
		logger:     observability.NopLogger(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.keySet == nil {
		if cfg.JWKSURL == "" {
			return nil, errors.New("jwks url is required")
		}

		ctx, cancel := context.WithCancel(context.Background())
		v.cancel = cancel

		cache := jwk.NewCache(ctx)
		if err := cache.Register(cfg.JWKSURL,
			jwk.WithMinRefreshInterval(cfg.JWKSRefreshInterval.Duration()),
			jwk.WithHTTPClient(v.httpClient),
		); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to register jwks url: %w", err)
		}

		fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
		defer fetchCancel()
		if _, err := cache.Refresh(fetchCtx, cfg.JWKSURL); err != nil {
			cancel()
			return nil, fmt.Errorf("initial jwks fetch failed: %w", err)
		}

		v.keySet = jwk.NewCachedSet(cache, cfg.JWKSURL)

		v.logger.Info("jwks key set initialized",
			observability.String("url", cfg.JWKSURL),
			observability.Duration("refreshInterval", cfg.JWKSRefreshInterval.Duration()))
	}

	return v, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() error {
	if v.cancel != nil {
		v.cancel()
	}
	return nil
}

// Validate implements Validator.
func (v *TokenValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	if claims, err, ok := v.results.get(token); ok {
		return claims, err
	}

	claims, err := v.verify(ctx, token)
	v.results.put(token, claims, err)

	return claims, err
}

// ValidateWithAudiences implements Validator. The audience check runs
// after the cached base validation so per-route audience lists do not
// fragment the result cache.
func (v *TokenValidator) ValidateWithAudiences(ctx context.Context, token string, audiences []string) (*Claims, error) {
	claims, err := v.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	if len(audiences) > 0 && !claims.HasAudience(audiences...) {
		return nil, ErrInvalidAudience
	}

	return claims, nil
}

// verify parses the token and checks signature and standard claims.
func (v *TokenValidator) verify(ctx context.Context, token string) (*Claims, error) {
	parseOpts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.config.ClockSkew.Duration()),
	}
	if v.config.Issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.config.Issuer))
	}

	parsed, err := jwt.ParseString(token, parseOpts...)
	if err != nil {
		mapped := mapValidationError(err)
		v.logger.Debug("token validation failed",
			observability.Error(err))
		return nil, mapped
	}

	claims := claimsFromToken(parsed)

	if len(v.config.Audiences) > 0 && !claims.HasAudience(v.config.Audiences...) {
		return nil, ErrInvalidAudience
	}

	return claims, nil
}

// mapValidationError converts jwx errors into this package's reasons.
func mapValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotYetValid()):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return ErrInvalidIssuer
	case errors.Is(err, jwt.ErrInvalidAudience()):
		return ErrInvalidAudience
	case jwt.IsValidationError(err):
		return ErrMalformedToken
	default:
		return ErrInvalidSignature
	}
}

// CachedResults returns the number of cached validation outcomes.
func (v *TokenValidator) CachedResults() int {
	return v.results.len()
}

var _ Validator = (*TokenValidator)(nil)
