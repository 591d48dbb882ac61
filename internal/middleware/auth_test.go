package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgegate/edgegate/internal/auth"
	"github.com/edgegate/edgegate/internal/observability"
)

// stubValidator accepts a single known token.
type stubValidator struct {
	token  string
	claims *auth.Claims
	err    error
}

func (s *stubValidator) Validate(_ context.Context, token string) (*auth.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != s.token {
		return nil, auth.ErrInvalidSignature
	}
	return s.claims, nil
}

func (s *stubValidator) ValidateWithAudiences(ctx context.Context, token string, audiences []string) (*auth.Claims, error) {
	claims, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(audiences) > 0 && !claims.HasAudience(audiences...) {
		return nil, auth.ErrInvalidAudience
	}
	return claims, nil
}

func newAuthHandler(validator auth.Validator, audiences []string) http.Handler {
	mw := RouteAuth("orders", validator, "", "", audiences, nil, observability.NopLogger())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRouteAuthValidToken(t *testing.T) {
	validator := &stubValidator{
		token:  "good-token",
		claims: &auth.Claims{Subject: "user-1", Audience: []string{"edgegate"}},
	}

	var gotSubject string
	mw := RouteAuth("orders", validator, "", "", nil, nil, observability.NopLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
			gotSubject = claims.Subject
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotSubject)
}

func TestRouteAuthMissingToken(t *testing.T) {
	handler := newAuthHandler(&stubValidator{token: "good-token"}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Contains(t, rec.Body.String(), "authentication required")
}

func TestRouteAuthInvalidToken(t *testing.T) {
	handler := newAuthHandler(&stubValidator{token: "good-token"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouteAuthWrongAudience(t *testing.T) {
	validator := &stubValidator{
		token:  "good-token",
		claims: &auth.Claims{Subject: "user-1", Audience: []string{"other"}},
	}
	handler := newAuthHandler(validator, []string{"edgegate"})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{auth.ErrMissingToken, "missing_token"},
		{auth.ErrTokenExpired, "expired"},
		{auth.ErrInvalidIssuer, "invalid_issuer"},
		{auth.ErrInvalidAudience, "invalid_audience"},
		{auth.ErrInvalidSignature, "invalid_signature"},
		{auth.ErrMalformedToken, "malformed"},
		{context.DeadlineExceeded, "invalid"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, authFailureReason(tt.err), tt.want)
	}
}
