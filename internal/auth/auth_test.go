package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "i5e.identity"}

func TestParseValidToken(t *testing.T) {
	claims, err := Parse(signToken(t, jwt.MapClaims{
		"sub":    "user-1",
		"scopes": []string{ScopeRecommendationsRead},
	}), testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeRecommendationsRead))
	require.True(t, claims.CanRead("user-1"))
	require.False(t, claims.CanRead("user-2"))
}

func TestParseSpaceSeparatedScopes(t *testing.T) {
	claims, err := Parse(signToken(t, jwt.MapClaims{
		"sub":    "ops",
		"scopes": "recommendations:read recommendations:admin",
	}), testConfig)
	require.NoError(t, err)
	require.True(t, claims.CanRead("anyone"))
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"wrong secret": signWith(t, "other", jwt.MapClaims{"sub": "u", "iss": testConfig.Issuer, "exp": time.Now().Add(time.Hour).Unix()}),
		"wrong issuer": signWith(t, testConfig.Secret, jwt.MapClaims{"sub": "u", "iss": "elsewhere", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":      signWith(t, testConfig.Secret, jwt.MapClaims{"sub": "u", "iss": testConfig.Issuer, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    signWith(t, testConfig.Secret, jwt.MapClaims{"sub": "u", "iss": testConfig.Issuer}),
		"missing sub":  signWith(t, testConfig.Secret, jwt.MapClaims{"iss": testConfig.Issuer, "exp": time.Now().Add(time.Hour).Unix()}),
		"not a jwt":    "abc.def.ghi",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.Error(t, err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(RequireScope(ScopeRecommendationsRead)(next))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/recommendations/user/u1", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/user/u1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "u1"}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/recommendations/user/u1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "u1", "scopes": []string{ScopeRecommendationsRead}}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "u1", seen.Subject)

	rr = httptest.NewRecorder()
	NewMiddleware(testConfig).Wrap(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMiddlewareTrimsBearerToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	token := signToken(t, jwt.MapClaims{"sub": "u1", "scopes": []string{ScopeRecommendationsRead}})

	for _, header := range []string{"Bearer  " + token, "bearer " + token + " ", "Bearer \t" + token} {
		req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/user/u1", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		NewMiddleware(testConfig).Wrap(next).ServeHTTP(rr, req)
		require.Equal(t, http.StatusNoContent, rr.Code, header)
	}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["iss"] = testConfig.Issuer
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	return signWith(t, testConfig.Secret, claims)
}

func signWith(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
