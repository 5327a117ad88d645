package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestClaimsIdentity(t *testing.T) {
	assert.Equal(t, "gate-a", Claims{Subject: "u1", Name: "Alice", PreferredUsername: "gate-a"}.Identity())
	assert.Equal(t, "Alice", Claims{Subject: "u1", Name: "Alice"}.Identity())
	assert.Equal(t, "u1", Claims{Subject: "u1"}.Identity())
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier(testSecret)
	ctx := context.Background()

	raw := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                "user-1",
		"preferred_username": "gate-a",
		"exp":                time.Now().Add(time.Hour).Unix(),
	})
	claims, err := v.Verify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "gate-a", claims.Identity())

	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = v.Verify(ctx, expired)
	assert.Error(t, err)

	wrongAlg := signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"sub": "user-1"})
	_, err = v.Verify(ctx, wrongAlg)
	assert.Error(t, err)

	_, err = NewHMACVerifier("other").Verify(ctx, raw)
	assert.Error(t, err)

	anonymous := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"aud": "x"})
	_, err = v.Verify(ctx, anonymous)
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	tok, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestMiddleware(t *testing.T) {
	log := logger.NewWithWriter(io.Discard)
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ScannerIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(NewHMACVerifier(testSecret), log)(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkin/scan", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/checkin/scan", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/checkin/scan", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "name": "Door 3"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "Door 3", seen)
}

func TestStreamMiddleware_AcceptsQueryToken(t *testing.T) {
	log := logger.NewWithWriter(io.Discard)
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ScannerIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "preferred_username": "dashboard"})
	verifier := NewHMACVerifier(testSecret)

	rec := httptest.NewRecorder()
	StreamMiddleware(verifier, log)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkin/stream?access_token="+token, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "dashboard", seen)

	rec = httptest.NewRecorder()
	StreamMiddleware(verifier, log)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkin/stream?access_token=forged", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	StreamMiddleware(verifier, log)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkin/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The plain middleware ignores query tokens.
	rec = httptest.NewRecorder()
	Middleware(verifier, log)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkin/scan?access_token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_NilVerifierPassesThrough(t *testing.T) {
	called := false
	h := Middleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Empty(t, ScannerIdentity(r.Context()))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
