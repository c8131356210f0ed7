package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oncosaferx/edge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuthorized(t *testing.T) {
	srv := New(nil, Options{AdminSecret: testSecret, SupabaseJWTSecret: testJWTSecret}, zap.NewNop())

	future := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		header map[string]string
		want   bool
	}{
		{"admin secret", map[string]string{"x-admin-secret": testSecret}, true},
		{"admin secret wrong case value", map[string]string{"x-admin-secret": "TEST-ADMIN-SECRET"}, false},
		{"nothing", nil, false},
		{"service role jwt", map[string]string{
			"Authorization": "Bearer " + signToken(t, testJWTSecret, jwt.SigningMethodHS256, jwt.MapClaims{"role": "service_role", "exp": future}),
		}, true},
		{"anon jwt", map[string]string{
			"Authorization": "Bearer " + signToken(t, testJWTSecret, jwt.SigningMethodHS256, jwt.MapClaims{"role": "anon", "exp": future}),
		}, false},
		{"expired jwt", map[string]string{
			"Authorization": "Bearer " + signToken(t, testJWTSecret, jwt.SigningMethodHS256, jwt.MapClaims{"role": "service_role", "exp": time.Now().Add(-time.Hour).Unix()}),
		}, false},
		{"foreign signature", map[string]string{
			"Authorization": "Bearer " + signToken(t, "another-secret-another-secret-another", jwt.SigningMethodHS256, jwt.MapClaims{"role": "service_role"}),
		}, false},
		{"wrong algorithm", map[string]string{
			"Authorization": "Bearer " + signToken(t, testJWTSecret, jwt.SigningMethodHS512, jwt.MapClaims{"role": "service_role"}),
		}, false},
		{"not bearer", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, srv.authorized(req))
		})
	}
}

func TestAuthorized_JWTDisabledWithoutSecret(t *testing.T) {
	srv := New(nil, Options{AdminSecret: testSecret}, zap.NewNop())

	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, jwt.SigningMethodHS256, jwt.MapClaims{"role": "service_role"}))
	assert.False(t, srv.authorized(req))
}

func TestValidateServiceToken(t *testing.T) {
	role, err := ValidateServiceToken(testJWTSecret, signToken(t, testJWTSecret, jwt.SigningMethodHS256, jwt.MapClaims{"role": "service_role"}))
	require.NoError(t, err)
	assert.Equal(t, "service_role", role)

	_, err = ValidateServiceToken(testJWTSecret, signToken(t, testJWTSecret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}))
	assert.Error(t, err)

	_, err = ValidateServiceToken(testJWTSecret, "not.a.jwt")
	assert.Error(t, err)
}

func TestMCPRouteRequiresAuth(t *testing.T) {
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reached := false
	mcpStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	srv := New(db, Options{AdminSecret: testSecret, MCP: mcpStub}, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	w := serve(srv, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)

	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(AdminSecretHeader, testSecret)
	w = serve(srv, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)
}

func TestMCPRouteAbsentByDefault(t *testing.T) {
	srv, _ := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(AdminSecretHeader, testSecret)
	w := serve(srv, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
