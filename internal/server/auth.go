package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	AdminSecretHeader = "X-Admin-Secret"
	serviceRole       = "service_role"
)

// authorized accepts the shared admin secret, or a service-role JWT signed with
// the Supabase JWT secret when one is configured. An empty admin secret never
// matches.
func (s *Server) authorized(r *http.Request) bool {
	if s.opts.AdminSecret != "" {
		got := r.Header.Get(AdminSecretHeader)
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminSecret)) == 1 {
			return true
		}
	}

	if s.opts.SupabaseJWTSecret == "" {
		return false
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	role, err := ValidateServiceToken(s.opts.SupabaseJWTSecret, strings.TrimPrefix(authHeader, "Bearer "))
	return err == nil && role == serviceRole
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			s.log.Warn("rejected unauthenticated request", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateServiceToken verifies an HS256 token and returns its role claim.
func ValidateServiceToken(secret, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to validate token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return "", fmt.Errorf("role claim missing")
	}
	return role, nil
}
