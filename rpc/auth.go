package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Admin scopes carried in the "scope" claim of an HS256 bearer token.
const (
	ScopeLedgerMint  = "ledger:mint"
	ScopeAdminPauses = "admin:pauses"
	adminTokenLeeway = 30 * time.Second
	adminScopeClaim  = "scope"
	anonymousSubject = "admin"
)

// requireScope validates the bearer token on r and returns its subject.
func (s *Server) requireScope(r *http.Request, scope string) (string, *rpcFailure) {
	secret := strings.TrimSpace(s.cfg.AdminSecret)
	if secret == "" {
		return "", &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "admin authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "missing bearer token"}
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithLeeway(adminTokenLeeway), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "invalid token"}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "invalid token"}
	}
	if !hasScope(claims[adminScopeClaim], scope) {
		return "", &rpcFailure{status: http.StatusForbidden, code: codeForbidden, message: "insufficient scope", data: scope}
	}
	subject, _ := claims.GetSubject()
	if strings.TrimSpace(subject) == "" {
		subject = anonymousSubject
	}
	return subject, nil
}

// hasScope accepts either a space separated string or a list of strings.
func hasScope(raw interface{}, want string) bool {
	switch v := raw.(type) {
	case string:
		for _, scope := range strings.Fields(v) {
			if scope == want {
				return true
			}
		}
	case []interface{}:
		for _, entry := range v {
			if scope, ok := entry.(string); ok && scope == want {
				return true
			}
		}
	}
	return false
}

// IssueAdminToken mints an HS256 token for the given scopes. escrowctl and
// tests use it; operators can equally mint tokens with any JWT tool.
func IssueAdminToken(secret, subject string, ttl time.Duration, scopes ...string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("rpc: admin secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":           subject,
		"iat":           now.Unix(),
		"exp":           now.Add(ttl).Unix(),
		adminScopeClaim: strings.Join(scopes, " "),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
