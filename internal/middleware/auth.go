// Package middleware implements the node's credential check: every
// state-mutating request needs the shared node token and a declared role,
// and a fixed subset of routes is owner-only. Reads are open.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// Header names, unchanged from the original protocol.
const (
	TokenHeader = "x-mammoth-token"
	RoleHeader  = "x-mammoth-role"
)

// Caller roles.
const (
	RoleRead  = "read"
	RoleAgent = "agent"
	RoleOwner = "owner"
)

// OwnerOnlyRoutes is the set of "METHOD /path" signatures requiring owner.
var OwnerOnlyRoutes = map[string]bool{
	"POST /v1/claims/request":         true,
	"POST /v1/claims/execute":         true,
	"POST /v1/peers/add":              true,
	"POST /v1/peers/ping":             true,
	"POST /v1/peers/sync":             true,
	"POST /v1/agents/policy":          true,
	"POST /v1/agents/fund":            true,
	"POST /v1/p2p/snapshot":           true,
	"POST /v1/agents/wallet/address":  true,
	"POST /v1/crypto/deposits/verify": true,
}

type contextKey string

const ctxRoleKey contextKey = "role"

// NodeAuth wraps the full API mux. GET/HEAD pass through as role "read".
func NodeAuth(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), RoleRead)))
			return
		}

		got := r.Header.Get(TokenHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, `{"error":"unauthorized: invalid `+TokenHeader+`"}`, http.StatusUnauthorized)
			return
		}

		role := r.Header.Get(RoleHeader)
		if role != RoleAgent && role != RoleOwner {
			http.Error(w, `{"error":"forbidden: write route requires role=agent|owner"}`, http.StatusForbidden)
			return
		}

		if OwnerOnlyRoutes[r.Method+" "+r.URL.Path] && role != RoleOwner {
			http.Error(w, `{"error":"forbidden: owner role required"}`, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
	})
}

// RoleFromCtx returns the caller role, defaulting to "read".
func RoleFromCtx(ctx context.Context) string {
	if role, ok := ctx.Value(ctxRoleKey).(string); ok && role != "" {
		return role
	}
	return RoleRead
}

// WithRole returns a context carrying the caller role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxRoleKey, role)
}
