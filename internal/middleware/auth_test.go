package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testToken = "test-node-token"

func authedHandler(t *testing.T, roles *[]string) http.Handler {
	t.Helper()
	return NodeAuth(testToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*roles = append(*roles, RoleFromCtx(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))
}

func do(h http.Handler, method, path, token, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Read path
// ---------------------------------------------------------------------------

func TestGetPassesWithoutCredentials(t *testing.T) {
	var roles []string
	h := authedHandler(t, &roles)

	rec := do(h, http.MethodGet, "/v1/agents", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if len(roles) != 1 || roles[0] != RoleRead {
		t.Errorf("roles = %v, want [read]", roles)
	}
}

// ---------------------------------------------------------------------------
// Write path
// ---------------------------------------------------------------------------

func TestWriteRequiresTokenAndRole(t *testing.T) {
	var roles []string
	h := authedHandler(t, &roles)

	// 1. missing token
	if rec := do(h, http.MethodPost, "/v1/agents/register", "", RoleAgent); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	// 2. wrong token
	if rec := do(h, http.MethodPost, "/v1/agents/register", "wrong", RoleAgent); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
	// 3. valid token but no declared role
	if rec := do(h, http.MethodPost, "/v1/agents/register", testToken, ""); rec.Code != http.StatusForbidden {
		t.Errorf("no role: status = %d", rec.Code)
	}
	// 4. read role cannot write
	if rec := do(h, http.MethodPost, "/v1/agents/register", testToken, RoleRead); rec.Code != http.StatusForbidden {
		t.Errorf("read role write: status = %d", rec.Code)
	}
	// 5. agent role writes fine
	if rec := do(h, http.MethodPost, "/v1/agents/register", testToken, RoleAgent); rec.Code != http.StatusOK {
		t.Errorf("agent write: status = %d", rec.Code)
	}
	if len(roles) != 1 || roles[0] != RoleAgent {
		t.Errorf("roles = %v", roles)
	}
}

func TestOwnerOnlyRoutes(t *testing.T) {
	var roles []string
	h := authedHandler(t, &roles)

	for route := range OwnerOnlyRoutes {
		if rec := do(h, http.MethodPost, route[len("POST "):], testToken, RoleAgent); rec.Code != http.StatusForbidden {
			t.Errorf("%s with agent role: status = %d", route, rec.Code)
		}
		if rec := do(h, http.MethodPost, route[len("POST "):], testToken, RoleOwner); rec.Code != http.StatusOK {
			t.Errorf("%s with owner role: status = %d", route, rec.Code)
		}
	}
}
