package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/shopward/api/internal/domain"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
	seen  []string
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.seen = append(s.seen, idToken)
	return s.token, s.err
}

func verifiedToken(uid string, claims map[string]any) *firebaseauth.Token {
	return &firebaseauth.Token{UID: uid, Claims: claims}
}

// capturingHandler records the identity that reached the protected handler.
type capturingHandler struct {
	identity *Identity
	called   bool
}

func (h *capturingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.identity, _ = IdentityFromContext(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func serveProtected(t *testing.T, authn *Authenticator, header string, roles ...domain.Role) (*capturingHandler, *httptest.ResponseRecorder) {
	t.Helper()
	inner := &capturingHandler{}
	handler := authn.RequireAuth(roles...)(inner)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return inner, rec
}

func TestRequireAuthStoresIdentity(t *testing.T) {
	verifier := &stubVerifier{token: verifiedToken("u-1", map[string]any{
		"role":  "packer",
		"email": "packer@example.com",
	})}
	authn := NewAuthenticator(verifier)

	inner, rec := serveProtected(t, authn, "Bearer token-1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204\n%s", rec.Code, rec.Body.String())
	}
	if !inner.called || inner.identity == nil {
		t.Fatal("handler must run with an identity in context")
	}
	if inner.identity.UID != "u-1" || inner.identity.Role != domain.RolePacker || inner.identity.Email != "packer@example.com" {
		t.Fatalf("identity = %+v", inner.identity)
	}
	if len(verifier.seen) != 1 || verifier.seen[0] != "token-1" {
		t.Fatalf("verifier saw %v", verifier.seen)
	}
}

func TestRequireAuthDefaultsUnknownRoleToUser(t *testing.T) {
	verifier := &stubVerifier{token: verifiedToken("u-2", map[string]any{"role": "superuser"})}
	inner, rec := serveProtected(t, NewAuthenticator(verifier), "Bearer t")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if inner.identity.Role != domain.RoleUser {
		t.Fatalf("role = %q, want user fallback", inner.identity.Role)
	}
}

func TestRequireAuthBearerExtraction(t *testing.T) {
	verifier := &stubVerifier{token: verifiedToken("u-3", nil)}
	authn := NewAuthenticator(verifier)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer   ", http.StatusUnauthorized},
		{"case-insensitive scheme", "bearer tok", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inner, rec := serveProtected(t, authn, tc.header)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want != http.StatusNoContent && inner.called {
				t.Fatal("handler must not run without a bearer token")
			}
		})
	}
}

func TestRequireAuthDistinguishesExpiredTokens(t *testing.T) {
	expired := &stubVerifier{err: errors.New("ID token has expired at 1700000000")}
	_, rec := serveProtected(t, NewAuthenticator(expired), "Bearer stale")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := rec.Body.String(); !containsField(body, "token_expired") {
		t.Fatalf("body = %s, want token_expired code", body)
	}

	invalid := &stubVerifier{err: errors.New("signature mismatch")}
	_, rec = serveProtected(t, NewAuthenticator(invalid), "Bearer bad")
	if body := rec.Body.String(); !containsField(body, "token_invalid") {
		t.Fatalf("body = %s, want token_invalid code", body)
	}
}

func TestRequireAuthRoleGate(t *testing.T) {
	packer := &stubVerifier{token: verifiedToken("u-4", map[string]any{"role": "packer"})}
	inner, rec := serveProtected(t, NewAuthenticator(packer), "Bearer t", domain.RoleAdmin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if inner.called {
		t.Fatal("handler must not run for an insufficient role")
	}

	// Admin passes every role gate.
	admin := &stubVerifier{token: verifiedToken("root", map[string]any{"role": "admin"})}
	_, rec = serveProtected(t, NewAuthenticator(admin), "Bearer t", domain.RolePacker)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d, want 204", rec.Code)
	}
}

func containsField(body, code string) bool {
	return strings.Contains(body, `"`+code+`"`)
}
