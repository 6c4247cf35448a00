package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/explorations/internal/auth"
)

// --- モック ---

type mockParser struct {
	parseFn func(credential string) (string, error)
}

func (m *mockParser) Parse(credential string) (string, error) {
	return m.parseFn(credential)
}

func TestIdentityMiddleware_NoCookie(t *testing.T) {
	mw := NewIdentityMiddleware(&mockParser{
		parseFn: func(credential string) (string, error) {
			t.Fatal("parser should not be called without cookie")
			return "", nil
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/explorations/exp-1/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestIdentityMiddleware_InvalidCredential(t *testing.T) {
	mw := NewIdentityMiddleware(&mockParser{
		parseFn: func(credential string) (string, error) {
			return "", fmt.Errorf("invalid credential")
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/explorations/exp-1/chat", nil)
	req.AddCookie(&http.Cookie{Name: auth.IdentityCookieName, Value: "tampered"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestIdentityMiddleware_InjectsEmail(t *testing.T) {
	mw := NewIdentityMiddleware(&mockParser{
		parseFn: func(credential string) (string, error) {
			if credential != "valid-credential" {
				t.Errorf("credential = %q", credential)
			}
			return "alice@example.com", nil
		},
	})

	var gotEmail string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := EmailFromContext(r.Context())
		if err != nil {
			t.Fatalf("EmailFromContext: %v", err)
		}
		gotEmail = email
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/explorations/exp-1/chat", nil)
	req.AddCookie(&http.Cookie{Name: auth.IdentityCookieName, Value: "valid-credential"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotEmail != "alice@example.com" {
		t.Errorf("email = %q", gotEmail)
	}
}

func TestEmailFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := EmailFromContext(req.Context()); err == nil {
		t.Error("EmailFromContext = nil, want error")
	}
}
