package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

func authCookie(t *testing.T, m *AuthMiddleware, userID int64, role model.Role) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, userID, role)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("identity not in context")
		}
		if id.UserID != 42 || id.Role != model.RoleCustomer {
			t.Fatalf("identity from context = %+v, want user 42 customer", id)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(authCookie(t, m, 42, model.RoleCustomer))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.Middleware(next).ServeHTTP(w, r)

	if res := w.Result(); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_TamperedRole(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	cookie := authCookie(t, m, 7, model.RoleCustomer)
	cookie.Value = strings.Replace(cookie.Value, ".customer.", ".admin.", 1)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookie)

	m.Middleware(next).ServeHTTP(w, r)

	if res := w.Result(); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ForeignSecret(t *testing.T) {
	issuer := NewAuthMiddleware("one")
	verifier := NewAuthMiddleware("two")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(authCookie(t, issuer, 1, model.RoleAdmin))

	verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})).ServeHTTP(w, r)

	if res := w.Result(); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestOptional(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	tests := []struct {
		name     string
		cookie   *http.Cookie
		wantUser bool
	}{
		{name: "guest", cookie: nil, wantUser: false},
		{name: "customer", cookie: authCookie(t, m, 5, model.RoleCustomer), wantUser: true},
		{name: "garbage", cookie: &http.Cookie{Name: authCookieName, Value: "x.y.z"}, wantUser: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				_, ok := IdentityFromContext(r.Context())
				if ok != tt.wantUser {
					t.Fatalf("identity present = %v, want %v", ok, tt.wantUser)
				}
			})

			r := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}
			m.Optional(next).ServeHTTP(httptest.NewRecorder(), r)

			if !called {
				t.Fatalf("next handler was not called")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	tests := []struct {
		name   string
		role   model.Role
		status int
	}{
		{name: "admin", role: model.RoleAdmin, status: http.StatusOK},
		{name: "customer", role: model.RoleCustomer, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := m.Middleware(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			r.AddCookie(authCookie(t, m, 1, tt.role))
			h.ServeHTTP(w, r)

			if res := w.Result(); res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestClearAuthCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	w := httptest.NewRecorder()
	m.ClearAuthCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expired auth cookie, got %+v", cookies)
	}
}
