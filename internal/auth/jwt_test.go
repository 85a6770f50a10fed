package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lead-recovery/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func newManager(t *testing.T, cfg config.AuthConfig) *Manager {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "secret"
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestLoginAndVerify(t *testing.T) {
	m := newManager(t, config.AuthConfig{OperatorPassword: "op-pass", ViewerPassword: "view-pass", JWTIssuer: "lead-recovery", SessionTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()

	s, err := m.Login("op-pass", now)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.Role != RoleOperator || !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected session: %+v", s)
	}
	claims, err := m.Verify(s.Token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != RoleOperator || claims.Role != RoleOperator {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	v, err := m.Login("view-pass", now)
	if err != nil || v.Role != RoleViewer {
		t.Fatalf("expected viewer session, got %+v %v", v, err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	m := newManager(t, config.AuthConfig{OperatorPassword: "op-pass"})
	for _, p := range []string{"", "nope", "op-pass "} {
		if _, err := m.Login(p, time.Now()); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("password %q: expected ErrInvalidCredentials, got %v", p, err)
		}
	}
}

func TestLoginAcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	m := newManager(t, config.AuthConfig{OperatorPassword: string(hash)})
	if _, err := m.Login("hunter2", time.Now()); err != nil {
		t.Fatalf("expected bcrypt match, got %v", err)
	}
	if _, err := m.Login(string(hash), time.Now()); err == nil {
		t.Fatalf("hash itself must not be accepted as password")
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newManager(t, config.AuthConfig{OperatorPassword: "p", SessionTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, _, err := m.Issue(now, "operator", RoleOperator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	other := newManager(t, config.AuthConfig{OperatorPassword: "p", JWTSecret: "other"})
	if _, err := other.Verify(tok, now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestRequireSession_CookieAndBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t, config.AuthConfig{OperatorPassword: "p"})
	tok, _, err := m.Issue(time.Now(), "operator", RoleOperator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", RequireSession(m), func(c *gin.Context) {
		role, _ := Role(c.Request.Context())
		c.String(http.StatusOK, role)
	})

	cookieReq := httptest.NewRequest(http.MethodGet, "/x", nil)
	cookieReq.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, cookieReq)
	if w.Code != http.StatusOK || w.Body.String() != RoleOperator {
		t.Fatalf("cookie: expected 200 operator, got %d %q", w.Code, w.Body.String())
	}

	bearerReq := httptest.NewRequest(http.MethodGet, "/x", nil)
	bearerReq.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, bearerReq)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing: expected 401, got %d", w.Code)
	}
}

func TestSessionCookieHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/login", nil)

	SetSessionCookie(c, "tok", 24*time.Hour, true)
	res := w.Result()
	cookies := res.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != SessionCookie || !ck.HttpOnly || !ck.Secure || ck.MaxAge != 86400 {
		t.Fatalf("unexpected cookie: %+v", ck)
	}
}
