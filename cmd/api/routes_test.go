package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lead-recovery/internal/auth"
	"lead-recovery/internal/config"
	"lead-recovery/internal/httpapi"

	"github.com/gin-gonic/gin"
)

func TestRoutes_Gating(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr, err := auth.NewManager(config.AuthConfig{OperatorPassword: "op", ViewerPassword: "view", JWTSecret: "s"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	viewer, _, err := mgr.Issue(time.Now(), auth.RoleViewer, auth.RoleViewer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	registerRoutes(r, httpapi.Handlers{Auth: mgr}, auth.RequireSession(mgr), func(context.Context) error {
		return errors.New("db down")
	})

	cases := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/v1/dashboard", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/campaigns", viewer, http.StatusForbidden},
		{http.MethodPost, "/v1/sms", viewer, http.StatusForbidden},
		{http.MethodPost, "/v1/auth/logout", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, w.Code, w.Body.String())
		}
	}
}
