package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, []string{"dentist"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := RequireRole("dentist", "assistant")(handler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, []string{"reception"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	err := RequireRole("dentist", "assistant")(handler)(c)
	if err == nil {
		t.Fatal("expected error for unauthorized role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, []string{"admin"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := RequireRole("dentist")(handler)(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		uid := UserIDFromContext(c.Request().Context())
		roles := RolesFromContext(c.Request().Context())
		if uid != "dev-user" {
			t.Errorf("expected dev-user, got %s", uid)
		}
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected [admin] roles, got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-123")
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}
