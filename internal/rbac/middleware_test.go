package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"callcenter-pro/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(account, role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u", account, role))
		c.Next()
	}, RequireAccount(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serve("acct", RoleSuperAdmin, RoleOwner); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AnalystCannotTestTargets(t *testing.T) {
	if code := serve("acct", RoleAnalyst, CanTestTargets...); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve("acct", RoleAnalyst, CanReadReports...); code != 200 {
		t.Fatalf("expected 200 for reports, got %d", code)
	}
}

func TestRequireAccount(t *testing.T) {
	if code := serve("", RoleOwner, RoleOwner); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireAnyRole_MissingRole(t *testing.T) {
	if code := serve("acct", "", RoleOwner); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
