package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"village_market/internal/models"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeResolver map[string]*models.Session

func (f fakeResolver) ResolveSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "broken" {
		return nil, errors.New("db down")
	}
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, services.ErrUnauthorized
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	resolver := fakeResolver{
		"customer-token": {UserID: "u1", Role: models.Customer},
		"admin-token":    {UserID: "a1", Role: models.Admin},
	}
	r := gin.New()
	r.Use(Session(resolver))
	r.GET("/open", func(c *gin.Context) {
		if s := CurrentSession(c); s != nil {
			c.String(http.StatusOK, s.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET("/me", RequireSession(), func(c *gin.Context) { c.String(http.StatusOK, CurrentSession(c).UserID) })
	r.GET("/admin", RequireRole(models.Admin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSession_TokenSources(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	assert.Equal(t, "u1", do(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "admin-token"})
	assert.Equal(t, "a1", do(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/open?token=customer-token", nil)
	assert.Equal(t, "u1", do(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, "anonymous", do(r, req).Body.String())
}

func TestSession_ResolverFailureIs500(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/open?token=broken", nil)
	assert.Equal(t, http.StatusInternalServerError, do(r, req).Code)
}

func TestRequireSession(t *testing.T) {
	r := newRouter()
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newRouter()
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/admin", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	assert.Equal(t, http.StatusForbidden, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	assert.Equal(t, http.StatusNoContent, do(r, req).Code)
}
