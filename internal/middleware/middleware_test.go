package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/internal/service"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
	"github.com/noah-isme/batch-admin-api/pkg/middleware/requestid"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/protected", handlers...)
	return r
}

func serve(r http.Handler, target, auth string) int {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWT(t *testing.T) {
	r := newRouter(JWT(stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleTrainer}}))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", "Basic good"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", "Bearer bad"))
	assert.Equal(t, http.StatusOK, serve(r, "/protected", "Bearer good"))
	assert.Equal(t, http.StatusOK, serve(r, "/protected?access_token=good", ""))
}

func TestRequireRoles(t *testing.T) {
	trainer := stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleTrainer}}
	admin := stubValidator{claims: &models.JWTClaims{UserID: "u2", Role: models.RoleAdmin}}

	r := newRouter(JWT(trainer), RequireRoles(models.RoleAdmin, models.RoleCoordinator))
	assert.Equal(t, http.StatusForbidden, serve(r, "/protected", "Bearer good"))

	r = newRouter(JWT(admin), RequireRoles(models.RoleAdmin, models.RoleCoordinator))
	assert.Equal(t, http.StatusOK, serve(r, "/protected", "Bearer good"))

	r = newRouter(RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", ""))
}

func TestResponseMetaCarriesRequestIDAndCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/cached", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		meta["scratch"] = 1
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/cached", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Equal(t, "req-42", meta[requestIDKey])
}

func TestExtractMetaWithoutValues(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetMeta(c, "detail", "stale")
	assert.Equal(t, map[string]interface{}{"detail": "stale"}, ExtractMeta(c))
}

func TestMetricsMiddlewareObservesRouteTemplate(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/batches/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "/batches/b-1", ""))
	assert.Equal(t, http.StatusOK, serve(r, "/health", ""))
	assert.Equal(t, http.StatusNotFound, serve(r, "/nope/123", ""))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/batches/:id",status="200"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, `path="/health"`)
	assert.NotContains(t, body, `b-1`)
}
