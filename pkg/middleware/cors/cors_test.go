package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", origin)
	r.ServeHTTP(w, req)
	return w
}

func TestAllowedOrigin(t *testing.T) {
	w := serve([]string{"https://admin.example/"}, "https://admin.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://admin.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRejectedOrigin(t *testing.T) {
	w := serve([]string{"https://admin.example"}, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEmptyListReflectsOrigin(t *testing.T) {
	w := serve(nil, "https://any.example")
	assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}
