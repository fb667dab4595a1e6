package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/auth"
	"github.com/inkline/adengine/internal/models"
)

func TestAdminChain(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("test-secret", 1)

	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	admin := r.Group("/admin", JWT(jwtSvc), RequireRole(models.RoleAdmin))
	admin.GET("/ping", func(c *gin.Context) {
		email, _ := c.Get(ContextUserEmail)
		c.String(http.StatusOK, email.(string))
	})

	adminToken, err := jwtSvc.Generate(uuid.New(), "ops@example.com", string(models.RoleAdmin))
	require.NoError(err)
	viewerToken, err := jwtSvc.Generate(uuid.New(), "v@example.com", string(models.RoleViewer))
	require.NoError(err)

	cases := []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Token " + adminToken, http.StatusUnauthorized},
		{"Bearer garbage", http.StatusUnauthorized},
		{"Bearer " + viewerToken, http.StatusForbidden},
		{"Bearer " + adminToken, http.StatusOK},
		{"bearer " + adminToken, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(tc.code, w.Code, tc.header)
		if tc.code == http.StatusOK {
			require.Equal("ops@example.com", w.Body.String())
		}
	}
}

func TestCORS(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://dash.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(http.StatusNoContent, w.Code)
	require.Equal("https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(http.StatusOK, w.Code)
	require.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}
