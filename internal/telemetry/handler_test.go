package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestHandlerAlwaysAcks(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewHandler(env.ing, nil)

	r := gin.New()
	r.POST("/api/telemetry/heartbeat", h.Heartbeat)
	r.POST("/api/telemetry/beacon", h.Beacon)
	r.GET("/admin/sessions/live", h.Live)

	post := func(path, body, ua string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
		req.Header.Set("User-Agent", ua)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post("/api/telemetry/heartbeat", `{"sid":"h1","max_scroll_pct":35,"zones":[{"zone_id":"content-1","filled":true}]}`, browserUA)
	require.Equal(http.StatusNoContent, w.Code)
	require.Empty(w.Body.String())

	for _, body := range []string{`not json`, `{"sid":""}`, `{}`} {
		w = post("/api/telemetry/beacon", body, browserUA)
		require.Equal(http.StatusNoContent, w.Code, body)
		require.Empty(w.Body.String())
	}

	live, err := env.ing.Live(context.Background())
	require.NoError(err)
	require.Len(live, 1)
	require.Equal(35, live[0].MaxScrollPct)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/sessions/live", nil))
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), `"sid":"h1"`)
}
