package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/pkg/storage"
)

func statsRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/stats", NewHandler(store, nil, nil).GetRange)
	return r
}

func TestGetRange(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := NewMemoryStore()
	for _, day := range []string{"2026-10-01", "2026-10-02", "2026-10-09"} {
		require.NoError(store.Apply(ctx, day, func(d *models.DailyStats) {
			MergeSession(d, models.SessionEvent{SessionID: day, TimeOnPageMs: 10_000,
				Zones: []models.ZoneReport{{ZoneID: "content-1", Filled: true, ViewableImps: 1}}}, nil)
		}))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats?from=2026-10-01&to=2026-10-07", nil)
	statsRouter(store).ServeHTTP(w, req)
	require.Equal(http.StatusOK, w.Code)

	var body struct {
		Success bool          `json:"success"`
		Data    RangeResponse `json:"data"`
	}
	require.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	require.True(body.Success)
	require.Equal(2, body.Data.Days)
	require.EqualValues(2, body.Data.Summary.Sessions)
	require.InDelta(100, body.Data.Summary.ViewabilityPct, 1e-9)
	require.EqualValues(2, body.Data.Totals.Zones["content-1"].Filled)
}

func TestGetRangeValidation(t *testing.T) {
	r := statsRouter(NewMemoryStore())
	for _, q := range []string{
		"from=yesterday",
		"from=2026-10-05&to=2026-10-01",
		"from=2020-01-01&to=2026-01-01",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats?"+q, nil))
		require.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

type fakeLinker map[string]string

func (f fakeLinker) PresignGet(_ context.Context, key string) (string, error) {
	if u, ok := f[key]; ok {
		return u, nil
	}
	return "", storage.ErrNotFound
}

func TestGetArchived(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(NewMemoryStore(), nil, nil).WithArchive(fakeLinker{
		ArchiveKey("2026-06-01"): "https://archive.example/2026-06-01.json?sig=x",
	})
	r.GET("/admin/stats/archive", h.GetArchived)

	cases := map[string]int{
		"day=2026-06-01": http.StatusOK,
		"day=2026-06-02": http.StatusNotFound,
		"day=june":       http.StatusBadRequest,
	}
	for q, code := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats/archive?"+q, nil))
		require.Equal(code, w.Code, q)
	}

	bare := gin.New()
	bare.GET("/admin/stats/archive", NewHandler(NewMemoryStore(), nil, nil).GetArchived)
	w := httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats/archive?day=2026-06-01", nil))
	require.Equal(http.StatusNotFound, w.Code)
}
