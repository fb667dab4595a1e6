package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
)

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(Defaults()),
		"redis":  NewRedisStore(client),
	}
}

func TestStoreVersioning(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			cur, err := st.Get(ctx)
			require.NoError(err)
			require.EqualValues(0, cur.Version)
			require.Equal(1200, cur.MinSpacingPx)
			require.Len(cur.Formats, len(models.Formats))

			next := cur.Clone()
			next.MinSpacingPx = 1300
			stored, err := st.Set(ctx, next)
			require.NoError(err)
			require.EqualValues(1, stored.Version)
			require.False(stored.UpdatedAt.IsZero())

			stale := cur.Clone()
			stale.MaxZonesPerPost = 5
			_, err = st.Set(ctx, stale)
			require.ErrorIs(err, ErrConcurrentMutation)

			got, err := st.Get(ctx)
			require.NoError(err)
			require.Equal(1300, got.MinSpacingPx)
			require.Equal(3, got.MaxZonesPerPost)
		})
	}
}

func TestStoreConcurrentWritersOneWins(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()
			cur, err := st.Get(ctx)
			require.NoError(err)

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for k := 0; k < 8; k++ {
				wg.Add(1)
				go func(k int) {
					defer wg.Done()
					next := cur.Clone()
					next.GateDwellSeconds = k
					if _, err := st.Set(ctx, next); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(k)
			}
			wg.Wait()
			require.Equal(1, wins)
		})
	}
}

func TestValidate(t *testing.T) {
	require := require.New(t)
	require.NoError(Validate(Defaults()))

	s := Defaults()
	s.MinSpacingPx = 10
	require.ErrorIs(Validate(s), ErrInvalid)

	s = Defaults()
	s.Formats = map[string]bool{"skyscraper": true}
	require.ErrorIs(Validate(s), ErrInvalid)

	s = Defaults()
	s.Formats = map[string]bool{models.FormatMediumRectangle: false}
	require.ErrorIs(Validate(s), ErrInvalid)
}

func TestPutHandler(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	st := NewMemoryStore(Defaults())
	h := NewHandler(st, nil)
	r := gin.New()
	r.GET("/admin/settings", h.Get)
	r.PUT("/admin/settings", h.Put)

	put := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/admin/settings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	body := `{"enabled":true,"formats":{"medium-rectangle":true},"min_spacing_px":900,"max_zones_per_post":4,"gate_scroll_pct":10,"gate_dwell_seconds":3,"version":0}`
	w := put(body)
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	require.Contains(w.Body.String(), `"version":1`)

	w = put(body)
	require.Equal(http.StatusConflict, w.Code)

	w = put(`{"min_spacing_px":5,"version":1}`)
	require.Equal(http.StatusBadRequest, w.Code)

	got, err := st.Get(context.Background())
	require.NoError(err)
	require.Equal(900, got.MinSpacingPx)
	require.False(got.Formats[models.FormatLeaderboard])
}
