package sessionlog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
)

func archived(id, day string) models.ArchivedSession {
	return models.ArchivedSession{SessionEvent: models.SessionEvent{SessionID: id}, Day: day}
}

func TestWriterFlushesOnShutdown(t *testing.T) {
	require := require.New(t)
	log := NewMemoryLog(3)
	w := NewWriter(log, 100, 10, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for k := 0; k < 25; k++ {
		require.NoError(w.Write(ctx, archived(fmt.Sprintf("s%d", k), "2026-10-01")))
	}
	cancel()
	<-done

	list, err := log.ListByDay(context.Background(), "2026-10-01", 0)
	require.NoError(err)
	require.Len(list, 25)
	require.Equal("s0", list[0].SessionID)
}

func TestWriterBufferFull(t *testing.T) {
	w := NewWriter(NewMemoryLog(1), 1, 10, time.Hour, nil)
	require.NoError(t, w.Write(context.Background(), archived("a", "2026-10-01")))
	require.ErrorIs(t, w.Write(context.Background(), archived("b", "2026-10-01")), ErrBufferFull)
}

func TestMemoryLogKeepsRecentDays(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	log := NewMemoryLog(2)
	for _, day := range []string{"2026-10-01", "2026-10-02", "2026-10-03"} {
		require.NoError(log.Write(ctx, archived("x", day)))
	}
	old, err := log.ListByDay(ctx, "2026-10-01", 0)
	require.NoError(err)
	require.Empty(old)
	kept, err := log.ListByDay(ctx, "2026-10-03", 0)
	require.NoError(err)
	require.Len(kept, 1)
}

func TestListDayHandler(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	log := NewMemoryLog(2)
	require.NoError(log.Write(context.Background(), archived("abc", "2026-10-01")))

	r := gin.New()
	r.GET("/admin/sessions/archive", NewHandler(log, nil, nil).ListDay)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/sessions/archive?day=2026-10-01", nil))
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), `"sid":"abc"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/sessions/archive?day=01-10-2026", nil))
	require.Equal(http.StatusBadRequest, w.Code)
}
