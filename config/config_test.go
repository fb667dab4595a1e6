package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)
	t.Setenv("TIMEZONE", "UTC")
	cfg, err := Load()
	require.NoError(err)
	require.Equal(5*time.Second, cfg.Ingest.RateWindow)
	require.Equal(60*time.Second, cfg.Ingest.StaleAfter)
	require.Equal(300, cfg.Ingest.ArchiveCap)
	require.Equal(2*time.Hour, cfg.Ingest.ArchiveTTL)
	require.Equal(20, cfg.Optimizer.MinSessions)
	require.Equal(3, cfg.Optimizer.MaxChanges)
	require.Equal(90, cfg.Retention.StatsDays)
	require.Equal(30, cfg.Retention.SnapshotDays)
	require.Equal(90, cfg.Optimizer.LogCap)
	require.False(cfg.ClickHouse.Enabled())
	require.False(cfg.AWS.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	require := require.New(t)
	t.Setenv("TIMEZONE", "America/New_York")
	t.Setenv("INGEST_STALE_AFTER", "90")
	t.Setenv("OPTIMIZER_TIMEOUT", "30s")
	t.Setenv("AWS_S3_ARCHIVE_BUCKET", "cold")
	t.Setenv("DATABASE_URL", "postgres://db/adengine")
	cfg, err := Load()
	require.NoError(err)
	require.Equal("America/New_York", cfg.Location.String())
	require.Equal(90*time.Second, cfg.Ingest.StaleAfter)
	require.Equal(30*time.Second, cfg.Optimizer.Timeout)
	require.True(cfg.AWS.Enabled())
	require.Equal("postgres://db/adengine", cfg.Database.DSN())

	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = Load()
	require.Error(err)
}
