package sessionlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
)

func TestAdCounts(t *testing.T) {
	require := require.New(t)
	filled, viewable := adCounts(models.SessionEvent{Zones: []models.ZoneReport{
		{ZoneID: "content-1", Filled: true, ViewableImps: 1},
		{ZoneID: "content-1", Filled: true, ViewableImps: 1},
		{ZoneID: "content-2", Filled: true},
		{ZoneID: "content-3", ViewableImps: 4},
	}})
	require.EqualValues(2, filled)
	require.EqualValues(1, viewable)
}
