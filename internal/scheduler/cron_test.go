package scheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/streamarr/internal/controllers"
	"github.com/amaumene/streamarr/internal/metacache"
	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/store"
	"github.com/amaumene/streamarr/internal/utils"
)

type fakeActivity int

func (f fakeActivity) Active() int { return int(f) }

func TestSchedulesParse(t *testing.T) {
	for _, schedule := range []string{MetadataCleanSchedule, ProvidersCleanSchedule, CompactSchedule} {
		_, err := cron.ParseStandard(schedule)
		assert.NoError(t, err, schedule)
	}

	compact, err := cron.ParseStandard(CompactSchedule)
	require.NoError(t, err)
	next := compact.Next(time.Date(2024, 6, 3, 12, 0, 0, 0, time.Local))
	assert.Equal(t, time.Sunday, next.Weekday())
	assert.Equal(t, 4, next.Hour())
}

func TestMaintenanceSkippedWhileScraping(t *testing.T) {
	ctx := context.Background()
	logger := utils.NewTestLogger()

	s, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"), store.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Insert(ctx, models.KindMovie, []store.Row{
		{Time: 1, Settings: "a", IDs: models.IDs{IMDb: "tt0000001"}, Data: json.RawMessage(`{}`)},
	}))

	ctrl := controllers.NewCleanupController(metacache.New(s, nil, metacache.Options{}, logger), nil, time.Hour, 0, logger)

	NewScheduler(ctrl, fakeActivity(1), logger).runMetadataClean()
	count, err := s.Count(ctx, models.KindMovie)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "no clean while a scrape runs")

	NewScheduler(ctrl, fakeActivity(0), logger).runMetadataClean()
	count, err = s.Count(ctx, models.KindMovie)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(controllers.NewCleanupController(nil, nil, 0, 0, utils.NewTestLogger()), nil, utils.NewTestLogger())
	require.NoError(t, sched.Start())
	assert.Len(t, sched.cron.Entries(), 3)
	sched.Stop()
}
