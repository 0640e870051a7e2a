package agg_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l10dash/l10dash/pkg/agg"
	"github.com/l10dash/l10dash/pkg/config"
	"github.com/l10dash/l10dash/pkg/store"
	"github.com/l10dash/l10dash/pkg/timeutil"
)

func setupEngine(t *testing.T) (*agg.Engine, store.Store, *timeutil.Zones) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	zones, err := timeutil.LoadZones("Asia/Taipei", "America/Los_Angeles")
	require.NoError(t, err)

	return agg.NewEngine(log, st, zones), st, zones
}

func insertResult(
	t *testing.T, st store.Store,
	folder, archive, model, station, outcome string,
	observedAt time.Time,
) {
	t.Helper()

	inserted, err := st.InsertResult(context.Background(), &store.TestResult{
		FolderName:  folder,
		ArchiveName: archive,
		Model:       model,
		Serial:      "1830326000001",
		Outcome:     outcome,
		Station:     station,
		ObservedAt:  observedAt,
		IngestedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestSummarize_EmptyWindow(t *testing.T) {
	engine, _, _ := setupEngine(t)

	summary, err := engine.Summarize(context.Background(), store.TimeRange{})
	require.NoError(t, err)

	assert.EqualValues(t, 0, summary.Total)
	assert.EqualValues(t, 0, summary.PassRate)
	assert.Empty(t, summary.ByHour)
	assert.Empty(t, summary.ByStation)
	assert.Empty(t, summary.ByModel)
}

func TestSummarize_CountsAndRates(t *testing.T) {
	engine, st, _ := setupEngine(t)

	base := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	insertResult(t, st, "104732", "a.zip", "ModelX", "ST2",
		store.OutcomePass, base)
	insertResult(t, st, "104732", "b.zip", "ModelX", "ST2",
		store.OutcomeFail, base.Add(10*time.Minute))
	insertResult(t, st, "104801", "c.zip", "ModelY", "ST1",
		store.OutcomePass, base.Add(2*time.Hour))

	summary, err := engine.Summarize(context.Background(), store.TimeRange{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, summary.Total)
	assert.EqualValues(t, 2, summary.Passed)
	assert.EqualValues(t, 1, summary.Failed)
	assert.InDelta(t, 2.0/3.0, summary.PassRate, 1e-9)

	assert.Equal(t, agg.OutcomeCount{Passed: 1, Failed: 1}, summary.ByStation["ST2"])
	assert.Equal(t, agg.OutcomeCount{Passed: 1}, summary.ByStation["ST1"])
	assert.Equal(t, agg.OutcomeCount{Passed: 1, Failed: 1}, summary.ByModel["ModelX"])
	assert.Equal(t, agg.OutcomeCount{Passed: 1}, summary.ByModel["ModelY"])

	// 18:00 and 18:10 UTC share the 10:00 Pacific hour; 20:00 UTC is
	// the 12:00 hour.
	require.Len(t, summary.ByHour, 2)
	assert.Equal(t, agg.HourBucket{Hour: "2024-01-15 10:00", Count: 2}, summary.ByHour[0])
	assert.Equal(t, agg.HourBucket{Hour: "2024-01-15 12:00", Count: 1}, summary.ByHour[1])
}

func TestSummarize_WindowRestrictsRows(t *testing.T) {
	engine, st, zones := setupEngine(t)

	// One row inside the Pacific 2024-01-15 day, one the day after.
	inside := time.Date(2024, 1, 15, 18, 31, 0, 0, time.UTC) // 10:31 PST
	outside := time.Date(2024, 1, 16, 18, 31, 0, 0, time.UTC)

	insertResult(t, st, "104732", "in.zip", "ModelX", "ST2",
		store.OutcomePass, inside)
	insertResult(t, st, "104801", "out.zip", "ModelX", "ST2",
		store.OutcomeFail, outside)

	from, to := zones.DayWindow(2024, time.January, 15)

	summary, err := engine.Summarize(
		context.Background(), store.TimeRange{From: from, To: to},
	)
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Total)
	assert.GreaterOrEqual(t, summary.Passed, int64(1))
	assert.EqualValues(t, 0, summary.Failed)
}

func TestSummarize_FallBackHoursStayDistinct(t *testing.T) {
	engine, st, _ := setupEngine(t)

	// 2024-11-03: clocks fall back at 02:00 PDT. 08:30 UTC is 01:30
	// PDT, 09:30 UTC is 01:30 PST; both read 01:00 on a wall clock but
	// are distinct instants. They share a label without double-counting
	// either row.
	insertResult(t, st, "104732", "a.zip", "ModelX", "ST2",
		store.OutcomePass, time.Date(2024, 11, 3, 8, 30, 0, 0, time.UTC))
	insertResult(t, st, "104732", "b.zip", "ModelX", "ST2",
		store.OutcomePass, time.Date(2024, 11, 3, 9, 30, 0, 0, time.UTC))

	summary, err := engine.Summarize(context.Background(), store.TimeRange{})
	require.NoError(t, err)

	assert.EqualValues(t, 2, summary.Total)

	require.Len(t, summary.ByHour, 1)
	assert.Equal(t, "2024-11-03 01:00", summary.ByHour[0].Hour)
	assert.EqualValues(t, 2, summary.ByHour[0].Count)
}

func TestRecentResults_NewestFirstDisplayFormatted(t *testing.T) {
	engine, st, _ := setupEngine(t)

	older := time.Date(2024, 1, 15, 18, 31, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	insertResult(t, st, "104732", "old.zip", "ModelX", "ST2",
		store.OutcomePass, older)
	insertResult(t, st, "104801", "new.zip", "ModelY", "ST1",
		store.OutcomeFail, newer)

	views, err := engine.RecentResults(
		context.Background(), 10, store.TimeRange{},
	)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "new.zip", views[0].ArchiveName)
	assert.Equal(t, "old.zip", views[1].ArchiveName)

	// 18:31 UTC renders as the Pacific wall clock.
	assert.Equal(t, "2024-01-15 10:31:00", views[1].ObservedAt)
}

func TestRecentResults_LimitApplies(t *testing.T) {
	engine, st, _ := setupEngine(t)

	base := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertResult(t, st, "104732",
			time.Duration(i).String()+".zip", "ModelX", "ST2",
			store.OutcomePass, base.Add(time.Duration(i)*time.Minute))
	}

	views, err := engine.RecentResults(
		context.Background(), 3, store.TimeRange{},
	)
	require.NoError(t, err)
	assert.Len(t, views, 3)
}
