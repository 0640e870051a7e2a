// Package agg builds windowed summaries over stored test results for
// the dashboard. Windows are expressed as absolute instants; all
// bucketing and formatting happens in the display zone.
package agg

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/l10dash/l10dash/pkg/store"
	"github.com/l10dash/l10dash/pkg/timeutil"
)

// OutcomeCount is a pass/fail tally for one grouping key.
type OutcomeCount struct {
	Passed int64 `json:"passed"`
	Failed int64 `json:"failed"`
}

// HourBucket is the test count for one display-zone hour.
type HourBucket struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// Summary is the aggregate view over one time window.
type Summary struct {
	Total     int64                   `json:"total"`
	Passed    int64                   `json:"passed"`
	Failed    int64                   `json:"failed"`
	PassRate  float64                 `json:"pass_rate"`
	ByHour    []HourBucket            `json:"by_hour"`
	ByStation map[string]OutcomeCount `json:"by_station"`
	ByModel   map[string]OutcomeCount `json:"by_model"`
}

// ResultView is one recent result with display-zone formatted times.
type ResultView struct {
	FolderName  string `json:"folder_name"`
	ArchiveName string `json:"archive_name"`
	Model       string `json:"model"`
	Serial      string `json:"serial"`
	Outcome     string `json:"outcome"`
	Station     string `json:"station"`
	ObservedAt  string `json:"observed_at"`
	IngestedAt  string `json:"ingested_at"`
}

// displayTimeLayout formats instants for the dashboard.
const displayTimeLayout = "2006-01-02 15:04:05"

// Engine serves read-only aggregate queries. It never writes.
type Engine struct {
	log   logrus.FieldLogger
	store store.Store
	zones *timeutil.Zones
}

// NewEngine creates an aggregation engine over the given store.
func NewEngine(
	log logrus.FieldLogger,
	st store.Store,
	zones *timeutil.Zones,
) *Engine {
	return &Engine{
		log:   log.WithField("component", "agg"),
		store: st,
		zones: zones,
	}
}

// Summarize computes the aggregate view for a window. An empty window
// yields a zero-filled summary, not an error.
func (e *Engine) Summarize(
	ctx context.Context, window store.TimeRange,
) (*Summary, error) {
	passed, failed, err := e.store.CountByOutcome(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("summarizing outcomes: %w", err)
	}

	summary := &Summary{
		Total:     passed + failed,
		Passed:    passed,
		Failed:    failed,
		ByHour:    []HourBucket{},
		ByStation: make(map[string]OutcomeCount),
		ByModel:   make(map[string]OutcomeCount),
	}

	if summary.Total > 0 {
		summary.PassRate = float64(passed) / float64(summary.Total)
	}

	stations, err := e.store.CountByStation(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("summarizing stations: %w", err)
	}

	mergeGroups(summary.ByStation, stations)

	models, err := e.store.CountByModel(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("summarizing models: %w", err)
	}

	mergeGroups(summary.ByModel, models)

	buckets, err := e.hourBuckets(ctx, window)
	if err != nil {
		return nil, err
	}

	summary.ByHour = buckets

	e.log.WithFields(logrus.Fields{
		"total":   summary.Total,
		"buckets": len(summary.ByHour),
	}).Debug("Summary computed")

	return summary, nil
}

// RecentResults returns the newest results first, formatted for the
// display zone.
func (e *Engine) RecentResults(
	ctx context.Context, limit int, window store.TimeRange,
) ([]ResultView, error) {
	rows, err := e.store.RecentResults(ctx, limit, window)
	if err != nil {
		return nil, fmt.Errorf("listing recent results: %w", err)
	}

	views := make([]ResultView, 0, len(rows))

	for _, row := range rows {
		views = append(views, ResultView{
			FolderName:  row.FolderName,
			ArchiveName: row.ArchiveName,
			Model:       row.Model,
			Serial:      row.Serial,
			Outcome:     row.Outcome,
			Station:     row.Station,
			ObservedAt:  e.formatDisplay(row.ObservedAt),
			IngestedAt:  e.formatDisplay(row.IngestedAt),
		})
	}

	return views, nil
}

// hourBuckets groups observed instants by display-zone hour. The
// conversion runs per instant through the zone database, so hours
// around DST transitions land where a clock on the wall would put
// them.
func (e *Engine) hourBuckets(
	ctx context.Context, window store.TimeRange,
) ([]HourBucket, error) {
	instants, err := e.store.ObservedInstants(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("bucketing by hour: %w", err)
	}

	counts := make(map[string]int64, len(instants))

	for _, instant := range instants {
		counts[e.zones.HourLabel(instant)]++
	}

	buckets := make([]HourBucket, 0, len(counts))

	for hour, count := range counts {
		buckets = append(buckets, HourBucket{Hour: hour, Count: count})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Hour < buckets[j].Hour
	})

	return buckets, nil
}

func (e *Engine) formatDisplay(instant time.Time) string {
	return timeutil.ToZoneLocal(instant, e.zones.Display).Format(displayTimeLayout)
}

func mergeGroups(dst map[string]OutcomeCount, rows []store.GroupCount) {
	for _, row := range rows {
		entry := dst[row.Key]

		switch row.Outcome {
		case store.OutcomePass:
			entry.Passed += row.Count
		case store.OutcomeFail:
			entry.Failed += row.Count
		}

		dst[row.Key] = entry
	}
}
