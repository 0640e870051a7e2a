// Package ingest orchestrates scan passes: it pulls candidates from
// the remote scanner, parses archive names, and writes new results
// through the store with deduplication. The scheduler in this package
// drives passes on a fixed cadence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/l10dash/l10dash/pkg/metrics"
	"github.com/l10dash/l10dash/pkg/parser"
	"github.com/l10dash/l10dash/pkg/scanner"
	"github.com/l10dash/l10dash/pkg/store"
	"github.com/l10dash/l10dash/pkg/timeutil"
)

// clockSkewWarnThreshold is how far into the future a remote mtime may
// sit before it is flagged. Remote mtimes are stored as-is either way;
// skew is surfaced, not corrected.
const clockSkewWarnThreshold = time.Hour

// ParseFailure records one rejected archive name from a pass.
type ParseFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// PassReport summarizes one complete scan pass for observability.
type PassReport struct {
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Scanned    int            `json:"scanned"`
	New        int            `json:"new"`
	Duplicates int            `json:"duplicates"`
	ParseFails int            `json:"parse_failures"`
	Failures   []ParseFailure `json:"failures,omitempty"`
}

// PassRunner executes one scan-and-persist pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*PassReport, error)
}

// Compile-time interface check.
var _ PassRunner = (*Ingestor)(nil)

// Ingestor runs scan passes. Record-level problems (unparsable names,
// duplicates) never fail a pass; only an unavailable remote or a
// storage failure does.
type Ingestor struct {
	log         logrus.FieldLogger
	scanner     scanner.Scanner
	store       store.Store
	zones       *timeutil.Zones
	metrics     *metrics.Metrics
	passTimeout time.Duration

	// now is swapped out in tests.
	now func() time.Time
}

// NewIngestor creates an Ingestor. Every pass runs under passTimeout;
// remote listings that outlive it abort the pass as remote-unavailable
// instead of stalling the scan cadence.
func NewIngestor(
	log logrus.FieldLogger,
	sc scanner.Scanner,
	st store.Store,
	zones *timeutil.Zones,
	m *metrics.Metrics,
	passTimeout time.Duration,
) *Ingestor {
	return &Ingestor{
		log:         log.WithField("component", "ingestor"),
		scanner:     sc,
		store:       st,
		zones:       zones,
		metrics:     m,
		passTimeout: passTimeout,
		now:         time.Now,
	}
}

// RunPass executes one complete scan-and-persist pass. The base date
// is today at the source site; the scanner also covers the previous
// day.
func (i *Ingestor) RunPass(ctx context.Context) (*PassReport, error) {
	ctx, cancel := context.WithTimeout(ctx, i.passTimeout)
	defer cancel()

	started := i.now()
	report := &PassReport{StartedAt: started.UTC()}

	baseDate := i.zones.SourceDate(started)

	candidates, err := i.scanner.ListCandidates(ctx, baseDate)
	if err != nil {
		i.metrics.RemoteFailures.Inc()

		return nil, fmt.Errorf("listing candidates: %w", err)
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pass cancelled: %w", err)
		}

		report.Scanned++

		exists, err := i.store.Exists(
			ctx, candidate.FolderName, candidate.ArchiveName,
		)
		if err != nil {
			return nil, fmt.Errorf("checking for existing result: %w", err)
		}

		if exists {
			report.Duplicates++

			continue
		}

		parsed, err := parser.Parse(candidate.ArchiveName)
		if err != nil {
			report.ParseFails++

			var parseErr *parser.ParseError
			if errors.As(err, &parseErr) {
				report.Failures = append(report.Failures, ParseFailure{
					Name:   parseErr.Name,
					Reason: parseErr.Reason,
				})
			}

			i.log.WithError(err).
				WithField("folder", candidate.FolderName).
				Warn("Skipping unparsable archive name")

			continue
		}

		observedAt := candidate.RemoteModTime.UTC()
		i.warnOnClockSkew(candidate, observedAt)

		inserted, err := i.store.InsertResult(ctx, &store.TestResult{
			FolderName:      candidate.FolderName,
			ArchiveName:     candidate.ArchiveName,
			Model:           parsed.Model,
			Serial:          parsed.Serial,
			Outcome:         string(parsed.Outcome),
			Station:         parsed.Station,
			SourceTimestamp: parsed.SourceTimestamp,
			ObservedAt:      observedAt,
			IngestedAt:      i.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("inserting result: %w", err)
		}

		if inserted {
			report.New++
		} else {
			// A concurrent pass won the insert race; the unique key
			// absorbed it.
			report.Duplicates++
		}
	}

	report.Duration = i.now().Sub(started)
	i.recordPassMetrics(report)

	i.log.WithFields(logrus.Fields{
		"scanned":        report.Scanned,
		"new":            report.New,
		"duplicates":     report.Duplicates,
		"parse_failures": report.ParseFails,
		"duration":       report.Duration.Round(time.Millisecond),
	}).Info("Scan pass completed")

	return report, nil
}

// warnOnClockSkew flags remote mtimes from the future. The remote
// clock is authoritative, so the value is stored unchanged.
func (i *Ingestor) warnOnClockSkew(
	candidate scanner.Candidate, observedAt time.Time,
) {
	if ahead := observedAt.Sub(i.now()); ahead > clockSkewWarnThreshold {
		i.log.WithFields(logrus.Fields{
			"folder":  candidate.FolderName,
			"archive": candidate.ArchiveName,
			"ahead":   ahead.Round(time.Second),
		}).Warn("Remote modification time is ahead of local clock")
	}
}

func (i *Ingestor) recordPassMetrics(report *PassReport) {
	i.metrics.CandidatesScanned.Add(float64(report.Scanned))
	i.metrics.ResultsIngested.Add(float64(report.New))
	i.metrics.Duplicates.Add(float64(report.Duplicates))
	i.metrics.ParseFailures.Add(float64(report.ParseFails))
	i.metrics.PassDuration.Observe(report.Duration.Seconds())
	i.metrics.LastPassUnix.SetToCurrentTime()
}
