// Package parser decodes test-result archive filenames into structured
// records. Archive names follow a fixed convention:
//
//	PREFIX_MODEL_SERIAL_P|F_STATION_YYYYMMDDTHHMMSS[Z].zip
//
// where the serial is a 13-digit token, the model is the last
// underscore-separated segment of everything before the serial, and the
// trailing token is a source-site wall-clock timestamp.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Outcome is the parsed result of a test.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
)

// Reasons for rejecting an archive name.
const (
	ReasonNotArchive      = "not a zip archive"
	ReasonPatternMismatch = "name does not match archive convention"
	ReasonBadOutcome      = "unrecognized pass/fail token"
	ReasonBadTimestamp    = "malformed timestamp segment"
)

// archivePattern captures prefix+model, serial, outcome token, station,
// and timestamp. The trailing Z on the timestamp is optional and the
// match is case-insensitive, matching what the test stations actually
// produce.
var archivePattern = regexp.MustCompile(
	`^(?i)(.+)_(\d{13})_([A-Z])_([A-Z0-9]+)_(\d{8}T\d{6}Z?)\.zip$`,
)

// Result is the fragment of a test record recoverable from the archive
// name alone.
type Result struct {
	Model           string
	Serial          string
	Outcome         Outcome
	Station         string
	SourceTimestamp string
}

// ParseError describes why an archive name was rejected. Rejected names
// are skipped by the ingestor; they never abort a scan pass.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing archive name %q: %s", e.Name, e.Reason)
}

// Parse decodes an archive filename. It returns a *ParseError for any
// name that does not follow the convention.
func Parse(name string) (*Result, error) {
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		return nil, &ParseError{Name: name, Reason: ReasonNotArchive}
	}

	m := archivePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, &ParseError{Name: name, Reason: ReasonPatternMismatch}
	}

	prefix, serial, outcomeToken, station, ts := m[1], m[2], m[3], m[4], m[5]

	var outcome Outcome

	switch strings.ToUpper(outcomeToken) {
	case "P":
		outcome = OutcomePass
	case "F":
		outcome = OutcomeFail
	default:
		return nil, &ParseError{Name: name, Reason: ReasonBadOutcome}
	}

	if err := validateTimestamp(ts); err != nil {
		return nil, &ParseError{Name: name, Reason: ReasonBadTimestamp}
	}

	// The model is the last segment of the prefix. Stations prepend a
	// site tag (and sometimes more) before the model, all underscore
	// separated.
	model := prefix
	if idx := strings.LastIndex(prefix, "_"); idx >= 0 {
		model = prefix[idx+1:]
	}

	return &Result{
		Model:           model,
		Serial:          serial,
		Outcome:         outcome,
		Station:         strings.ToUpper(station),
		SourceTimestamp: ts,
	}, nil
}

// SourceTime interprets the raw timestamp token as a wall-clock time.
// The returned time carries no zone; callers attach the source-site
// location.
func (r *Result) SourceTime() (time.Time, error) {
	return parseTimestamp(r.SourceTimestamp)
}

// validateTimestamp rejects tokens that match the digit shape but are
// not real calendar times, e.g. month 13 or hour 25.
func validateTimestamp(ts string) error {
	_, err := parseTimestamp(ts)

	return err
}

func parseTimestamp(ts string) (time.Time, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(ts, "Z"), "z")

	t, err := time.Parse("20060102T150405", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}

	return t, nil
}
