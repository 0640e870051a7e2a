package store

import "time"

// Outcome values persisted for a test result.
const (
	OutcomePass = "PASS"
	OutcomeFail = "FAIL"
)

// TestResult is one observed test artifact. Rows are immutable: the
// ingestor creates them on first observation and nothing updates or
// deletes them afterwards.
type TestResult struct {
	ID uint `gorm:"primaryKey"`

	// (FolderName, ArchiveName) is the natural key. The unique index
	// is the dedup boundary for overlapping scan passes.
	FolderName  string `gorm:"not null;uniqueIndex:idx_results_folder_archive"`
	ArchiveName string `gorm:"not null;uniqueIndex:idx_results_folder_archive"`

	Model   string `gorm:"index"`
	Serial  string
	Outcome string `gorm:"index"`
	Station string `gorm:"index"`

	// SourceTimestamp is the raw wall-clock token from the archive
	// name, in the source site's zone. Informational only; never used
	// for dedup or bucketing.
	SourceTimestamp string

	// ObservedAt is the remote modification instant, stored absolute
	// (UTC). Authoritative for all windowed aggregation.
	ObservedAt time.Time `gorm:"index;not null"`

	IngestedAt time.Time `gorm:"not null"`
}

// TimeRange is an absolute-instant window, From inclusive, To
// exclusive. A zero bound leaves that side open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// GroupCount is one (key, outcome) bucket from a grouped count query.
type GroupCount struct {
	Key     string
	Outcome string
	Count   int64
}
