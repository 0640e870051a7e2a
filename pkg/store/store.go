// Package store persists parsed test results and serves the windowed
// read queries behind the aggregation engine. Insertion is idempotent:
// the unique index over (folder_name, archive_name) absorbs duplicate
// observations from overlapping scan passes.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/l10dash/l10dash/pkg/config"
)

// Store provides persistence for test results.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Exists reports whether the (folder, archive) pair has already
	// been ingested.
	Exists(ctx context.Context, folderName, archiveName string) (bool, error)

	// InsertResult writes one result, returning false when the natural
	// key already exists. A duplicate is a no-op, never an error.
	InsertResult(ctx context.Context, result *TestResult) (bool, error)

	// Windowed read queries.
	CountByOutcome(ctx context.Context, window TimeRange) (passed, failed int64, err error)
	CountByStation(ctx context.Context, window TimeRange) ([]GroupCount, error)
	CountByModel(ctx context.Context, window TimeRange) ([]GroupCount, error)
	ObservedInstants(ctx context.Context, window TimeRange) ([]time.Time, error)
	RecentResults(ctx context.Context, limit int, window TimeRange) ([]TestResult, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&TestResult{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Exists reports whether the natural key is already present.
func (s *store) Exists(
	ctx context.Context, folderName, archiveName string,
) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&TestResult{}).
		Where("folder_name = ? AND archive_name = ?", folderName, archiveName).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking result existence: %w", err)
	}

	return count > 0, nil
}

// InsertResult inserts one result. ON CONFLICT DO NOTHING on the
// natural key makes a duplicate insert harmless even when two passes
// race past the existence check.
func (s *store) InsertResult(
	ctx context.Context, result *TestResult,
) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "folder_name"}, {Name: "archive_name"}},
			DoNothing: true,
		}).
		Create(result)
	if res.Error != nil {
		return false, fmt.Errorf("inserting result: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// windowed narrows a query to the given time range on observed_at.
func windowed(tx *gorm.DB, window TimeRange) *gorm.DB {
	if !window.From.IsZero() {
		tx = tx.Where("observed_at >= ?", window.From)
	}

	if !window.To.IsZero() {
		tx = tx.Where("observed_at < ?", window.To)
	}

	return tx
}

// CountByOutcome returns pass and fail totals within the window.
func (s *store) CountByOutcome(
	ctx context.Context, window TimeRange,
) (int64, int64, error) {
	var rows []GroupCount
	if err := windowed(s.db.WithContext(ctx).Model(&TestResult{}), window).
		Select("outcome AS key, outcome, COUNT(*) AS count").
		Group("outcome").
		Scan(&rows).Error; err != nil {
		return 0, 0, fmt.Errorf("counting by outcome: %w", err)
	}

	var passed, failed int64

	for _, row := range rows {
		switch row.Outcome {
		case OutcomePass:
			passed = row.Count
		case OutcomeFail:
			failed = row.Count
		}
	}

	return passed, failed, nil
}

// CountByStation returns per-station outcome counts within the window.
func (s *store) CountByStation(
	ctx context.Context, window TimeRange,
) ([]GroupCount, error) {
	var rows []GroupCount
	if err := windowed(s.db.WithContext(ctx).Model(&TestResult{}), window).
		Select("station AS key, outcome, COUNT(*) AS count").
		Group("station, outcome").
		Order("station").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting by station: %w", err)
	}

	return rows, nil
}

// CountByModel returns per-model outcome counts within the window.
func (s *store) CountByModel(
	ctx context.Context, window TimeRange,
) ([]GroupCount, error) {
	var rows []GroupCount
	if err := windowed(s.db.WithContext(ctx).Model(&TestResult{}), window).
		Select("model AS key, outcome, COUNT(*) AS count").
		Group("model, outcome").
		Order("model").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting by model: %w", err)
	}

	return rows, nil
}

// ObservedInstants returns the observed_at instants within the window.
// Hour bucketing happens in Go so that display-zone conversion stays
// DST-correct regardless of the database driver.
func (s *store) ObservedInstants(
	ctx context.Context, window TimeRange,
) ([]time.Time, error) {
	var instants []time.Time
	if err := windowed(s.db.WithContext(ctx).Model(&TestResult{}), window).
		Order("observed_at ASC").
		Pluck("observed_at", &instants).Error; err != nil {
		return nil, fmt.Errorf("listing observed instants: %w", err)
	}

	return instants, nil
}

// RecentResults returns the newest results first, optionally windowed.
func (s *store) RecentResults(
	ctx context.Context, limit int, window TimeRange,
) ([]TestResult, error) {
	var results []TestResult
	if err := windowed(s.db.WithContext(ctx), window).
		Order("observed_at DESC, id DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing recent results: %w", err)
	}

	return results, nil
}
