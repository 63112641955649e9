// Package store persists the reconciled trail catalog to Postgres with
// batched, conflict-resolving upserts. Re-running the pipeline with identical
// input leaves the stored state unchanged.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
	"github.com/couchcryptid/trail-data-etl/internal/reconcile"
)

// Store wraps the catalog database.
type Store struct {
	db        *gorm.DB
	logger    *slog.Logger
	clock     clockwork.Clock
	batchSize int
}

// TrailRef pairs a trail identity with its external reference URL, for the
// link-validation workflow.
type TrailRef struct {
	TrailID string
	URL     string
}

// Open connects to Postgres and configures the pool for a long-running batch
// job: few connections, recycled periodically.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// New creates a Store. batchSize bounds how many rows one upsert statement
// carries.
func New(db *gorm.DB, logger *slog.Logger, clock clockwork.Clock, batchSize int) *Store {
	return &Store{
		db:        db,
		logger:    logger,
		clock:     clock,
		batchSize: batchSize,
	}
}

// Migrate creates or updates the catalog tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&trailRow{}, &campgroundRow{})
}

// UpsertTrails writes the trails in bounded batches and returns how many rows
// were written. Within a batch the last record for an identity wins, because
// a multi-row upsert cannot touch the same row twice in one statement.
// Already-committed batches survive a later batch's failure.
func (s *Store) UpsertTrails(ctx context.Context, trails []domain.Trail) (int, error) {
	now := s.clock.Now().UTC()
	rows := make([]trailRow, 0, len(trails))
	for _, t := range trails {
		if domain.NormalizeName(t.Name) == "" {
			s.logger.Warn("dropping nameless trail before persistence", "id", t.ID)
			continue
		}
		row, err := rowFromTrail(t, now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	rows = dedupeLastWins(rows, func(r trailRow) string { return r.ID })

	written := 0
	for _, batch := range chunk(rows, s.batchSize) {
		batch := batch
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(trailConflictAssignments()),
		}).Create(&batch).Error
		if err != nil {
			return written, fmt.Errorf("upsert trail batch: %w", err)
		}
		written += len(batch)
	}
	return written, nil
}

// trailConflictAssignments implements the field-level merge rule:
// presentation fields always follow the incoming row, nullable enrichment
// fields only overwrite when the incoming value is non-null, and the sync
// timestamp always refreshes.
func trailConflictAssignments() map[string]interface{} {
	return map[string]interface{}{
		"name":        gorm.Expr("excluded.name"),
		"area_name":   gorm.Expr("excluded.area_name"),
		"lat":         gorm.Expr("excluded.lat"),
		"lon":         gorm.Expr("excluded.lon"),
		"source":      gorm.Expr("excluded.source"),
		"last_synced": gorm.Expr("excluded.last_synced"),

		"length_miles": gorm.Expr("COALESCE(excluded.length_miles, trails.length_miles)"),
		"difficulty":   gorm.Expr("COALESCE(excluded.difficulty, trails.difficulty)"),
		"trail_type":   gorm.Expr("COALESCE(excluded.trail_type, trails.trail_type)"),
		"geometry":     gorm.Expr("COALESCE(excluded.geometry, trails.geometry)"),
		"ref_url":      gorm.Expr("COALESCE(excluded.ref_url, trails.ref_url)"),
	}
}

// UpsertCampgrounds mirrors UpsertTrails for camp sites.
func (s *Store) UpsertCampgrounds(ctx context.Context, camps []domain.Campground) (int, error) {
	now := s.clock.Now().UTC()
	rows := make([]campgroundRow, 0, len(camps))
	for _, c := range camps {
		if domain.NormalizeName(c.Name) == "" {
			s.logger.Warn("dropping nameless campground before persistence", "id", c.ID)
			continue
		}
		rows = append(rows, rowFromCampground(c, now))
	}
	rows = dedupeLastWins(rows, func(r campgroundRow) string { return r.ID })

	assign := map[string]interface{}{
		"name":        gorm.Expr("excluded.name"),
		"area_name":   gorm.Expr("excluded.area_name"),
		"lat":         gorm.Expr("excluded.lat"),
		"lon":         gorm.Expr("excluded.lon"),
		"source":      gorm.Expr("excluded.source"),
		"last_synced": gorm.Expr("excluded.last_synced"),

		"fee":         gorm.Expr("COALESCE(excluded.fee, campgrounds.fee)"),
		"reservation": gorm.Expr("COALESCE(excluded.reservation, campgrounds.reservation)"),
		"website":     gorm.Expr("COALESCE(excluded.website, campgrounds.website)"),
	}

	written := 0
	for _, batch := range chunk(rows, s.batchSize) {
		batch := batch
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(assign),
		}).Create(&batch).Error
		if err != nil {
			return written, fmt.Errorf("upsert campground batch: %w", err)
		}
		written += len(batch)
	}
	return written, nil
}

// TrailsForArea loads the persisted catalog for one search area, for
// delta-mode reconciliation.
func (s *Store) TrailsForArea(ctx context.Context, regionCode, areaID string) ([]domain.Trail, error) {
	var rows []trailRow
	err := s.db.WithContext(ctx).
		Where("region_code = ? AND area_id = ?", regionCode, areaID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load trails for %s/%s: %w", regionCode, areaID, err)
	}

	trails := make([]domain.Trail, 0, len(rows))
	for _, row := range rows {
		t, err := trailFromRow(row)
		if err != nil {
			return nil, err
		}
		trails = append(trails, t)
	}
	return trails, nil
}

// ApplyBackfills sets geometry on persisted trails that currently lack it.
// The WHERE guard makes enrichment monotonic: a row that already has geometry
// is never touched. Returns how many rows were updated.
func (s *Store) ApplyBackfills(ctx context.Context, backfills []reconcile.Backfill) (int, error) {
	applied := 0
	for _, b := range backfills {
		geom, err := encodeGeometry(b.Geometry)
		if err != nil {
			return applied, err
		}
		if geom == nil {
			continue
		}
		res := s.db.WithContext(ctx).
			Model(&trailRow{}).
			Where("id = ? AND geometry IS NULL", b.TrailID).
			Update("geometry", *geom)
		if res.Error != nil {
			return applied, fmt.Errorf("backfill geometry for %s: %w", b.TrailID, res.Error)
		}
		applied += int(res.RowsAffected)
	}
	return applied, nil
}

// TrailRefURLs returns every persisted trail with a non-null reference URL
// for the given region.
func (s *Store) TrailRefURLs(ctx context.Context, regionCode string) ([]TrailRef, error) {
	var rows []trailRow
	err := s.db.WithContext(ctx).
		Select("id", "ref_url").
		Where("region_code = ? AND ref_url IS NOT NULL", regionCode).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load trail urls for %s: %w", regionCode, err)
	}

	refs := make([]TrailRef, 0, len(rows))
	for _, row := range rows {
		if row.RefURL == nil {
			continue
		}
		refs = append(refs, TrailRef{TrailID: row.ID, URL: *row.RefURL})
	}
	return refs, nil
}

// dedupeLastWins collapses duplicate identities within one batch: the last
// record's values land at the first record's position, preserving input
// order.
func dedupeLastWins[T any](rows []T, key func(T) string) []T {
	index := make(map[string]int, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := key(r)
		if i, seen := index[k]; seen {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// chunk splits rows into slices of at most size elements.
func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
