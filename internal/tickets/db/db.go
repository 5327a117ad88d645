package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

var ErrTicketNotFound = errors.New("ticket not found")

type DB struct {
	Bun *bun.DB
}

// CreateSchema creates the tables if they are missing. Production schemas come from migrations;
// this is used by tests and local tooling.
func (d *DB) CreateSchema(ctx context.Context) error {
	for _, m := range []interface{}{(*models.Ticket)(nil), (*models.ScanHistory)(nil)} {
		if _, err := d.Bun.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	_, err := d.Bun.NewCreateIndex().
		Model((*models.ScanHistory)(nil)).
		Index("idx_scan_history_unique_id").
		Column("unique_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create scan_history index: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

func (d *DB) CreateTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	return err
}

// FindByUniqueID is an exact, case-sensitive lookup.
func (d *DB) FindByUniqueID(ctx context.Context, uniqueID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("unique_id = ?", uniqueID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// PatchScan writes an accepted scan in one statement, only if the ticket's counter still equals
// expectedCounter. It reports false when another scan got there first.
// checked_in_at and scanned_by are only filled when still NULL.
func (d *DB) PatchScan(ctx context.Context, uniqueID string, expectedCounter int, patch models.ScanPatch) (bool, error) {
	scannedBy := sql.NullString{String: patch.ScannedBy, Valid: patch.ScannedBy != ""}

	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("is_checked_in = ?", patch.IsCheckedIn).
		Set("checked_in_at = COALESCE(checked_in_at, ?)", patch.CheckedInAt).
		Set("checkin_counter = ?", patch.CheckinCounter).
		Set("last_scan_time = ?", patch.LastScanTime).
		Set("scanned_by = COALESCE(scanned_by, ?)", scannedBy).
		Where("unique_id = ?", uniqueID).
		Where("checkin_counter = ?", expectedCounter).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) GetStats(ctx context.Context) (models.TicketStats, error) {
	var stats models.TicketStats

	total, err := d.Bun.NewSelect().Model((*models.Ticket)(nil)).Count(ctx)
	if err != nil {
		return stats, err
	}
	checkedIn, err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("is_checked_in = ?", true).
		Count(ctx)
	if err != nil {
		return stats, err
	}
	var totalScans int
	err = d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COALESCE(SUM(checkin_counter), 0)").
		Scan(ctx, &totalScans)
	if err != nil {
		return stats, err
	}

	stats.Total = total
	stats.CheckedIn = checkedIn
	stats.TotalScans = totalScans
	return stats, nil
}

// RecordScan stores an audit row. Redelivered events (same event_id) are ignored.
func (d *DB) RecordScan(ctx context.Context, entry models.ScanHistory) error {
	_, err := d.Bun.NewInsert().
		Model(&entry).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	return err
}

// ListScanHistory returns the newest scans of a ticket first.
func (d *DB) ListScanHistory(ctx context.Context, uniqueID string, limit int) ([]models.ScanHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.ScanHistory
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("unique_id = ?", uniqueID).
		Order("scanned_at DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	return entries, err
}
