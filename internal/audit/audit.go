// Package audit persists a trail of booking mutations for later review and
// export.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"leadbook/internal/events"
)

// Entry is one audited booking operation.
type Entry struct {
	ID         string
	Op         string // committed, cancelled, conflict, failed, cancel_failed
	BookingID  string
	LeadID     string
	ResourceID string
	Date       string
	StartTime  string
	EndTime    string
	Actor      string
	Detail     string
	CreatedAt  time.Time
}

// Log is the sqlite-backed audit trail.
type Log struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// Open initializes the audit database, creating it if needed.
func Open(path string, logger *zerolog.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		booking_id TEXT,
		lead_id TEXT,
		resource_id TEXT,
		date TEXT,
		start_time TEXT,
		end_time TEXT,
		actor TEXT,
		detail TEXT,
		created_at DATETIME NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	logger.Info().Str("path", path).Msg("audit log initialized")
	return &Log{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one entry. A missing ID or timestamp is filled in.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO audit_entries
		(id, op, booking_id, lead_id, resource_id, date, start_time, end_time, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Op, e.BookingID, e.LeadID, e.ResourceID, e.Date, e.StartTime, e.EndTime, e.Actor, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Entries returns entries created within [from, to], newest first.
func (l *Log) Entries(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT
		id, op, booking_id, lead_id, resource_id, date, start_time, end_time, actor, detail, created_at
		FROM audit_entries
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Op, &e.BookingID, &e.LeadID, &e.ResourceID,
			&e.Date, &e.StartTime, &e.EndTime, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportXLSX writes entries in [from, to] as an Excel workbook.
func (l *Log) ExportXLSX(ctx context.Context, w io.Writer, from, to time.Time) error {
	entries, err := l.Entries(ctx, from, to)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Bookings"
	f.SetSheetName("Sheet1", sheet)

	header := []string{"Time", "Operation", "Booking ID", "Lead", "Resource", "Date", "Start", "End", "Actor", "Detail"}
	for i, col := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheet, "A1", endCell, style)
	}

	for i, e := range entries {
		row := []interface{}{
			e.CreatedAt.Format(time.RFC3339), e.Op, e.BookingID, e.LeadID,
			e.ResourceID, e.Date, e.StartTime, e.EndTime, e.Actor, e.Detail,
		}
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Subscribe attaches the log to the booking event bus so every lifecycle
// event becomes an audit entry.
func (l *Log) Subscribe(bus *events.Bus) {
	bus.SubscribeAll(func(ev events.Event) {
		e := Entry{
			Op:         opForEvent(ev.Type),
			BookingID:  ev.BookingID,
			LeadID:     ev.LeadID,
			ResourceID: ev.ResourceID,
			Date:       ev.Date,
			StartTime:  ev.StartTime,
			EndTime:    ev.EndTime,
			Actor:      ev.Actor,
			Detail:     ev.Message,
			CreatedAt:  ev.At,
		}
		if err := l.Record(context.Background(), e); err != nil {
			l.logger.Error().Err(err).Str("op", e.Op).Msg("failed to record audit entry")
		}
	})
}

func opForEvent(eventType string) string {
	switch eventType {
	case events.TypeBookingCommitted:
		return "committed"
	case events.TypeBookingCancelled:
		return "cancelled"
	case events.TypeBookingConflict:
		return "conflict"
	case events.TypeBookingFailed:
		return "failed"
	case events.TypeCancelFailed:
		return "cancel_failed"
	}
	return eventType
}
