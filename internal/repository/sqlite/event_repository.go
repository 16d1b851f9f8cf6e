package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"relaywatch/internal/model"
)

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite audit log repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends one audit row. Timestamps are stored as UTC ISO-8601 text.
func (r *EventRepository) Insert(ctx context.Context, entry *model.LogEntry) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO logs (date_time, current_count, device_on, device_state)
		VALUES (?, ?, ?, ?)
	`, entry.Timestamp.UTC().Format(model.TimestampLayout), strconv.Itoa(entry.Count),
		entry.DeviceState.IsOn(), entry.DeviceState.String())
	if err != nil {
		return 0, fmt.Errorf("failed to insert log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read log entry id: %w", err)
	}
	entry.ID = id
	return id, nil
}

// GetBetween returns rows with from <= timestamp < to in insertion order.
func (r *EventRepository) GetBetween(ctx context.Context, from, to time.Time) ([]model.LogEntry, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, date_time, current_count, device_state
		FROM logs WHERE date_time >= ? AND date_time < ?
		ORDER BY id
	`, from.UTC().Format(model.TimestampLayout), to.UTC().Format(model.TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetLatest returns up to limit most recent rows, newest first.
func (r *EventRepository) GetLatest(ctx context.Context, limit int) ([]model.LogEntry, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, date_time, current_count, device_state
		FROM logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of stored rows.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var n int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows rowScanner) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	for rows.Next() {
		var (
			entry    model.LogEntry
			ts       string
			count    string
			devState string
		)
		if err := rows.Scan(&entry.ID, &ts, &count, &devState); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		parsed, err := time.Parse(model.TimestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q in log entry %d: %w", ts, entry.ID, err)
		}
		entry.Timestamp = parsed

		entry.Count, err = strconv.Atoi(count)
		if err != nil {
			return nil, fmt.Errorf("bad count %q in log entry %d: %w", count, entry.ID, err)
		}
		entry.DeviceState = model.ParseDeviceState(devState)

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
