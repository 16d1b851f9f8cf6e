// Package eventlog keeps the append-only audit trail of what the automation
// loop observed and what state the relay was in.
package eventlog

import (
	"context"
	"sync"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/model"
	"relaywatch/internal/repository"
)

type Logger struct {
	repo   repository.EventRepository
	logger *logger.Logger

	mu   sync.Mutex
	last time.Time
}

// New creates an event logger. The newest stored row seeds the timestamp
// floor so rows stay ordered across restarts.
func New(ctx context.Context, repo repository.EventRepository, logger *logger.Logger) *Logger {
	l := &Logger{repo: repo, logger: logger}

	latest, err := repo.GetLatest(ctx, 1)
	if err != nil {
		logger.Warning("Could not read newest audit row: %v", err)
	} else if len(latest) == 1 {
		l.last = latest[0].Timestamp
	}
	return l
}

// Append writes one row. A timestamp earlier than the previous row is raised
// to it. Failures are logged and returned; callers may ignore them.
func (l *Logger) Append(ctx context.Context, ts time.Time, count int, state model.DeviceState) (model.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts.Before(l.last) {
		ts = l.last
	}

	entry := model.LogEntry{Timestamp: ts, Count: count, DeviceState: state}
	if _, err := l.repo.Insert(ctx, &entry); err != nil {
		l.logger.Error("Failed to append audit row (count=%d, device=%s): %v", count, state, err)
		return entry, err
	}

	l.last = ts
	return entry, nil
}

// ListDay returns the rows of the calendar day containing day, in day's
// location.
func (l *Logger) ListDay(ctx context.Context, day time.Time) ([]model.LogEntry, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return l.repo.GetBetween(ctx, from, from.AddDate(0, 0, 1))
}

// Recent returns up to limit rows, newest first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]model.LogEntry, error) {
	return l.repo.GetLatest(ctx, limit)
}
