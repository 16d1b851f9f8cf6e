package repository

import (
	"context"
	"time"

	"relaywatch/internal/model"
)

// EventRepository stores the append-only automation audit trail.
type EventRepository interface {
	// Create operations
	Insert(ctx context.Context, entry *model.LogEntry) (int64, error)

	// Read operations
	GetBetween(ctx context.Context, from, to time.Time) ([]model.LogEntry, error)
	GetLatest(ctx context.Context, limit int) ([]model.LogEntry, error)
	Count(ctx context.Context) (int, error)
}

// KeyValueStore is the persisted bridge shared by the ingest and automation processes.
type KeyValueStore interface {
	// Set overwrites key in place and stamps it with the write time.
	Set(ctx context.Context, key, value string) error
	// Get returns the value and its write time; ok is false when the key was never written.
	Get(ctx context.Context, key string) (value string, updatedAt time.Time, ok bool, err error)
	Delete(ctx context.Context, key string) error
}
