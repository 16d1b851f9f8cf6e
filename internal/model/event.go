package model

import (
	"encoding/json"
	"time"
)

// LogEntry is one row of the automation audit trail.
type LogEntry struct {
	ID          int64
	Timestamp   time.Time
	Count       int
	DeviceState DeviceState
}

// MarshalJSON renders the entry the way the audit table stores it.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          int64  `json:"id"`
		Timestamp   string `json:"timestamp"`
		Count       int    `json:"count"`
		DeviceOn    bool   `json:"device_on"`
		DeviceState string `json:"device_state"`
	}{
		ID:          e.ID,
		Timestamp:   e.Timestamp.Format(TimestampLayout),
		Count:       e.Count,
		DeviceOn:    e.DeviceState.IsOn(),
		DeviceState: e.DeviceState.String(),
	})
}

// TimestampLayout is the fixed-width ISO-8601 layout used for stored timestamps,
// so lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"
