// Package state gives typed, role-scoped access to the keys shared between the
// ingest and automation processes. Each key has exactly one writer role:
// current_count and last_nonzero_ts belong to IngestWriter, device_state to
// AutomationWriter. Readers may see fields from different points in time.
package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"relaywatch/internal/model"
	"relaywatch/internal/repository"
)

const (
	KeyCurrentCount  = "current_count"
	KeyDeviceState   = "device_state"
	KeyLastNonZeroTS = "last_nonzero_ts"
)

// ErrStoreUnavailable wraps any failure to reach the shared store.
var ErrStoreUnavailable = errors.New("state store unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// Snapshot is a point-in-time read of every shared key.
type Snapshot struct {
	CurrentCount  int               `json:"current_count"`
	CountKnown    bool              `json:"count_known"`
	CountAt       time.Time         `json:"count_updated_at"`
	DeviceState   model.DeviceState `json:"device_state"`
	LastNonZeroAt time.Time         `json:"last_nonzero_ts"`
}

// Reader reads shared keys. It never writes.
type Reader struct {
	kv         repository.KeyValueStore
	staleAfter time.Duration
	now        func() time.Time
}

// NewReader creates a Reader. A positive staleAfter makes Count report
// unknown when current_count has not been written for that long.
func NewReader(kv repository.KeyValueStore, staleAfter time.Duration) *Reader {
	return &Reader{kv: kv, staleAfter: staleAfter, now: time.Now}
}

// Count returns the last persisted person count. ok is false when the key was
// never written or is stale.
func (r *Reader) Count(ctx context.Context) (count int, ok bool, err error) {
	count, _, ok, err = r.count(ctx)
	return count, ok, err
}

func (r *Reader) count(ctx context.Context) (int, time.Time, bool, error) {
	value, updatedAt, found, err := r.kv.Get(ctx, KeyCurrentCount)
	if err != nil {
		return 0, time.Time{}, false, unavailable("read current_count", err)
	}
	if !found {
		return 0, time.Time{}, false, nil
	}
	if r.staleAfter > 0 && r.now().Sub(updatedAt) > r.staleAfter {
		return 0, updatedAt, false, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, updatedAt, false, fmt.Errorf("corrupt current_count %q", value)
	}
	return n, updatedAt, true, nil
}

// DeviceState returns the persisted relay state, DeviceUnknown if never written.
func (r *Reader) DeviceState(ctx context.Context) (model.DeviceState, error) {
	value, _, found, err := r.kv.Get(ctx, KeyDeviceState)
	if err != nil {
		return model.DeviceUnknown, unavailable("read device_state", err)
	}
	if !found {
		return model.DeviceUnknown, nil
	}
	on, err := strconv.ParseBool(value)
	if err != nil {
		return model.DeviceUnknown, fmt.Errorf("corrupt device_state %q", value)
	}
	return model.DeviceStateFromBool(on), nil
}

// LastNonZero returns when a non-zero count was last written.
func (r *Reader) LastNonZero(ctx context.Context) (time.Time, bool, error) {
	value, _, found, err := r.kv.Get(ctx, KeyLastNonZeroTS)
	if err != nil {
		return time.Time{}, false, unavailable("read last_nonzero_ts", err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt last_nonzero_ts %q", value)
	}
	return time.UnixMilli(ms), true, nil
}

// Snapshot reads every key. Fields are read one at a time, not atomically.
func (r *Reader) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	count, at, ok, err := r.count(ctx)
	if err != nil {
		return snap, err
	}
	snap.CurrentCount, snap.CountAt, snap.CountKnown = count, at, ok

	if snap.DeviceState, err = r.DeviceState(ctx); err != nil {
		return snap, err
	}

	if at, ok, err := r.LastNonZero(ctx); err != nil {
		return snap, err
	} else if ok {
		snap.LastNonZeroAt = at
	}
	return snap, nil
}

// IngestWriter owns current_count and last_nonzero_ts.
type IngestWriter struct {
	kv  repository.KeyValueStore
	now func() time.Time
}

func NewIngestWriter(kv repository.KeyValueStore) *IngestWriter {
	return &IngestWriter{kv: kv, now: time.Now}
}

// SetCount persists n (clamped at 0) and, when n > 0, stamps last_nonzero_ts.
func (w *IngestWriter) SetCount(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	if err := w.kv.Set(ctx, KeyCurrentCount, strconv.Itoa(n)); err != nil {
		return unavailable("write current_count", err)
	}
	if n > 0 {
		ts := strconv.FormatInt(w.now().UnixMilli(), 10)
		if err := w.kv.Set(ctx, KeyLastNonZeroTS, ts); err != nil {
			return unavailable("write last_nonzero_ts", err)
		}
	}
	return nil
}

// AutomationWriter owns device_state.
type AutomationWriter struct {
	kv repository.KeyValueStore
}

func NewAutomationWriter(kv repository.KeyValueStore) *AutomationWriter {
	return &AutomationWriter{kv: kv}
}

// SetDeviceState persists s. DeviceUnknown removes the key.
func (w *AutomationWriter) SetDeviceState(ctx context.Context, s model.DeviceState) error {
	var err error
	if s == model.DeviceUnknown {
		err = w.kv.Delete(ctx, KeyDeviceState)
	} else {
		err = w.kv.Set(ctx, KeyDeviceState, strconv.FormatBool(s.IsOn()))
	}
	if err != nil {
		return unavailable("write device_state", err)
	}
	return nil
}
