package presence

import (
	"testing"
	"time"

	"relaywatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(w *Window, counts ...int) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range counts {
		w.Push(model.CountSample{Timestamp: t0.Add(time.Duration(i) * time.Second), Count: c})
	}
}

func counts(w *Window) []int {
	var out []int
	for _, s := range w.Samples() {
		out = append(out, s.Count)
	}
	return out
}

func TestWindow_FIFOEviction(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, 3, w.Cap())

	fill(w, 1, 2)
	assert.Equal(t, 2, w.Len())
	assert.False(t, w.Full())
	assert.Equal(t, []int{1, 2}, counts(w))

	fill(w, 3, 4, 5)
	assert.Equal(t, 3, w.Len())
	assert.True(t, w.Full())
	assert.Equal(t, []int{3, 4, 5}, counts(w))

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, latest.Count)
	assert.Equal(t, uint64(5), w.Generation())
}

func TestWindow_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultSize, NewWindow(0).Cap())
}

func TestWindow_AllZeroNeedsFullWindow(t *testing.T) {
	w := NewWindow(5)
	fill(w, 0, 0, 0, 0)
	assert.False(t, w.AllZero())

	fill(w, 0)
	assert.True(t, w.AllZero())

	fill(w, 1)
	assert.False(t, w.AllZero())
}

func TestWindow_UnknownIsNotZero(t *testing.T) {
	w := NewWindow(5)
	fill(w, 0, 0, Unknown, 0, 0)
	assert.False(t, w.AllZero())
}

func TestEvaluate_AllZeroWindowTurnsOffExactlyOnce(t *testing.T) {
	for _, size := range []int{1, 5, 30} {
		w := NewWindow(size)
		e := NewEngine()
		for i := 0; i < size; i++ {
			fill(w, 0)
		}

		assert.Equal(t, TurnOff, e.Evaluate(w, model.DeviceOn), "size %d", size)
		assert.Equal(t, None, e.Evaluate(w, model.DeviceOn), "re-evaluation without a new sample must not fire (size %d)", size)
	}
}

func TestEvaluate_RetriesOnNextTickWhenStateUnchanged(t *testing.T) {
	w := NewWindow(5)
	e := NewEngine()
	fill(w, 0, 0, 0, 0, 0)

	require.Equal(t, TurnOff, e.Evaluate(w, model.DeviceOn))

	// The command failed, so the tracked state is still On; a new tick retries.
	fill(w, 0)
	assert.Equal(t, TurnOff, e.Evaluate(w, model.DeviceOn))
}

func TestEvaluate_NoRefireOnceStateIsOff(t *testing.T) {
	w := NewWindow(5)
	e := NewEngine()
	fill(w, 0, 0, 0, 0, 0)

	require.Equal(t, TurnOff, e.Evaluate(w, model.DeviceOn))
	fill(w, 0)
	assert.Equal(t, None, e.Evaluate(w, model.DeviceOff))
}

func TestEvaluate_ArrivalTurnsOnNextTick(t *testing.T) {
	for _, size := range []int{1, 5, 30} {
		w := NewWindow(size)
		e := NewEngine()
		fill(w, 3)

		assert.Equal(t, TurnOn, e.Evaluate(w, model.DeviceOff), "size %d", size)
		assert.Equal(t, None, e.Evaluate(w, model.DeviceOff), "size %d", size)
	}
}

func TestEvaluate_SingleZeroAfterArrivalDoesNotTurnOff(t *testing.T) {
	w := NewWindow(5)
	e := NewEngine()

	fill(w, 3)
	require.Equal(t, TurnOn, e.Evaluate(w, model.DeviceOff))

	fill(w, 0)
	assert.Equal(t, None, e.Evaluate(w, model.DeviceOn))
}

func TestEvaluate_UnknownSamples(t *testing.T) {
	w := NewWindow(5)
	e := NewEngine()

	fill(w, 0, 0, 0, 0, Unknown)
	assert.Equal(t, None, e.Evaluate(w, model.DeviceOn), "-1 never contributes to an off decision")
	assert.Equal(t, None, e.Evaluate(w, model.DeviceOff), "-1 never satisfies the on condition")

	for i := 0; i < 5; i++ {
		fill(w, Unknown)
		assert.Equal(t, None, e.Evaluate(w, model.DeviceOn))
	}
}

func TestEvaluate_UnknownDeviceStateNeverFires(t *testing.T) {
	w := NewWindow(3)
	e := NewEngine()

	fill(w, 0, 0, 0)
	assert.Equal(t, None, e.Evaluate(w, model.DeviceUnknown))
	fill(w, 2)
	assert.Equal(t, None, e.Evaluate(w, model.DeviceUnknown))
}

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		name    string
		samples []int
		state   model.DeviceState
		want    Decision
	}{
		{"empty window on", nil, model.DeviceOn, None},
		{"empty window off", nil, model.DeviceOff, None},
		{"partial zeros on", []int{0, 0}, model.DeviceOn, None},
		{"full zeros on", []int{0, 0, 0}, model.DeviceOn, TurnOff},
		{"full zeros off", []int{0, 0, 0}, model.DeviceOff, None},
		{"latest positive off", []int{0, 0, 1}, model.DeviceOff, TurnOn},
		{"older positive off", []int{1, 0, 0}, model.DeviceOff, None},
		{"latest positive on", []int{0, 0, 2}, model.DeviceOn, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(3)
			fill(w, tt.samples...)
			assert.Equal(t, tt.want, Decide(w, tt.state))
		})
	}
}
