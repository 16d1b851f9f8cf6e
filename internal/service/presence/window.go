// Package presence turns a noisy stream of person counts into on/off
// decisions for the relay.
//
// Arrival is acted on immediately: one positive sample while the relay is
// off turns it on. Departure must be confirmed: the relay is turned off only
// when every sample in a full window is exactly zero. Unknown samples (-1)
// never count as zero, so gaps in detection cannot switch the relay off.
package presence

import "relaywatch/internal/model"

// Unknown is the sample value used when no fresh count was available.
const Unknown = -1

// DefaultSize is the number of samples a departure must be confirmed over.
const DefaultSize = 30

// Window is a fixed-capacity FIFO of the most recent samples.
type Window struct {
	buf   []model.CountSample
	start int
	size  int
	gen   uint64
}

// NewWindow creates an empty window. Sizes below 1 use DefaultSize.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultSize
	}
	return &Window{buf: make([]model.CountSample, capacity)}
}

// Push appends s, evicting the oldest sample when the window is full.
func (w *Window) Push(s model.CountSample) {
	if s.Count < Unknown {
		s.Count = Unknown
	}
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = s
		w.size++
	} else {
		w.buf[w.start] = s
		w.start = (w.start + 1) % len(w.buf)
	}
	w.gen++
}

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Len returns the number of samples held.
func (w *Window) Len() int { return w.size }

// Full reports whether Len == Cap.
func (w *Window) Full() bool { return w.size == len(w.buf) }

// Generation counts every Push since creation. It changes on each tick.
func (w *Window) Generation() uint64 { return w.gen }

// Latest returns the most recent sample.
func (w *Window) Latest() (model.CountSample, bool) {
	if w.size == 0 {
		return model.CountSample{}, false
	}
	return w.buf[(w.start+w.size-1)%len(w.buf)], true
}

// Samples returns a copy of the samples, oldest first.
func (w *Window) Samples() []model.CountSample {
	out := make([]model.CountSample, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// AllZero reports whether the window is full and every sample is exactly 0.
func (w *Window) AllZero() bool {
	if !w.Full() {
		return false
	}
	for i := 0; i < w.size; i++ {
		if w.buf[(w.start+i)%len(w.buf)].Count != 0 {
			return false
		}
	}
	return true
}
