package presence

import "relaywatch/internal/model"

// Decision is the action requested by one evaluation.
type Decision int

const (
	None Decision = iota
	TurnOn
	TurnOff
)

func (d Decision) String() string {
	switch d {
	case TurnOn:
		return "turn_on"
	case TurnOff:
		return "turn_off"
	default:
		return "none"
	}
}

// Engine applies the transition rule once per tick. It fires at most one
// decision per window generation, so re-evaluating without a new sample
// never repeats an action.
type Engine struct {
	firedGen uint64
	fired    bool
}

// NewEngine returns an engine with no evaluation history.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate returns the action for the current window and tracked relay state.
//
//	TurnOff: window full, all samples exactly 0, state On.
//	TurnOn:  state Off and latest sample > 0.
//
// With DeviceUnknown neither rule applies.
func (e *Engine) Evaluate(w *Window, state model.DeviceState) Decision {
	if e.fired && e.firedGen == w.Generation() {
		return None
	}

	d := Decide(w, state)
	if d != None {
		e.fired = true
		e.firedGen = w.Generation()
	}
	return d
}

// Decide is the stateless transition rule.
func Decide(w *Window, state model.DeviceState) Decision {
	switch state {
	case model.DeviceOn:
		if w.AllZero() {
			return TurnOff
		}
	case model.DeviceOff:
		if latest, ok := w.Latest(); ok && latest.Count > 0 {
			return TurnOn
		}
	}
	return None
}
