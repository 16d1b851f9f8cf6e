// Package automation runs the fixed-cadence control loop: read the shared
// count, slide the presence window, decide and drive the relay.
package automation

import (
	"context"
	"errors"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/model"
	"relaywatch/internal/service/presence"
	"relaywatch/internal/service/state"
)

// Controller is the relay as seen by the loop. *actuator.Controller
// implements it.
type Controller interface {
	Connect(ctx context.Context) error
	Connected() bool
	QueryState(ctx context.Context) (bool, error)
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	State() model.DeviceState
	Assume(s model.DeviceState)
}

type StateReader interface {
	Count(ctx context.Context) (int, bool, error)
	DeviceState(ctx context.Context) (model.DeviceState, error)
}

type StateWriter interface {
	SetDeviceState(ctx context.Context, s model.DeviceState) error
}

type EventLog interface {
	Append(ctx context.Context, ts time.Time, count int, s model.DeviceState) (model.LogEntry, error)
}

type Options struct {
	Interval   time.Duration
	WindowSize int
}

// TickResult describes one iteration.
type TickResult struct {
	Sample   model.CountSample
	Decision presence.Decision
	State    model.DeviceState
	Err      error // actuator error, if a command was attempted and failed
}

type Loop struct {
	reader   StateReader
	writer   StateWriter
	ctrl     Controller
	events   EventLog
	logger   *logger.Logger
	interval time.Duration

	window    *presence.Window
	engine    *presence.Engine
	lastCount int
	persisted model.DeviceState
	now       func() time.Time
}

func NewLoop(reader StateReader, writer StateWriter, ctrl Controller, events EventLog, opts Options, logger *logger.Logger) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Loop{
		reader:    reader,
		writer:    writer,
		ctrl:      ctrl,
		events:    events,
		logger:    logger,
		interval:  opts.Interval,
		window:    presence.NewWindow(opts.WindowSize),
		engine:    presence.NewEngine(),
		lastCount: presence.Unknown,
		persisted: model.DeviceUnknown,
		now:       time.Now,
	}
}

// Start establishes the initial device state: the live device if reachable,
// otherwise the persisted state, otherwise Unknown.
func (l *Loop) Start(ctx context.Context) {
	if l.syncDevice(ctx) {
		return
	}

	persisted, err := l.reader.DeviceState(ctx)
	if err != nil {
		l.logger.Warning("Could not read persisted device state: %v", err)
		return
	}
	if persisted != model.DeviceUnknown {
		l.ctrl.Assume(persisted)
		l.persisted = persisted
		l.logger.Warning("Relay unreachable, assuming persisted state %s", persisted)
		return
	}
	l.logger.Warning("Relay unreachable and no persisted state; waiting for the device")
}

// Run calls Start, then Tick every interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.Start(ctx)
	l.logger.Info("⏱️  Automation loop started (every %v, window %d)", l.interval, l.window.Cap())

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("🛑 Automation loop stopped")
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick performs one iteration. Store and actuator failures are logged and
// never stop the loop.
func (l *Loop) Tick(ctx context.Context) TickResult {
	sample := model.CountSample{Timestamp: l.now(), Count: l.readCount(ctx)}
	l.window.Push(sample)
	res := TickResult{Sample: sample}

	if !l.ensureDevice(ctx) {
		// No transition without a known device state.
		res.State = model.DeviceUnknown
		l.record(ctx, res)
		return res
	}

	res.Decision = l.engine.Evaluate(l.window, l.ctrl.State())
	switch res.Decision {
	case presence.TurnOn:
		l.logger.Info("Presence detected (count=%d), turning relay on", sample.Count)
		res.Err = l.ctrl.TurnOn(ctx)
	case presence.TurnOff:
		l.logger.Info("No presence for %d ticks, turning relay off", l.window.Cap())
		res.Err = l.ctrl.TurnOff(ctx)
	}
	if res.Err != nil {
		l.logger.Error("Relay %s failed, will retry on a later tick: %v", res.Decision, res.Err)
	}

	res.State = l.ctrl.State()
	l.persist(ctx, res.State)
	l.record(ctx, res)
	return res
}

// readCount returns the shared count, -1 when unknown, or the last known
// count while the store is unreachable.
func (l *Loop) readCount(ctx context.Context) int {
	n, ok, err := l.reader.Count(ctx)
	switch {
	case errors.Is(err, state.ErrStoreUnavailable):
		l.logger.Warning("Shared state unavailable, reusing last count %d: %v", l.lastCount, err)
		return l.lastCount
	case err != nil:
		l.logger.Warning("Ignoring unreadable count: %v", err)
		l.lastCount = presence.Unknown
	case !ok:
		l.lastCount = presence.Unknown
	default:
		l.lastCount = n
	}
	return l.lastCount
}

// ensureDevice reconnects and re-queries the relay when needed. It reports
// whether a device state is known.
func (l *Loop) ensureDevice(ctx context.Context) bool {
	if l.ctrl.Connected() && l.ctrl.State() != model.DeviceUnknown {
		return true
	}
	return l.syncDevice(ctx) || l.ctrl.State() != model.DeviceUnknown
}

func (l *Loop) syncDevice(ctx context.Context) bool {
	if !l.ctrl.Connected() {
		if err := l.ctrl.Connect(ctx); err != nil {
			l.logger.Warning("Relay connect failed: %v", err)
			return false
		}
	}

	on, err := l.ctrl.QueryState(ctx)
	if err != nil {
		l.logger.Warning("Relay state query failed: %v", err)
		return false
	}
	l.logger.Info("Relay reports power %v", on)
	l.persist(ctx, l.ctrl.State())
	return true
}

func (l *Loop) persist(ctx context.Context, s model.DeviceState) {
	if s == l.persisted {
		return
	}
	if err := l.writer.SetDeviceState(ctx, s); err != nil {
		l.logger.Warning("Failed to persist device state %s: %v", s, err)
		return
	}
	l.persisted = s
}

func (l *Loop) record(ctx context.Context, res TickResult) {
	// Errors are logged by the event log itself.
	_, _ = l.events.Append(ctx, res.Sample.Timestamp, res.Sample.Count, res.State)
	l.logger.Debug("count=%d device=%s decision=%s", res.Sample.Count, res.State, res.Decision)
}

