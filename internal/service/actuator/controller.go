// Package actuator drives the remote power relay. Commands are serialized,
// bounded by a timeout and only change the tracked state once the device has
// confirmed them.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotConnected  = errors.New("actuator not connected")
	ErrCommandFailed = errors.New("actuator command failed")
)

// CommandError reports which operation failed. It matches ErrCommandFailed
// and the underlying cause with errors.Is.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrCommandFailed, e.Err)
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}

// Device is the remote relay. Implementations must honour ctx cancellation.
type Device interface {
	Connect(ctx context.Context) error
	On(ctx context.Context) error
	Off(ctx context.Context) error
	IsOn(ctx context.Context) (bool, error)
}

// Notifier queues a transition message without blocking.
type Notifier interface {
	Notify(text string) bool
}

type Options struct {
	Timeout    time.Duration
	OnMessage  string
	OffMessage string
}

type Controller struct {
	device   Device
	notifier Notifier
	logger   *logger.Logger
	opts     Options

	mu        sync.Mutex // held for the whole command
	connected bool
	state     model.DeviceState
}

func NewController(device Device, notifier Notifier, opts Options, logger *logger.Logger) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.OnMessage == "" {
		opts.OnMessage = "Successfully turned on device"
	}
	if opts.OffMessage == "" {
		opts.OffMessage = "Devices are turned off"
	}

	return &Controller{
		device:   device,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		state:    model.DeviceUnknown,
	}
}

// Connect opens the session with the device. A failed Connect leaves the
// controller disconnected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.device.Connect(ctx); err != nil {
		c.connected = false
		return &CommandError{Op: "connect", Err: err}
	}
	c.connected = true
	c.logger.Info("🔌 Connected to relay")
	return nil
}

func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State returns the last confirmed device state.
func (c *Controller) State() model.DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Assume sets the tracked state without talking to the device. It is used at
// startup to adopt a persisted state when the device cannot be queried.
func (c *Controller) Assume(state model.DeviceState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// QueryState asks the device whether it is on and records the answer.
func (c *Controller) QueryState(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return false, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	on, err := c.device.IsOn(ctx)
	if err != nil {
		return false, &CommandError{Op: "query", Err: err}
	}
	c.state = model.DeviceStateFromBool(on)
	return on, nil
}

func (c *Controller) TurnOn(ctx context.Context) error {
	return c.command(ctx, "turn_on", c.device.On, model.DeviceOn, c.opts.OnMessage)
}

func (c *Controller) TurnOff(ctx context.Context) error {
	return c.command(ctx, "turn_off", c.device.Off, model.DeviceOff, c.opts.OffMessage)
}

func (c *Controller) command(ctx context.Context, op string, call func(context.Context) error, target model.DeviceState, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := call(ctx); err != nil {
		c.logger.Error("Relay %s [%s] failed after %v: %v", op, id, time.Since(start).Round(time.Millisecond), err)
		return &CommandError{Op: op, Err: err}
	}

	c.state = target
	c.logger.Info("💡 Relay %s [%s] confirmed in %v", op, id, time.Since(start).Round(time.Millisecond))

	if c.notifier != nil {
		c.notifier.Notify(message)
	}
	return nil
}
