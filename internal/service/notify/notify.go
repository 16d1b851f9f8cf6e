// Package notify delivers best-effort, unacknowledged notifications.
package notify

import (
	"context"
	"sync"
	"time"

	"relaywatch/internal/logger"
)

// Notifier sends one text to one destination. Implementations do not retry.
type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// Dispatcher queues notifications for a background sender so callers never
// block on the transport. When the queue is full the message is dropped.
type Dispatcher struct {
	notifier    Notifier
	destination string
	logger      *logger.Logger
	timeout     time.Duration

	mu     sync.RWMutex // guards closed; senders hold it for reading
	closed bool
	queue  chan string
	wg     sync.WaitGroup
}

// NewDispatcher starts a dispatcher delivering to destination through n.
func NewDispatcher(n Notifier, destination string, logger *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		notifier:    n,
		destination: destination,
		logger:      logger,
		timeout:     10 * time.Second,
		queue:       make(chan string, 16),
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Notify queues text and returns immediately. It reports whether the message
// was queued.
func (d *Dispatcher) Notify(text string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- text:
		return true
	default:
		d.logger.Warning("Notification queue full, dropping %q", text)
		return false
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for text := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.notifier.Send(ctx, d.destination, text); err != nil {
			d.logger.Warning("Notification to %s failed: %v", d.destination, err)
		} else {
			d.logger.Info("📨 Notification pushed to %s: %q", d.destination, text)
		}
		cancel()
	}
}

// Close stops accepting messages and waits for queued ones to be attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// LogNotifier only writes the notification to the log. It is used when no
// modem is configured.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n LogNotifier) Send(_ context.Context, destination, text string) error {
	n.Logger.Info("Notification for %s (no transport configured): %s", destination, text)
	return nil
}
