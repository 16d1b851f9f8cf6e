package state

import (
	"context"
	"sync"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/service/mailbox"
)

// AsyncCountWriter takes count writes off the frame path. Publish hands the
// latest count to a single background goroutine and returns immediately;
// counts published faster than the store absorbs them are coalesced.
type AsyncCountWriter struct {
	writer  *IngestWriter
	slot    *mailbox.Slot[int]
	logger  *logger.Logger
	timeout time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewAsyncCountWriter starts the background writer.
func NewAsyncCountWriter(writer *IngestWriter, logger *logger.Logger) *AsyncCountWriter {
	ctx, cancel := context.WithCancel(context.Background())
	w := &AsyncCountWriter{
		writer:  writer,
		slot:    mailbox.NewSlot[int](nil),
		logger:  logger,
		timeout: 2 * time.Second,
		cancel:  cancel,
	}

	w.wg.Add(1)
	go w.run(ctx)
	return w
}

// Publish queues n for persistence without blocking. Negative counts
// (frames that were not sampled) are ignored.
func (w *AsyncCountWriter) Publish(n int) {
	if n < 0 {
		return
	}
	w.slot.Publish(n)
}

func (w *AsyncCountWriter) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		n, err := w.slot.Wait(ctx)
		if err != nil {
			return
		}
		w.write(n)
	}
}

func (w *AsyncCountWriter) write(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.writer.SetCount(ctx, n); err != nil {
		w.logger.Warning("Failed to persist person count %d: %v", n, err)
		return
	}
	w.logger.Debug("Persisted person count %d", n)
}

// Close flushes the pending count, if any, and stops the background goroutine.
func (w *AsyncCountWriter) Close() {
	w.once.Do(func() {
		pending, ok := w.slot.Take()
		w.slot.Close()
		w.wg.Wait()
		w.cancel()
		if ok {
			w.write(pending)
		}
	})
}
