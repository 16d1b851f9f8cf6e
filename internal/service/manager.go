package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/service/ai"
	"relaywatch/internal/service/capture"

	"gocv.io/x/gocv"
)

var ErrWorkerStuck = errors.New("previous ingestion worker has not exited")

// FrameSource is the stream the worker reads. *capture.Source implements it.
type FrameSource interface {
	Open(ctx context.Context) error
	Read(dst *gocv.Mat) (capture.Frame, error)
	Close() error
	Reconnects() int
}

// Processor turns frames into counts. *ai.Pipeline implements it. An error
// from either method halts frame production.
type Processor interface {
	Ready() error
	Process(frame capture.Frame) (ai.Result, error)
}

// Viewer receives frames for display without blocking.
type Viewer interface {
	Offer(frame gocv.Mat, count int, index int64) bool
}

// CountPublisher forwards sampled counts to the shared store without blocking.
type CountPublisher interface {
	Publish(n int)
}

type ManagerOptions struct {
	StopGrace    time.Duration
	RetryBackoff time.Duration
}

// Status is a point-in-time view of the ingestion worker.
type Status struct {
	Running    bool   `json:"running"`
	Frames     int64  `json:"frames"`
	LastCount  int    `json:"last_count"`
	Reconnects int    `json:"reconnects"`
	LastError  string `json:"last_error,omitempty"`
}

// Manager owns the ingestion worker: it reads frames, runs detection and
// hands results to the viewers and the shared store.
type Manager struct {
	source    FrameSource
	processor Processor
	viewer    Viewer
	counts    CountPublisher
	logger    *logger.Logger
	opts      ManagerOptions

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
	frames    int64
	lastCount int
	lastErr   error
}

func NewManager(source FrameSource, processor Processor, viewer Viewer, counts CountPublisher, opts ManagerOptions, logger *logger.Logger) *Manager {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	return &Manager{
		source:    source,
		processor: processor,
		viewer:    viewer,
		counts:    counts,
		logger:    logger,
		opts:      opts,
		lastCount: ai.CountUnknown,
	}
}

// Start opens the stream and launches the worker. It is a no-op while the
// worker runs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if m.done != nil {
		select {
		case <-m.done:
		default:
			return ErrWorkerStuck
		}
	}

	if err := m.processor.Ready(); err != nil {
		m.lastErr = err
		m.logger.Error("❌ Ingestion not started: %v", err)
		return err
	}
	if err := m.source.Open(ctx); err != nil {
		m.lastErr = err
		m.logger.Error("Failed to open stream: %v", err)
		return err
	}

	if m.cancel != nil {
		m.cancel()
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.lastErr = nil

	go m.worker(workerCtx, m.done)
	m.logger.Info("🎬 Ingestion started")
	return nil
}

func (m *Manager) worker(ctx context.Context, done chan struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	for ctx.Err() == nil {
		frame, err := m.source.Read(&mat)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			if err := m.handle(frame); err != nil {
				m.halt(err)
				return
			}
		case errors.Is(err, capture.ErrReadFailed):
			m.logger.Debug("%v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.RetryBackoff):
			}
		default:
			m.halt(err)
			return
		}
	}
}

func (m *Manager) handle(frame capture.Frame) error {
	res, err := m.processor.Process(frame)
	if err != nil {
		return err
	}

	if res.Sampled() {
		m.counts.Publish(res.Count)
	}
	if m.viewer != nil {
		m.viewer.Offer(frame.Mat, res.Count, frame.Index)
	}

	m.mu.Lock()
	m.frames++
	if res.Sampled() {
		m.lastCount = res.Count
	}
	m.mu.Unlock()
	return nil
}

// halt stops frame production after an unrecoverable error. The process keeps
// running; Start resumes.
func (m *Manager) halt(err error) {
	m.logger.Error("❌ Ingestion halted: %v", err)

	m.mu.Lock()
	m.lastErr = err
	m.running = false
	m.mu.Unlock()

	m.source.Close()
}

// Stop cancels the worker and waits up to the grace period for its current
// read to return before releasing the stream. A worker that is still blocked
// after that is abandoned and Stop returns an error; the source releases the
// handle once that read finally returns.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		m.closeSource()
		m.logger.Info("🛑 Ingestion stopped")
		return nil
	case <-time.After(m.opts.StopGrace):
		m.closeSource()
		err := fmt.Errorf("ingestion worker did not stop within %v, abandoned", m.opts.StopGrace)
		m.logger.Error("%v", err)
		return err
	}
}

func (m *Manager) closeSource() {
	if err := m.source.Close(); err != nil {
		m.logger.Warning("Closing stream: %v", err)
	}
}

// Restart stops the worker if needed and starts it again.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(); err != nil {
		return err
	}
	return m.Start(ctx)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Running:    m.running,
		Frames:     m.frames,
		LastCount:  m.lastCount,
		Reconnects: m.source.Reconnects(),
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}
