// Package capture reads frames from the camera stream and recovers from
// transient network failures by reopening the stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"relaywatch/internal/logger"

	"gocv.io/x/gocv"
)

var (
	ErrConnectFailed = errors.New("stream connect failed")
	ErrReadFailed    = errors.New("stream read failed")
	ErrClosed        = errors.New("source closed")
)

// MinReopenAfter is the smallest accepted consecutive-failure threshold.
const MinReopenAfter = 3

// Frame is one decoded image. Index starts at 0 and increases by one per
// successful read for the lifetime of the Source.
type Frame struct {
	Mat      gocv.Mat
	Index    int64
	Captured time.Time
}

// Capture is the subset of *gocv.VideoCapture the source needs.
type Capture interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

// Opener opens a capture handle for url.
type Opener func(url string) (Capture, error)

// FFmpegOpener returns an Opener that forces RTSP over TCP and bounds socket
// waits with timeout.
func FFmpegOpener(timeout time.Duration) Opener {
	return func(url string) (Capture, error) {
		us := timeout.Microseconds()
		// Read by OpenCV's FFmpeg backend when the capture is created.
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", fmt.Sprintf("rtsp_transport;tcp|stimeout;%d|timeout;%d", us, us))

		vc, err := gocv.OpenVideoCaptureWithAPI(url, gocv.VideoCaptureFFmpeg)
		if err != nil {
			return nil, err
		}
		vc.Set(gocv.VideoCaptureBufferSize, 1)
		return vc, nil
	}
}

type Options struct {
	URL         string
	ReopenAfter int // consecutive failed reads that trigger a reopen
}

type Source struct {
	url         string
	open        Opener
	reopenAfter int
	logger      *logger.Logger

	mu         sync.Mutex
	cap        Capture
	reading    Capture // handle currently inside Read, released only by that reader
	closed     bool
	fails      int
	index      int64
	reconnects int
}

func NewSource(opts Options, open Opener, logger *logger.Logger) *Source {
	k := opts.ReopenAfter
	if k < MinReopenAfter {
		k = MinReopenAfter
	}
	return &Source{
		url:         opts.URL,
		open:        open,
		reopenAfter: k,
		logger:      logger,
	}
}

// Open connects to the stream. It may be called again after Close.
func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = false
	s.fails = 0
	return s.openLocked()
}

func (s *Source) openLocked() error {
	s.detachLocked()

	c, err := s.open(s.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if !c.IsOpened() {
		c.Close()
		return fmt.Errorf("%w: capture not opened", ErrConnectFailed)
	}

	s.cap = c
	s.logger.Info("📹 Stream opened")
	return nil
}

// Read decodes the next frame into dst. A failed or empty read returns
// ErrReadFailed; every reopenAfter-th consecutive failure also reopens the
// stream, and if that reopen fails ErrConnectFailed is returned instead.
func (s *Source) Read(dst *gocv.Mat) (Frame, error) {
	s.mu.Lock()
	c, closed := s.cap, s.closed
	if !closed && c != nil {
		s.reading = c
	}
	s.mu.Unlock()

	if closed {
		return Frame{}, ErrClosed
	}
	if c == nil {
		return Frame{}, fmt.Errorf("%w: not opened", ErrConnectFailed)
	}

	// Not under mu: a read may block until the backend timeout.
	ok := c.Read(dst)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = nil

	// Close or Open detached the handle while it was being read.
	if c != s.cap {
		c.Close()
		if s.closed {
			return Frame{}, ErrClosed
		}
		return Frame{}, fmt.Errorf("%w: stream replaced during read", ErrReadFailed)
	}

	if ok && !dst.Empty() {
		s.fails = 0
		f := Frame{Mat: *dst, Index: s.index, Captured: time.Now()}
		s.index++
		return f, nil
	}

	s.fails++
	if s.fails%s.reopenAfter != 0 {
		return Frame{}, fmt.Errorf("%w (%d consecutive)", ErrReadFailed, s.fails)
	}

	s.reconnects++
	s.logger.Warning("🔄 %d consecutive read failures, reopening stream", s.fails)
	if err := s.openLocked(); err != nil {
		return Frame{}, err
	}
	return Frame{}, fmt.Errorf("%w (%d consecutive, stream reopened)", ErrReadFailed, s.fails)
}

// Close marks the source closed and releases the capture handle. A handle
// that another goroutine is reading is released by that goroutine when its
// Read returns, never underneath it. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return s.detachLocked()
}

func (s *Source) detachLocked() error {
	c := s.cap
	s.cap = nil
	if c == nil || c == s.reading {
		return nil
	}
	return c.Close()
}

// Reconnects reports how many failure-triggered reopens happened.
func (s *Source) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}
