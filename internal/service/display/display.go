// Package display hands annotated frames from the ingestion worker to the
// viewers without ever blocking the worker.
package display

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"relaywatch/internal/logger"
	"relaywatch/internal/service/mailbox"

	"gocv.io/x/gocv"
)

// Broadcaster delivers encoded messages to viewers.
type Broadcaster interface {
	Broadcast(message []byte) bool
	GetClientCount() int
}

// Update is what viewers receive for one frame.
type Update struct {
	Image string `json:"image"` // base64 JPEG
	Count int    `json:"count"` // -1 when the frame was not sampled
	Frame int64  `json:"frame"`
}

type pending struct {
	mat   gocv.Mat
	count int
	index int64
}

// Display keeps only the newest frame; older undelivered frames are released.
type Display struct {
	slot   *mailbox.Slot[pending]
	out    Broadcaster
	logger *logger.Logger
}

func New(out Broadcaster, logger *logger.Logger) *Display {
	return &Display{
		slot:   mailbox.NewSlot(func(p pending) { p.mat.Close() }),
		out:    out,
		logger: logger,
	}
}

// Offer copies frame for the viewers. It returns false without copying when
// nobody is watching. It never blocks.
func (d *Display) Offer(frame gocv.Mat, count int, index int64) bool {
	if d.out.GetClientCount() == 0 || frame.Empty() {
		return false
	}
	d.slot.Publish(pending{mat: frame.Clone(), count: count, index: index})
	return true
}

// Run encodes and broadcasts frames until ctx is cancelled.
func (d *Display) Run(ctx context.Context) {
	defer d.slot.Close()

	for {
		p, err := d.slot.Wait(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, mailbox.ErrClosed) {
				d.logger.Warning("Display stopped: %v", err)
			}
			return
		}

		msg, err := encode(p)
		p.mat.Close()
		if err != nil {
			d.logger.Error("Failed to encode frame %d: %v", p.index, err)
			continue
		}
		d.out.Broadcast(msg)
	}
}

func encode(p pending) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, p.mat)
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	defer buf.Close()

	return json.Marshal(Update{
		Image: base64.StdEncoding.EncodeToString(buf.GetBytes()),
		Count: p.count,
		Frame: p.index,
	})
}

// Dropped reports how many frames were replaced before a viewer saw them.
func (d *Display) Dropped() uint64 {
	_, dropped := d.slot.Stats()
	return dropped
}
