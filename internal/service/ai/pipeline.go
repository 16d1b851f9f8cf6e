// Package ai turns captured frames into person counts.
package ai

import (
	"fmt"
	"image"
	"image/color"

	"relaywatch/internal/logger"
	"relaywatch/internal/service/capture"

	"gocv.io/x/gocv"
)

// CountUnknown marks a frame that was not sampled by the detector. It is not
// the same as seeing nobody.
const CountUnknown = -1

type PipelineConfig struct {
	InferEveryN int
	InferWidth  int // 0 disables downscaling
	Confidence  float32
	DrawBoxes   bool
}

// Result is the outcome for one frame. Detections are in full-frame pixels.
type Result struct {
	Index      int64
	Count      int
	Detections []Detection
}

// Sampled reports whether the detector ran on the frame.
func (r Result) Sampled() bool {
	return r.Count != CountUnknown
}

type Pipeline struct {
	predictor Predictor
	cfg       PipelineConfig
	logger    *logger.Logger
}

func NewPipeline(predictor Predictor, cfg PipelineConfig, logger *logger.Logger) *Pipeline {
	if cfg.InferEveryN < 1 {
		cfg.InferEveryN = 1
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.35
	}
	return &Pipeline{predictor: predictor, cfg: cfg, logger: logger}
}

// Ready returns ErrDetectorUnavailable when no detector was loaded.
func (p *Pipeline) Ready() error {
	if p.predictor == nil {
		return fmt.Errorf("%w: no model loaded", ErrDetectorUnavailable)
	}
	return nil
}

// Process counts the people in frame when its index is selected for
// inference, otherwise it reports CountUnknown. With DrawBoxes the person
// boxes are drawn onto frame.Mat after counting. A failed inference is logged
// and reported as CountUnknown; only a missing detector is returned as an
// error.
func (p *Pipeline) Process(frame capture.Frame) (Result, error) {
	res := Result{Index: frame.Index, Count: CountUnknown}
	if err := p.Ready(); err != nil {
		return res, err
	}
	if frame.Index%int64(p.cfg.InferEveryN) != 0 || frame.Mat.Empty() {
		return res, nil
	}

	detections, err := p.detect(frame.Mat)
	if err != nil {
		p.logger.Warning("Detection failed on frame %d: %v", frame.Index, err)
		return res, nil
	}

	res.Count = 0
	for _, d := range detections {
		if d.Label == PersonLabel {
			res.Count++
			res.Detections = append(res.Detections, d)
		}
	}

	if p.cfg.DrawBoxes && len(res.Detections) > 0 {
		if err := drawDetections(&frame.Mat, res.Detections); err != nil {
			p.logger.Warning("Overlay failed on frame %d: %v", frame.Index, err)
		}
	}
	return res
}

// detect runs the predictor on a copy no wider than InferWidth and maps the
// boxes back to the frame's resolution.
func (p *Pipeline) detect(img gocv.Mat) ([]Detection, error) {
	w, h := img.Cols(), img.Rows()
	if p.cfg.InferWidth <= 0 || w <= p.cfg.InferWidth {
		return p.predictor.Predict(img, p.cfg.Confidence)
	}

	scale := float64(p.cfg.InferWidth) / float64(w)
	size := image.Pt(p.cfg.InferWidth, int(float64(h)*scale))

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(img, &small, size, 0, 0, gocv.InterpolationLinear)

	detections, err := p.predictor.Predict(small, p.cfg.Confidence)
	if err != nil {
		return nil, err
	}

	sx := float64(w) / float64(size.X)
	sy := float64(h) / float64(size.Y)
	for i := range detections {
		detections[i].Box = scaleRect(detections[i].Box, sx, sy)
	}
	return detections, nil
}

func scaleRect(r image.Rectangle, sx, sy float64) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*sx), int(float64(r.Min.Y)*sy),
		int(float64(r.Max.X)*sx), int(float64(r.Max.Y)*sy),
	)
}

func drawDetections(mat *gocv.Mat, detections []Detection) error {
	green := color.RGBA{R: 0, G: 255, B: 0, A: 0}

	for _, d := range detections {
		if err := gocv.Rectangle(mat, d.Box, green, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %v", err)
		}
		label := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		if err := gocv.PutText(mat, label, image.Pt(d.Box.Min.X, d.Box.Min.Y-5), gocv.FontHersheySimplex, 0.5, green, 1); err != nil {
			return fmt.Errorf("failed to draw text: %v", err)
		}
	}
	return nil
}
