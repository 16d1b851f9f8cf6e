package ai

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"relaywatch/internal/logger"

	"gocv.io/x/gocv"
)

// ErrDetectorUnavailable means the model could not be loaded. It disables
// detection only; capture and display keep running.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// PersonLabel is the COCO label counted as presence.
const PersonLabel = "person"

// Detection is one object found in an image, in that image's pixel space.
type Detection struct {
	Label      string
	ClassID    int
	Confidence float32
	Box        image.Rectangle
}

// Predictor runs object detection on a BGR image.
type Predictor interface {
	Predict(img gocv.Mat, conf float32) ([]Detection, error)
}

type YOLOConfig struct {
	ModelPath string
	NMSThresh float32
	InputSize int
}

// YOLODetector runs a YOLOv8 ONNX export through OpenCV's DNN module.
type YOLODetector struct {
	net    gocv.Net
	cfg    YOLOConfig
	logger *logger.Logger
	mu     sync.Mutex
}

// NewYOLODetector loads the network. Failures wrap ErrDetectorUnavailable.
func NewYOLODetector(cfg YOLOConfig, logger *logger.Logger) (*YOLODetector, error) {
	if cfg.NMSThresh <= 0 {
		cfg.NMSThresh = 0.45
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}

	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrDetectorUnavailable, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load network from %s", ErrDetectorUnavailable, cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	logger.Info("🧠 Detection network initialized from %s", cfg.ModelPath)
	return &YOLODetector{net: net, cfg: cfg, logger: logger}, nil
}

// Predict returns the detections above conf after non-maximum suppression.
func (d *YOLODetector) Predict(img gocv.Mat, conf float32) ([]Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parse(output, float32(img.Cols()), float32(img.Rows()), conf)
}

// parse reads the [1, 4+classes, candidates] YOLOv8 output tensor.
func (d *YOLODetector) parse(output gocv.Mat, imgW, imgH, conf float32) ([]Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	channels, candidates := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	sx := imgW / float32(d.cfg.InputSize)
	sy := imgH / float32(d.cfg.InputSize)

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	for i := 0; i < candidates; i++ {
		best, bestID := float32(0), 0
		for c := 4; c < channels; c++ {
			if score := data[c*candidates+i]; score > best {
				best, bestID = score, c-4
			}
		}
		if best < conf {
			continue
		}

		cx, cy := data[i], data[candidates+i]
		w, h := data[2*candidates+i], data[3*candidates+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, best)
		classIDs = append(classIDs, bestID)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, conf, d.cfg.NMSThresh)
	detections := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		detections = append(detections, Detection{
			Label:      classLabel(classIDs[idx]),
			ClassID:    classIDs[idx],
			Confidence: confidences[idx],
			Box:        boxes[idx],
		})
	}
	return detections, nil
}

func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func classLabel(id int) string {
	if id >= 0 && id < len(cocoClasses) {
		return cocoClasses[id]
	}
	return fmt.Sprintf("class%d", id)
}

var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
