package port

import (
	"context"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

// Detector returns the target-class detections for one frame.
type Detector interface {
	Detect(ctx context.Context, frame *entity.Frame) ([]entity.ObjectDetection, error)
}
