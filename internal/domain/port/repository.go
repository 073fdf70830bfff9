package port

import (
	"context"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

// DetectionStore commits every record independently.
type DetectionStore interface {
	Record(ctx context.Context, videoID int64, frameNumber int, box entity.Box, confidence float64, class string) (*entity.Detection, error)
	ListByVideo(ctx context.Context, videoID int64) ([]entity.Detection, error)
	HasDetections(ctx context.Context, videoID int64) (bool, error)
	// DeleteByVideo removes every record of videoID and reports how many went.
	DeleteByVideo(ctx context.Context, videoID int64) (int64, error)
}

type VideoRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Video, error)
	SetOutputPath(ctx context.Context, id int64, outputPath string) error
	Delete(ctx context.Context, id int64) error
}

type ProgressTracker interface {
	SetPending(videoID int64)
	SetProcessing(videoID int64, progress float64)
	SetCompleted(videoID int64)
	SetFailed(videoID int64, errMsg string)
	Get(videoID int64) (entity.ProcessingState, error)
	Forget(videoID int64)
}
