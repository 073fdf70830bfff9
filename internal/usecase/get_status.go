package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
)

// StatusQuery answers progress and detection queries for the record layer.
type StatusQuery struct {
	tracker    port.ProgressTracker
	detections port.DetectionStore
	videos     port.VideoRepository
}

func NewStatusQuery(tracker port.ProgressTracker, detections port.DetectionStore, videos port.VideoRepository) *StatusQuery {
	return &StatusQuery{tracker: tracker, detections: detections, videos: videos}
}

// GetProgress reads only the tracker: unseen videos are pending/0 and failed
// runs report 0.
func (q *StatusQuery) GetProgress(videoID int64) entity.Progress {
	st, err := q.tracker.Get(videoID)
	if err != nil {
		return entity.Progress{Status: entity.StatusPending, Progress: 0}
	}
	return st.View()
}

// GetStatus is GetProgress for a known video, re-deriving completion from
// durable records when the tracker has nothing (e.g. after a restart).
func (q *StatusQuery) GetStatus(ctx context.Context, videoID int64) (entity.Progress, error) {
	video, err := q.videos.FindByID(ctx, videoID)
	if err != nil {
		return entity.Progress{}, err
	}

	if st, err := q.tracker.Get(videoID); err == nil {
		return st.View(), nil
	}

	if video.OutputPath != "" {
		return entity.Progress{Status: entity.StatusCompleted, Progress: 100}, nil
	}
	has, err := q.detections.HasDetections(ctx, videoID)
	if err != nil {
		return entity.Progress{}, fmt.Errorf("check detections: %w", err)
	}
	if has {
		return entity.Progress{Status: entity.StatusCompleted, Progress: 100}, nil
	}
	return entity.Progress{Status: entity.StatusPending, Progress: 0}, nil
}

// ListDetections returns a video's detections ordered by frame, or
// entity.ErrNotFound when the video is unknown or has none.
func (q *StatusQuery) ListDetections(ctx context.Context, videoID int64) ([]entity.Detection, error) {
	if _, err := q.videos.FindByID(ctx, videoID); err != nil {
		return nil, err
	}
	list, err := q.detections.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no detections for video %d: %w", videoID, entity.ErrNotFound)
	}
	return list, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, entity.ErrNotFound)
}
