package entity

import (
	"time"

	"github.com/google/uuid"
)

// VideoJob identifies one processing run for a video.
type VideoJob struct {
	RunID      uuid.UUID
	VideoID    int64
	SourcePath string
	OutputPath string
	FPS        float64
	Width      int
	Height     int
	FrameCount int
	StartedAt  time.Time
}

func NewVideoJob(videoID int64, sourcePath string) *VideoJob {
	return &VideoJob{
		RunID:      uuid.New(),
		VideoID:    videoID,
		SourcePath: sourcePath,
		StartedAt:  time.Now().UTC(),
	}
}

func (j *VideoJob) ApplyMetadata(m VideoMetadata) {
	j.FPS = m.FPS
	j.Width = m.Width
	j.Height = m.Height
	j.FrameCount = m.FrameCount
}

// VideoMetadata is the container information exposed by a frame source.
type VideoMetadata struct {
	FPS        float64
	Width      int
	Height     int
	FrameCount int
}

// Video is the durable record owned by the record layer.
type Video struct {
	ID         int64
	Filename   string
	SourcePath string
	OutputPath string
	CreatedAt  time.Time
}
