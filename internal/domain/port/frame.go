package port

import (
	"context"
	"errors"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

// ErrEndOfStream is returned by FrameSource.Next once the last frame was read.
var ErrEndOfStream = errors.New("end of stream")

// FrameSource is a forward-only, non-restartable sequence of decoded frames.
type FrameSource interface {
	Metadata() entity.VideoMetadata
	Next(ctx context.Context) (*entity.Frame, error)
	Close() error
}

type FrameSourceOpener interface {
	OpenSource(ctx context.Context, path string) (FrameSource, error)
}

// FrameSink appends frames, in order, to an output container.
type FrameSink interface {
	Write(ctx context.Context, frame *entity.Frame) error
	// Close finalizes the container so it is independently playable.
	Close() error
}

type FrameSinkOpener interface {
	OpenSink(ctx context.Context, path string, meta entity.VideoMetadata) (FrameSink, error)
}

type Renderer interface {
	Draw(frame *entity.Frame, detections []entity.ObjectDetection) *entity.Frame
}
