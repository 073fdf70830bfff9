package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"go.uber.org/zap"
)

type source struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	meta   entity.VideoMetadata
	index  int
	closed bool
	logger *zap.Logger
}

// OpenSource probes the container and starts decoding it to raw RGBA frames.
// Unreadable containers and containers without frames fail with ErrSourceOpen.
func (t *Toolkit) OpenSource(ctx context.Context, path string) (port.FrameSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "stat source", err)
	}

	meta, err := t.Probe(ctx, path)
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "probe source", err)
	}
	if meta.FrameCount == 0 {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "probe source", errors.New("video has no frames"))
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "probe source",
			fmt.Errorf("invalid dimensions %dx%d", meta.Width, meta.Height))
	}

	// The decoder outlives the caller's request, so it is not bound to ctx.
	cmd := exec.Command(t.ffmpegBin,
		"-v", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "decoder pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "start decoder", err)
	}

	t.logger.Debug("frame source opened",
		zap.String("path", path),
		zap.Float64("fps", meta.FPS),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
		zap.Int("frame_count", meta.FrameCount),
	)

	return &source{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		meta:   meta,
		logger: t.logger,
	}, nil
}

func (s *source) Metadata() entity.VideoMetadata { return s.meta }

func (s *source) Next(ctx context.Context) (*entity.Frame, error) {
	if s.closed {
		return nil, port.ErrEndOfStream
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, s.meta.Width, s.meta.Height))
	_, err := io.ReadFull(s.stdout, img.Pix)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return nil, port.ErrEndOfStream
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("truncated frame %d: %s", s.index, s.stderr.String())
	default:
		return nil, fmt.Errorf("read frame %d: %w", s.index, err)
	}

	f := &entity.Frame{Index: s.index, Image: img}
	s.index++
	return f, nil
}

// Close releases the decoder; frames not yet read are discarded.
func (s *source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.stdout.Close()
	_ = s.cmd.Process.Kill()
	if err := s.cmd.Wait(); err != nil {
		s.logger.Debug("decoder exited", zap.Error(err), zap.String("stderr", s.stderr.String()))
	}
	return nil
}
