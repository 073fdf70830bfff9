package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"go.uber.org/zap"
)

type sink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	meta   entity.VideoMetadata
	path   string
	frames int
	closed bool
	logger *zap.Logger
}

// OpenSink starts an encoder writing an H.264 mp4 with the given fps and size.
func (t *Toolkit) OpenSink(ctx context.Context, path string, meta entity.VideoMetadata) (port.FrameSink, error) {
	if meta.Width <= 0 || meta.Height <= 0 || meta.FPS <= 0 {
		return nil, entity.NewProcessingError(entity.KindSinkOpen, "validate sink",
			fmt.Errorf("invalid output format %dx%d@%.3f", meta.Width, meta.Height, meta.FPS))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, entity.NewProcessingError(entity.KindSinkOpen, "create output dir", err)
	}

	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", meta.Width, meta.Height),
		"-r", strconv.FormatFloat(meta.FPS, 'f', -1, 64),
		"-i", "-",
		"-c:v", t.codec,
		"-pix_fmt", "yuv420p",
	}
	// yuv420p needs even dimensions.
	if meta.Width%2 != 0 || meta.Height%2 != 0 {
		args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	}
	args = append(args, "-movflags", "+faststart", path)

	cmd := exec.Command(t.ffmpegBin, args...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindSinkOpen, "encoder pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, entity.NewProcessingError(entity.KindSinkOpen, "start encoder", err)
	}

	return &sink{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		meta:   meta,
		path:   path,
		logger: t.logger,
	}, nil
}

func (s *sink) Write(ctx context.Context, frame *entity.Frame) error {
	if s.closed {
		return fmt.Errorf("write to closed sink")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img := frame.Image
	b := img.Bounds()
	if b.Dx() != s.meta.Width || b.Dy() != s.meta.Height {
		return fmt.Errorf("frame %d is %dx%d, sink expects %dx%d",
			frame.Index, b.Dx(), b.Dy(), s.meta.Width, s.meta.Height)
	}

	rowLen := 4 * b.Dx()
	if img.Stride == rowLen {
		if _, err := s.stdin.Write(img.Pix[:rowLen*b.Dy()]); err != nil {
			return fmt.Errorf("write frame %d: %w, output: %s", frame.Index, err, s.stderr.String())
		}
	} else {
		for y := 0; y < b.Dy(); y++ {
			off := y * img.Stride
			if _, err := s.stdin.Write(img.Pix[off : off+rowLen]); err != nil {
				return fmt.Errorf("write frame %d: %w, output: %s", frame.Index, err, s.stderr.String())
			}
		}
	}
	s.frames++
	return nil
}

func (s *sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("finalize %s: %w, output: %s", s.path, err, s.stderr.String())
	}
	s.logger.Debug("frame sink finalized", zap.String("path", s.path), zap.Int("frames", s.frames))
	return nil
}
