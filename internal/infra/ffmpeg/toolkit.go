package ffmpeg

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
)

// Toolkit opens frame sources and sinks backed by ffmpeg/ffprobe subprocesses.
type Toolkit struct {
	ffmpegBin  string
	ffprobeBin string
	codec      string
	logger     *zap.Logger
}

type ToolkitConfig struct {
	FFmpegBin  string
	FFprobeBin string
	Codec      string
}

func NewToolkit(cfg ToolkitConfig, logger *zap.Logger) *Toolkit {
	t := &Toolkit{
		ffmpegBin:  cfg.FFmpegBin,
		ffprobeBin: cfg.FFprobeBin,
		codec:      cfg.Codec,
		logger:     logger,
	}
	if t.ffmpegBin == "" {
		t.ffmpegBin = "ffmpeg"
	}
	if t.ffprobeBin == "" {
		t.ffprobeBin = "ffprobe"
	}
	if t.codec == "" {
		t.codec = "libx264"
	}
	return t
}

const stderrLimit = 8 << 10

// tailBuffer keeps the last stderrLimit bytes a subprocess wrote.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - stderrLimit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
