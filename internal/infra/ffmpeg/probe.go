package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

type probeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Probe reads frame rate, dimensions and frame count of the first video stream.
func (t *Toolkit) Probe(ctx context.Context, path string) (entity.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, t.ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,nb_read_packets",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return entity.VideoMetadata{}, fmt.Errorf("ffprobe: %w, output: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return entity.VideoMetadata{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(data []byte) (entity.VideoMetadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return entity.VideoMetadata{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return entity.VideoMetadata{}, fmt.Errorf("no video stream")
	}
	s := out.Streams[0]

	fps, err := parseFrameRate(s.AvgFrameRate)
	if err != nil || fps == 0 {
		fps, err = parseFrameRate(s.RFrameRate)
		if err != nil {
			return entity.VideoMetadata{}, err
		}
	}

	count := parseCount(s.NbFrames)
	if count == 0 {
		count = parseCount(s.NbReadPackets)
	}

	return entity.VideoMetadata{
		FPS:        fps,
		Width:      s.Width,
		Height:     s.Height,
		FrameCount: count,
	}, nil
}

// parseFrameRate accepts ffprobe rationals such as "30000/1001" or plain numbers.
func parseFrameRate(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty frame rate")
	}
	num, den, found := strings.Cut(v, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", v, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", v, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}

func parseCount(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
