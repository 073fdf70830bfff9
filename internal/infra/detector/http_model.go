package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

// HTTPModel calls an inference server that accepts a JPEG frame on
// POST /v1/detect and answers with corner-format boxes.
type HTTPModel struct {
	endpoint string
	client   *http.Client
	quality  int
}

type HTTPModelConfig struct {
	Endpoint    string
	Timeout     time.Duration
	JPEGQuality int
}

type detectResponse struct {
	Detections []struct {
		Class      string     `json:"class"`
		Confidence float64    `json:"confidence"`
		BBox       [4]float64 `json:"bbox"`
	} `json:"detections"`
}

// NewHTTPLoader returns a Loader that checks the server is ready before
// handing out the model.
func NewHTTPLoader(cfg HTTPModelConfig) Loader {
	return func(ctx context.Context) (Model, error) {
		if cfg.Timeout <= 0 {
			cfg.Timeout = 30 * time.Second
		}
		if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
			cfg.JPEGQuality = 90
		}
		m := &HTTPModel{
			endpoint: strings.TrimRight(cfg.Endpoint, "/"),
			client:   &http.Client{Timeout: cfg.Timeout},
			quality:  cfg.JPEGQuality,
		}
		if err := m.ready(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func (m *HTTPModel) ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("detector health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector health: status %d", resp.StatusCode)
	}
	return nil
}

// Infer is safe for concurrent use.
func (m *HTTPModel) Infer(ctx context.Context, frame *entity.Frame) ([]entity.ObjectDetection, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame.Image, &jpeg.Options{Quality: m.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/v1/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}

	dets := make([]entity.ObjectDetection, 0, len(out.Detections))
	for _, d := range out.Detections {
		dets = append(dets, entity.ObjectDetection{
			Class:      d.Class,
			Confidence: d.Confidence,
			Box:        entity.BoxFromCorners(d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]),
		})
	}
	return dets, nil
}
