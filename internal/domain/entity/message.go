package entity

import "github.com/google/uuid"

// VideoUploadedMessage is the inbound trigger published once an upload is stored.
type VideoUploadedMessage struct {
	VideoID    int64  `json:"video_id"`
	SourcePath string `json:"source_path"`
}

// VideoStatusMessage is published on terminal transitions of a run.
type VideoStatusMessage struct {
	VideoID        int64            `json:"video_id"`
	RunID          uuid.UUID        `json:"run_id"`
	Status         ProcessingStatus `json:"status"`
	Progress       float64          `json:"progress"`
	OutputPath     string           `json:"output_path,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	FrameCount     int              `json:"frame_count,omitempty"`
	DetectionCount int              `json:"detection_count,omitempty"`
}
