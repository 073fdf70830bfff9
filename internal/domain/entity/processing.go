package entity

import "time"

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProcessingState is the advisory, in-memory progress of a video's latest run.
type ProcessingState struct {
	VideoID   int64
	Status    ProcessingStatus
	Progress  float64
	Error     string
	UpdatedAt time.Time
}

// Progress is what status queries report.
type Progress struct {
	Status   ProcessingStatus `json:"status"`
	Progress float64          `json:"progress"`
}

// View applies the reporting convention: failed runs report 0, completed 100.
func (s ProcessingState) View() Progress {
	switch s.Status {
	case StatusFailed:
		return Progress{Status: StatusFailed, Progress: 0}
	case StatusCompleted:
		return Progress{Status: StatusCompleted, Progress: 100}
	default:
		return Progress{Status: s.Status, Progress: s.Progress}
	}
}
