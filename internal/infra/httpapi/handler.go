package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatusReader interface {
	GetStatus(ctx context.Context, videoID int64) (entity.Progress, error)
	ListDetections(ctx context.Context, videoID int64) ([]entity.Detection, error)
}

type RunLister interface {
	Active() []*usecase.RunHandle
}

type VideoRemover interface {
	Delete(ctx context.Context, videoID int64) error
}

type VideoHandler struct {
	starter usecase.Starter
	status  StatusReader
	runs    RunLister
	remover VideoRemover
	logger  *zap.Logger
}

func NewVideoHandler(starter usecase.Starter, status StatusReader, runs RunLister, remover VideoRemover, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{starter: starter, status: status, runs: runs, remover: remover, logger: logger}
}

type processRequest struct {
	SourcePath string `json:"source_path"`
}

type detectionResponse struct {
	ID          int64   `json:"id"`
	FrameNumber int     `json:"frame_number"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Confidence  float64 `json:"confidence"`
	Class       string  `json:"class"`
}

func videoID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return 0, false
	}
	return id, true
}

// Process launches a run and answers without waiting for it.
func (h *VideoHandler) Process(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}

	var req processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	outcome, run, err := h.starter.Start(c.Request.Context(), id, req.SourcePath)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		if errors.Is(err, entity.ErrInvalidSource) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to start processing", zap.Int64("video_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"status": entity.StatusProcessing}
	if run != nil {
		body["run_id"] = run.RunID
	}

	switch outcome {
	case usecase.OutcomeAlreadyProcessed:
		c.JSON(http.StatusOK, gin.H{"status": entity.StatusCompleted, "message": "Video already processed"})
	case usecase.OutcomeAlreadyRunning:
		body["message"] = "Video is already being processed"
		c.JSON(http.StatusConflict, body)
	default:
		body["message"] = "Video processing started"
		c.JSON(http.StatusAccepted, body)
	}
}

func (h *VideoHandler) Status(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}

	p, err := h.status.GetStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *VideoHandler) Detections(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}

	list, err := h.status.ListDetections(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no detections found for this video"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]detectionResponse, 0, len(list))
	for _, d := range list {
		out = append(out, detectionResponse{
			ID:          d.ID,
			FrameNumber: d.FrameNumber,
			X:           d.Box.X,
			Y:           d.Box.Y,
			Width:       d.Box.Width,
			Height:      d.Box.Height,
			Confidence:  d.Confidence,
			Class:       d.Class,
		})
	}
	c.JSON(http.StatusOK, gin.H{"video_id": id, "detections": out})
}

// Delete removes a video with its detections and annotated output.
func (h *VideoHandler) Delete(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}

	err := h.remover.Delete(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
	case errors.Is(err, usecase.ErrRunActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Video is being processed"})
	default:
		h.logger.Error("failed to delete video", zap.Int64("video_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *VideoHandler) Runs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.runs.Active()})
}
