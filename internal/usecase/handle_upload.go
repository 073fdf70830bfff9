package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Starter is the trigger boundary implemented by Supervisor.
type Starter interface {
	Start(ctx context.Context, videoID int64, sourcePath string) (StartOutcome, *RunHandle, error)
}

// HandleUploadUseCase turns upload-completed messages into runs.
type HandleUploadUseCase struct {
	starter Starter
	dlq     port.DLQPublisher
	logger  *zap.Logger
}

func NewHandleUploadUseCase(starter Starter, dlq port.DLQPublisher, logger *zap.Logger) *HandleUploadUseCase {
	return &HandleUploadUseCase{starter: starter, dlq: dlq, logger: logger}
}

// Execute acknowledges as soon as the run is launched. Messages that can never
// succeed go to the DLQ; a nil error means "do not redeliver".
func (uc *HandleUploadUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "HandleUploadUseCase.Execute")
	defer span.End()

	var msg entity.VideoUploadedMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		uc.toDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.VideoID <= 0 {
		uc.logger.Error("message without video id", zap.ByteString("body", rawMsg))
		uc.toDLQ(ctx, rawMsg, "invalid_video_id")
		return nil
	}

	span.SetAttributes(attribute.Int64("video.id", msg.VideoID))
	log := uc.logger.With(zap.Int64("video_id", msg.VideoID))

	outcome, _, err := uc.starter.Start(ctx, msg.VideoID, msg.SourcePath)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			log.Warn("video record not found, discarding trigger")
			uc.toDLQ(ctx, rawMsg, "video_not_found")
			return nil
		}
		if errors.Is(err, entity.ErrInvalidSource) {
			log.Warn("unusable source path, discarding trigger", zap.Error(err))
			uc.toDLQ(ctx, rawMsg, "invalid_source_path")
			return nil
		}
		log.Error("failed to start processing", zap.Error(err))
		return fmt.Errorf("start processing video %d: %w", msg.VideoID, err)
	}

	log.Info("upload trigger handled", zap.String("outcome", string(outcome)))
	return nil
}

func (uc *HandleUploadUseCase) toDLQ(ctx context.Context, rawMsg []byte, reason string) {
	if uc.dlq == nil {
		return
	}
	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, reason); err != nil {
		uc.logger.Error("failed to publish to DLQ", zap.String("reason", reason), zap.Error(err))
	}
}
