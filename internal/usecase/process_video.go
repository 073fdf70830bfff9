package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"github.com/Sane-Sunil/Human-detection/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type ProcessVideoUseCase struct {
	sources    port.FrameSourceOpener
	sinks      port.FrameSinkOpener
	detector   port.Detector
	renderer   port.Renderer
	detections port.DetectionStore
	videos     port.VideoRepository
	tracker    port.ProgressTracker
	publisher  port.StatusPublisher
	archive    port.OutputArchive
	notifier   port.FailureNotifier
	logger     *zap.Logger
	outputDir  string
}

type ProcessVideoConfig struct {
	OutputDir string
}

// NewProcessVideoUseCase wires the per-video pipeline. publisher, archive and
// notifier are optional and may be nil.
func NewProcessVideoUseCase(
	sources port.FrameSourceOpener,
	sinks port.FrameSinkOpener,
	detector port.Detector,
	renderer port.Renderer,
	detections port.DetectionStore,
	videos port.VideoRepository,
	tracker port.ProgressTracker,
	publisher port.StatusPublisher,
	archive port.OutputArchive,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessVideoConfig,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		sources:    sources,
		sinks:      sinks,
		detector:   detector,
		renderer:   renderer,
		detections: detections,
		videos:     videos,
		tracker:    tracker,
		publisher:  publisher,
		archive:    archive,
		notifier:   notifier,
		logger:     logger,
		outputDir:  cfg.OutputDir,
	}
}

// OutputPath is deterministic per video so a later run overwrites an earlier one.
func (uc *ProcessVideoUseCase) OutputPath(videoID int64) string {
	return filepath.Join(uc.outputDir, fmt.Sprintf("video_%d.mp4", videoID))
}

type runResult struct {
	frames     int
	detections int
}

// Run drives one job from processing to a terminal state. The returned error
// is informational: the tracker already holds the failure.
func (uc *ProcessVideoUseCase) Run(ctx context.Context, job *entity.VideoJob) (err error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ProcessVideoUseCase.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("video.id", job.VideoID),
		attribute.String("run.id", job.RunID.String()),
	)

	log := uc.logger.With(zap.Int64("video_id", job.VideoID), zap.String("run_id", job.RunID.String()))
	start := time.Now()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	var res runResult
	defer func() {
		if r := recover(); r != nil {
			err = entity.NewProcessingError(entity.KindUnexpected, "run", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			uc.fail(ctx, job, res, err, log)
			return
		}
		metrics.StageDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
		uc.complete(ctx, job, res, log)
	}()

	uc.tracker.SetProcessing(job.VideoID, 0)
	log.Info("processing started", zap.String("source_path", job.SourcePath))

	// A retried run starts from an empty detection set.
	cleared, err := uc.detections.DeleteByVideo(ctx, job.VideoID)
	if err != nil {
		return classify(entity.KindStore, "clear previous detections", err)
	}
	if cleared > 0 {
		log.Info("cleared detections from previous run", zap.Int64("count", cleared))
	}

	return uc.runPipeline(ctx, job, &res, log)
}

func (uc *ProcessVideoUseCase) runPipeline(ctx context.Context, job *entity.VideoJob, res *runResult, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")

	// Open source
	ctx2, spanSrc := tracer.Start(ctx, "open_source")
	src, err := uc.sources.OpenSource(ctx2, job.SourcePath)
	spanSrc.End()
	if err != nil {
		return classify(entity.KindSourceOpen, "open source", err)
	}
	srcOpen := true
	defer func() {
		if srcOpen {
			if cerr := src.Close(); cerr != nil {
				log.Warn("failed to release frame source", zap.Error(cerr))
			}
		}
	}()

	meta := src.Metadata()
	if meta.FrameCount <= 0 {
		return entity.NewProcessingError(entity.KindSourceOpen, "open source", errors.New("video has no frames"))
	}
	job.ApplyMetadata(meta)

	// Open sink
	outputPath := uc.OutputPath(job.VideoID)
	ctx3, spanSink := tracer.Start(ctx, "open_sink")
	snk, err := uc.sinks.OpenSink(ctx3, outputPath, meta)
	spanSink.End()
	if err != nil {
		return classify(entity.KindSinkOpen, "open sink", err)
	}
	sinkOpen := true
	defer func() {
		if sinkOpen {
			if cerr := snk.Close(); cerr != nil {
				log.Warn("failed to release frame sink", zap.Error(cerr))
			}
		}
	}()

	// Frame loop
	loopStart := time.Now()
	ctx4, spanLoop := tracer.Start(ctx, "frame_loop")
	err = uc.processFrames(ctx4, job, src, snk, res, log)
	spanLoop.SetAttributes(attribute.Int("frames", res.frames), attribute.Int("detections", res.detections))
	spanLoop.End()
	if err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("frames").Observe(time.Since(loopStart).Seconds())

	// Finalize
	_, spanFin := tracer.Start(ctx, "finalize")
	defer spanFin.End()

	sinkOpen = false
	if err := snk.Close(); err != nil {
		return classify(entity.KindUnexpected, "finalize output", err)
	}
	srcOpen = false
	if err := src.Close(); err != nil {
		log.Warn("failed to release frame source", zap.Error(err))
	}

	if err := uc.videos.SetOutputPath(ctx, job.VideoID, outputPath); err != nil {
		log.Error("failed to record output path", zap.Error(err))
		return classify(entity.KindStore, "record output path", err)
	}
	job.OutputPath = outputPath
	return nil
}

func (uc *ProcessVideoUseCase) processFrames(
	ctx context.Context,
	job *entity.VideoJob,
	src port.FrameSource,
	snk port.FrameSink,
	res *runResult,
	log *zap.Logger,
) error {
	total := float64(job.FrameCount)

	for frameNumber := 0; ; frameNumber++ {
		frame, err := src.Next(ctx)
		if errors.Is(err, port.ErrEndOfStream) {
			break
		}
		if err != nil {
			return classify(entity.KindUnexpected, fmt.Sprintf("read frame %d", frameNumber), err)
		}

		inferStart := time.Now()
		dets, err := uc.detector.Detect(ctx, frame)
		metrics.InferenceDuration.Observe(time.Since(inferStart).Seconds())
		if err != nil {
			return classify(entity.KindDetection, fmt.Sprintf("detect frame %d", frameNumber), err)
		}

		for _, d := range dets {
			if _, err := uc.detections.Record(ctx, job.VideoID, frameNumber, d.Box, d.Confidence, d.Class); err != nil {
				log.Error("failed to record detection",
					zap.Int("frame_number", frameNumber),
					zap.Float64("confidence", d.Confidence),
					zap.Error(err),
				)
				return classify(entity.KindStore, fmt.Sprintf("record detection frame %d", frameNumber), err)
			}
			res.detections++
			metrics.DetectionsRecordedTotal.Inc()
		}

		if err := snk.Write(ctx, uc.renderer.Draw(frame, dets)); err != nil {
			return classify(entity.KindUnexpected, fmt.Sprintf("write frame %d", frameNumber), err)
		}

		res.frames++
		metrics.FramesProcessedTotal.Inc()
		uc.tracker.SetProcessing(job.VideoID, math.Min(float64(res.frames)/total*100, 100))
	}

	if res.frames == 0 {
		return entity.NewProcessingError(entity.KindSourceOpen, "read frames", errors.New("no frames decoded"))
	}
	return nil
}

func (uc *ProcessVideoUseCase) complete(ctx context.Context, job *entity.VideoJob, res runResult, log *zap.Logger) {
	uc.tracker.SetCompleted(job.VideoID)
	metrics.RunsTotal.WithLabelValues(string(entity.StatusCompleted)).Inc()

	log.Info("processing completed",
		zap.Int("frame_count", res.frames),
		zap.Int("detection_count", res.detections),
		zap.String("output_path", job.OutputPath),
		zap.Duration("elapsed", time.Since(job.StartedAt)),
	)

	if uc.archive != nil {
		key := filepath.Base(job.OutputPath)
		if err := uc.archive.ArchiveOutput(ctx, key, job.OutputPath); err != nil {
			log.Warn("failed to archive output", zap.String("object_key", key), zap.Error(err))
		}
	}

	uc.publishStatus(ctx, entity.VideoStatusMessage{
		VideoID:        job.VideoID,
		RunID:          job.RunID,
		Status:         entity.StatusCompleted,
		Progress:       100,
		OutputPath:     job.OutputPath,
		FrameCount:     res.frames,
		DetectionCount: res.detections,
	}, log)
}

func (uc *ProcessVideoUseCase) fail(ctx context.Context, job *entity.VideoJob, res runResult, err error, log *zap.Logger) {
	kind := entity.KindOf(err)
	uc.tracker.SetFailed(job.VideoID, err.Error())
	metrics.RunsTotal.WithLabelValues(string(entity.StatusFailed)).Inc()
	metrics.RunFailuresTotal.WithLabelValues(string(kind)).Inc()

	log.Error("processing failed",
		zap.String("kind", string(kind)),
		zap.String("source_path", job.SourcePath),
		zap.Int("frames_processed", res.frames),
		zap.Int("detections_recorded", res.detections),
		zap.Error(err),
	)

	uc.publishStatus(ctx, entity.VideoStatusMessage{
		VideoID:        job.VideoID,
		RunID:          job.RunID,
		Status:         entity.StatusFailed,
		ErrorMessage:   err.Error(),
		FrameCount:     res.frames,
		DetectionCount: res.detections,
	}, log)

	if uc.notifier != nil {
		if nerr := uc.notifier.NotifyFailure(ctx, job.VideoID, job.SourcePath, err.Error()); nerr != nil {
			log.Warn("failed to send failure notification", zap.Error(nerr))
		}
	}
}

func (uc *ProcessVideoUseCase) publishStatus(ctx context.Context, msg entity.VideoStatusMessage, log *zap.Logger) {
	if uc.publisher == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to encode status message", zap.Error(err))
		return
	}
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// classify keeps an existing classification and otherwise tags err with kind.
func classify(kind entity.ErrorKind, op string, err error) error {
	var pe *entity.ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return entity.NewProcessingError(kind, op, err)
}
