package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"github.com/Sane-Sunil/Human-detection/internal/infra/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type StartOutcome string

const (
	OutcomeStarted          StartOutcome = "started"
	OutcomeAlreadyProcessed StartOutcome = "already_processed"
	OutcomeAlreadyRunning   StartOutcome = "already_running"
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job *entity.VideoJob) error
}

// RunHandle is the supervisor's record of a launched run.
type RunHandle struct {
	RunID      uuid.UUID `json:"run_id"`
	VideoID    int64     `json:"video_id"`
	SourcePath string    `json:"source_path"`
	StartedAt  time.Time `json:"started_at"`

	done chan struct{}
	err  error
}

func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Err is the run's failure, valid once Done is closed.
func (h *RunHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// ErrRunActive is returned when a video cannot be changed while a run holds it.
var ErrRunActive = errors.New("run in progress")

type SupervisorConfig struct {
	// UploadDir bounds caller-supplied source paths. When empty, only the
	// path stored on the video record is accepted.
	UploadDir string
}

// Supervisor launches runs as independent goroutines and keeps a handle per
// active video. There is no limit on concurrent runs.
type Supervisor struct {
	runner     Runner
	detections port.DetectionStore
	videos     port.VideoRepository
	tracker    port.ProgressTracker
	logger     *zap.Logger
	uploadDir  string

	mu       sync.Mutex
	active   map[int64]*RunHandle
	reserved map[int64]struct{}
	wg       sync.WaitGroup
}

func NewSupervisor(
	runner Runner,
	detections port.DetectionStore,
	videos port.VideoRepository,
	tracker port.ProgressTracker,
	logger *zap.Logger,
	cfg SupervisorConfig,
) *Supervisor {
	return &Supervisor{
		runner:     runner,
		detections: detections,
		videos:     videos,
		tracker:    tracker,
		logger:     logger,
		uploadDir:  cfg.UploadDir,
		active:     make(map[int64]*RunHandle),
		reserved:   make(map[int64]struct{}),
	}
}

// Start begins processing videoID in the background and returns immediately.
// An empty sourcePath is resolved from the video record; a non-empty one must
// lie inside the upload directory. Videos that already completed are not
// processed again.
func (s *Supervisor) Start(ctx context.Context, videoID int64, sourcePath string) (StartOutcome, *RunHandle, error) {
	if sourcePath != "" {
		p, err := s.confine(sourcePath)
		if err != nil {
			return "", nil, err
		}
		sourcePath = p
	}

	if h, ok := s.reserve(videoID); !ok {
		metrics.TriggersTotal.WithLabelValues(string(OutcomeAlreadyRunning)).Inc()
		return OutcomeAlreadyRunning, h, nil
	}
	launched := false
	defer func() {
		if !launched {
			s.release(videoID)
		}
	}()

	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return "", nil, fmt.Errorf("find video %d: %w", videoID, err)
	}

	done, err := s.alreadyProcessed(ctx, video)
	if err != nil {
		return "", nil, err
	}
	if done {
		s.logger.Info("video already processed, skipping", zap.Int64("video_id", videoID))
		metrics.TriggersTotal.WithLabelValues(string(OutcomeAlreadyProcessed)).Inc()
		return OutcomeAlreadyProcessed, nil, nil
	}

	if sourcePath == "" {
		sourcePath = video.SourcePath
	}
	if sourcePath == "" {
		return "", nil, fmt.Errorf("%w: video %d has no source path", entity.ErrInvalidSource, videoID)
	}

	job := entity.NewVideoJob(videoID, sourcePath)
	h := &RunHandle{
		RunID:      job.RunID,
		VideoID:    videoID,
		SourcePath: sourcePath,
		StartedAt:  job.StartedAt,
		done:       make(chan struct{}),
	}
	s.tracker.SetPending(videoID)

	s.mu.Lock()
	delete(s.reserved, videoID)
	s.active[videoID] = h
	s.wg.Add(1)
	s.mu.Unlock()
	launched = true

	// The run must not die with the trigger's request.
	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer s.wg.Done()
		err := s.runner.Run(runCtx, job)

		s.mu.Lock()
		delete(s.active, videoID)
		s.mu.Unlock()

		h.err = err
		close(h.done)
	}()

	s.logger.Info("run launched",
		zap.Int64("video_id", videoID),
		zap.String("run_id", job.RunID.String()),
	)
	metrics.TriggersTotal.WithLabelValues(string(OutcomeStarted)).Inc()
	return OutcomeStarted, h, nil
}

// reserve claims videoID for the caller. When it is already claimed the
// active handle, if any, is returned with false.
func (s *Supervisor) reserve(videoID int64) (*RunHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.active[videoID]; ok {
		return h, false
	}
	if _, ok := s.reserved[videoID]; ok {
		return nil, false
	}
	s.reserved[videoID] = struct{}{}
	return nil, true
}

func (s *Supervisor) release(videoID int64) {
	s.mu.Lock()
	delete(s.reserved, videoID)
	s.mu.Unlock()
}

// confine cleans path and rejects it unless it resolves inside the upload directory.
func (s *Supervisor) confine(path string) (string, error) {
	if s.uploadDir == "" {
		return "", fmt.Errorf("%w: source path overrides are disabled", entity.ErrInvalidSource)
	}
	root, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return "", fmt.Errorf("resolve upload dir: %w", err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", entity.ErrInvalidSource, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside the upload directory", entity.ErrInvalidSource, path)
	}
	return filepath.Clean(path), nil
}

func (s *Supervisor) alreadyProcessed(ctx context.Context, video *entity.Video) (bool, error) {
	st, err := s.tracker.Get(video.ID)
	switch {
	case err == nil:
		// A failed run can be re-triggered; the new run clears its detections.
		return st.Status == entity.StatusCompleted, nil
	case !errors.Is(err, entity.ErrNotFound):
		return false, err
	}

	// Nothing tracked since startup: fall back to durable records.
	if video.OutputPath != "" {
		return true, nil
	}

	has, err := s.detections.HasDetections(ctx, video.ID)
	if err != nil {
		return false, fmt.Errorf("check detections for video %d: %w", video.ID, err)
	}
	return has, nil
}

// Delete removes the video record, its detections and its annotated output.
// It fails with ErrRunActive while a run holds the video.
func (s *Supervisor) Delete(ctx context.Context, videoID int64) error {
	if _, ok := s.reserve(videoID); !ok {
		return fmt.Errorf("delete video %d: %w", videoID, ErrRunActive)
	}
	defer s.release(videoID)

	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("find video %d: %w", videoID, err)
	}
	if err := s.videos.Delete(ctx, videoID); err != nil {
		return fmt.Errorf("delete video %d: %w", videoID, err)
	}
	s.tracker.Forget(videoID)

	if video.OutputPath != "" {
		if err := os.Remove(video.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove output file", zap.Int64("video_id", videoID), zap.Error(err))
		}
	}

	s.logger.Info("video deleted", zap.Int64("video_id", videoID))
	return nil
}

// Active lists in-flight runs, oldest first.
func (s *Supervisor) Active() []*RunHandle {
	s.mu.Lock()
	out := make([]*RunHandle, 0, len(s.active))
	for _, h := range s.active {
		out = append(out, h)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Wait blocks until every launched run has finished or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
