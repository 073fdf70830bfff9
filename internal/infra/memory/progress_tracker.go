package memory

import (
	"sync"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
)

// ProgressTracker is a process-local registry of the latest run state per video.
// It is constructed at startup and handed to both the pipeline and the status
// queries; nothing is persisted.
type ProgressTracker struct {
	mu     sync.RWMutex
	states map[int64]entity.ProcessingState
	now    func() time.Time
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		states: make(map[int64]entity.ProcessingState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetPending starts a fresh entry, overwriting whatever a previous run left.
func (t *ProgressTracker) SetPending(videoID int64) {
	t.put(entity.ProcessingState{VideoID: videoID, Status: entity.StatusPending})
}

// SetProcessing never lets progress move backwards within a processing run.
func (t *ProgressTracker) SetProcessing(videoID int64, progress float64) {
	progress = clamp(progress)

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.states[videoID]
	if ok && cur.Status == entity.StatusProcessing && progress < cur.Progress {
		progress = cur.Progress
	}
	t.states[videoID] = entity.ProcessingState{
		VideoID:   videoID,
		Status:    entity.StatusProcessing,
		Progress:  progress,
		UpdatedAt: t.now(),
	}
}

func (t *ProgressTracker) SetCompleted(videoID int64) {
	t.put(entity.ProcessingState{VideoID: videoID, Status: entity.StatusCompleted, Progress: 100})
}

func (t *ProgressTracker) SetFailed(videoID int64, errMsg string) {
	if errMsg == "" {
		errMsg = "processing failed"
	}
	t.put(entity.ProcessingState{VideoID: videoID, Status: entity.StatusFailed, Error: errMsg})
}

func (t *ProgressTracker) Get(videoID int64) (entity.ProcessingState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.states[videoID]
	if !ok {
		return entity.ProcessingState{}, entity.ErrNotFound
	}
	return st, nil
}

// Forget drops the entry for a deleted video.
func (t *ProgressTracker) Forget(videoID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, videoID)
}

// Reset drops every entry; used on shutdown.
func (t *ProgressTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[int64]entity.ProcessingState)
}

func (t *ProgressTracker) put(st entity.ProcessingState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st.UpdatedAt = t.now()
	t.states[st.VideoID] = st
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
