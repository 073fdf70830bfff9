package usecase

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"github.com/Sane-Sunil/Human-detection/internal/infra/memory"
	"github.com/stretchr/testify/mock"
)

type MockDetectionStore struct {
	mock.Mock
}

func (m *MockDetectionStore) Record(ctx context.Context, videoID int64, frameNumber int, box entity.Box, confidence float64, class string) (*entity.Detection, error) {
	args := m.Called(ctx, videoID, frameNumber, box, confidence, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Detection), args.Error(1)
}

func (m *MockDetectionStore) ListByVideo(ctx context.Context, videoID int64) ([]entity.Detection, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Detection), args.Error(1)
}

func (m *MockDetectionStore) HasDetections(ctx context.Context, videoID int64) (bool, error) {
	args := m.Called(ctx, videoID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDetectionStore) DeleteByVideo(ctx context.Context, videoID int64) (int64, error) {
	args := m.Called(ctx, videoID)
	return args.Get(0).(int64), args.Error(1)
}

type MockVideoRepository struct {
	mock.Mock
}

func (m *MockVideoRepository) FindByID(ctx context.Context, id int64) (*entity.Video, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Video), args.Error(1)
}

func (m *MockVideoRepository) SetOutputPath(ctx context.Context, id int64, outputPath string) error {
	args := m.Called(ctx, id, outputPath)
	return args.Error(0)
}

func (m *MockVideoRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockStatusPublisher struct {
	mock.Mock
}

func (m *MockStatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockDLQPublisher struct {
	mock.Mock
}

func (m *MockDLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	args := m.Called(ctx, msg, reason)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyFailure(ctx context.Context, videoID int64, sourcePath string, errorMsg string) error {
	args := m.Called(ctx, videoID, sourcePath, errorMsg)
	return args.Error(0)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) ArchiveOutput(ctx context.Context, objectKey string, localPath string) error {
	args := m.Called(ctx, objectKey, localPath)
	return args.Error(0)
}

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) Start(ctx context.Context, videoID int64, sourcePath string) (StartOutcome, *RunHandle, error) {
	args := m.Called(ctx, videoID, sourcePath)
	h, _ := args.Get(1).(*RunHandle)
	return args.Get(0).(StartOutcome), h, args.Error(2)
}

// fakeMedia serves scripted sources and records what sinks receive.
type fakeMedia struct {
	mu         sync.Mutex
	meta       map[string]entity.VideoMetadata
	openErr    map[string]error
	sinkErr    error
	sinkOpened int
	written    map[string][]int
	closed     map[string]bool
	srcClosed  map[string]bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		meta:      make(map[string]entity.VideoMetadata),
		openErr:   make(map[string]error),
		written:   make(map[string][]int),
		closed:    make(map[string]bool),
		srcClosed: make(map[string]bool),
	}
}

func (f *fakeMedia) addSource(path string, frames int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[path] = entity.VideoMetadata{FPS: 10, Width: 8, Height: 8, FrameCount: frames}
}

func (f *fakeMedia) OpenSource(_ context.Context, path string) (port.FrameSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	meta, ok := f.meta[path]
	if !ok {
		return nil, entity.NewProcessingError(entity.KindSourceOpen, "open", errors.New("no such file"))
	}
	return &fakeSource{media: f, path: path, meta: meta}, nil
}

func (f *fakeMedia) OpenSink(_ context.Context, path string, _ entity.VideoMetadata) (port.FrameSink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinkErr != nil {
		return nil, f.sinkErr
	}
	f.sinkOpened++
	f.written[path] = nil
	return &fakeSink{media: f, path: path}, nil
}

func (f *fakeMedia) framesWritten(path string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.written[path]...)
}

type fakeSource struct {
	media *fakeMedia
	path  string
	meta  entity.VideoMetadata
	next  int
}

func (s *fakeSource) Metadata() entity.VideoMetadata { return s.meta }

func (s *fakeSource) Next(context.Context) (*entity.Frame, error) {
	if s.next >= s.meta.FrameCount {
		return nil, port.ErrEndOfStream
	}
	f := &entity.Frame{Index: s.next, Image: image.NewRGBA(image.Rect(0, 0, s.meta.Width, s.meta.Height))}
	s.next++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.media.mu.Lock()
	defer s.media.mu.Unlock()
	s.media.srcClosed[s.path] = true
	return nil
}

type fakeSink struct {
	media *fakeMedia
	path  string
}

func (s *fakeSink) Write(_ context.Context, frame *entity.Frame) error {
	s.media.mu.Lock()
	defer s.media.mu.Unlock()
	s.media.written[s.path] = append(s.media.written[s.path], frame.Index)
	return nil
}

func (s *fakeSink) Close() error {
	s.media.mu.Lock()
	defer s.media.mu.Unlock()
	s.media.closed[s.path] = true
	return nil
}

// scriptedDetector returns fixed detections per frame index.
type scriptedDetector struct {
	perFrame map[int][]entity.ObjectDetection
	errAt    map[int]error
	panicAt  int
}

func (d *scriptedDetector) Detect(_ context.Context, frame *entity.Frame) ([]entity.ObjectDetection, error) {
	if d.panicAt > 0 && frame.Index == d.panicAt {
		panic("model exploded")
	}
	if err := d.errAt[frame.Index]; err != nil {
		return nil, err
	}
	return d.perFrame[frame.Index], nil
}

type passthroughRenderer struct{}

func (passthroughRenderer) Draw(frame *entity.Frame, _ []entity.ObjectDetection) *entity.Frame {
	return frame
}

// recordingTracker remembers every progress value written per video.
type recordingTracker struct {
	*memory.ProgressTracker
	mu      sync.Mutex
	history map[int64][]float64
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{ProgressTracker: memory.NewProgressTracker(), history: make(map[int64][]float64)}
}

func (r *recordingTracker) SetProcessing(videoID int64, progress float64) {
	r.mu.Lock()
	r.history[videoID] = append(r.history[videoID], progress)
	r.mu.Unlock()
	r.ProgressTracker.SetProcessing(videoID, progress)
}

func (r *recordingTracker) progressOf(videoID int64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.history[videoID]...)
}

// memoryStore is a concurrency-safe DetectionStore for multi-run tests.
// When failFrame is positive the next write for that frame fails once.
type memoryStore struct {
	mu        sync.Mutex
	rows      []entity.Detection
	lastID    int64
	failFrame int
}

func (s *memoryStore) Record(_ context.Context, videoID int64, frameNumber int, box entity.Box, confidence float64, class string) (*entity.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFrame > 0 && frameNumber == s.failFrame {
		s.failFrame = 0
		return nil, entity.NewProcessingError(entity.KindStore, "insert detection", errors.New("connection reset"))
	}
	s.lastID++
	d := entity.Detection{ID: s.lastID, VideoID: videoID, FrameNumber: frameNumber, Box: box, Confidence: confidence, Class: class}
	s.rows = append(s.rows, d)
	return &d, nil
}

func (s *memoryStore) DeleteByVideo(_ context.Context, videoID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, d := range s.rows {
		if d.VideoID != videoID {
			kept = append(kept, d)
		}
	}
	n := int64(len(s.rows) - len(kept))
	s.rows = kept
	return n, nil
}

func (s *memoryStore) framesOf(videoID int64) []int {
	list, _ := s.ListByVideo(context.Background(), videoID)
	out := make([]int, 0, len(list))
	for _, d := range list {
		out = append(out, d.FrameNumber)
	}
	return out
}

func (s *memoryStore) ListByVideo(_ context.Context, videoID int64) ([]entity.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Detection
	for _, d := range s.rows {
		if d.VideoID == videoID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memoryStore) HasDetections(ctx context.Context, videoID int64) (bool, error) {
	list, _ := s.ListByVideo(ctx, videoID)
	return len(list) > 0, nil
}
