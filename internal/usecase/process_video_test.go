package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type pipelineFixture struct {
	media     *fakeMedia
	detector  *scriptedDetector
	store     *MockDetectionStore
	videos    *MockVideoRepository
	tracker   *recordingTracker
	publisher *MockStatusPublisher
	notifier  *MockNotifier
	outDir    string
	uc        *ProcessVideoUseCase
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	f := &pipelineFixture{
		media:     newFakeMedia(),
		detector:  &scriptedDetector{perFrame: map[int][]entity.ObjectDetection{}, errAt: map[int]error{}},
		store:     new(MockDetectionStore),
		videos:    new(MockVideoRepository),
		tracker:   newRecordingTracker(),
		publisher: new(MockStatusPublisher),
		notifier:  new(MockNotifier),
		outDir:    t.TempDir(),
	}
	f.store.On("DeleteByVideo", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
	f.uc = NewProcessVideoUseCase(
		f.media, f.media, f.detector, passthroughRenderer{},
		f.store, f.videos, f.tracker,
		f.publisher, nil, f.notifier,
		zap.NewNop(),
		ProcessVideoConfig{OutputDir: f.outDir},
	)
	return f
}

func statusIs(status entity.ProcessingStatus) interface{} {
	return mock.MatchedBy(func(b []byte) bool {
		var msg entity.VideoStatusMessage
		return json.Unmarshal(b, &msg) == nil && msg.Status == status
	})
}

func TestProcessVideo_TenFramesTwoDetections(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.media.addSource("uploads/a.mp4", 10)
	box2 := entity.Box{X: 10, Y: 12, Width: 30, Height: 60}
	box5 := entity.Box{X: 100.5, Y: 40, Width: 25, Height: 50}
	f.detector.perFrame[2] = []entity.ObjectDetection{{Class: "person", Confidence: 0.91, Box: box2}}
	f.detector.perFrame[5] = []entity.ObjectDetection{{Class: "person", Confidence: 0.03, Box: box5}}

	f.store.On("Record", mock.Anything, int64(1), 2, box2, 0.91, "person").Return(&entity.Detection{ID: 1}, nil).Once()
	f.store.On("Record", mock.Anything, int64(1), 5, box5, 0.03, "person").Return(&entity.Detection{ID: 2}, nil).Once()
	outPath := filepath.Join(f.outDir, "video_1.mp4")
	f.videos.On("SetOutputPath", mock.Anything, int64(1), outPath).Return(nil).Once()
	f.publisher.On("PublishStatus", mock.Anything, mock.MatchedBy(func(b []byte) bool {
		var msg entity.VideoStatusMessage
		return json.Unmarshal(b, &msg) == nil &&
			msg.Status == entity.StatusCompleted &&
			msg.FrameCount == 10 &&
			msg.DetectionCount == 2 &&
			msg.OutputPath == outPath
	})).Return(nil).Once()

	job := entity.NewVideoJob(1, "uploads/a.mp4")
	err := f.uc.Run(ctx, job)

	require.NoError(t, err)
	f.store.AssertExpectations(t)
	f.store.AssertNumberOfCalls(t, "Record", 2)
	f.store.AssertCalled(t, "DeleteByVideo", mock.Anything, int64(1))
	f.videos.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, f.media.framesWritten(outPath))
	assert.True(t, f.media.closed[outPath])
	assert.True(t, f.media.srcClosed["uploads/a.mp4"])
	assert.Equal(t, outPath, job.OutputPath)
	assert.Equal(t, 10, job.FrameCount)

	st, err := f.tracker.Get(1)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, st.Status)
	assert.Equal(t, 100.0, st.Progress)

	history := f.tracker.progressOf(1)
	require.Len(t, history, 11)
	assert.Equal(t, 0.0, history[0])
	assert.Equal(t, 100.0, history[len(history)-1])
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1], "progress must be non-decreasing")
	}
}

func TestProcessVideo_SourceOpenFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.notifier.On("NotifyFailure", mock.Anything, int64(2), "uploads/missing.mp4", mock.Anything).Return(nil).Once()
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil).Once()

	err := f.uc.Run(context.Background(), entity.NewVideoJob(2, "uploads/missing.mp4"))

	assert.ErrorIs(t, err, entity.ErrSourceOpen)
	assert.Equal(t, 0, f.media.sinkOpened)
	f.store.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.videos.AssertNotCalled(t, "SetOutputPath", mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertExpectations(t)
	f.publisher.AssertExpectations(t)

	q := NewStatusQuery(f.tracker, f.store, f.videos)
	assert.Equal(t, entity.Progress{Status: entity.StatusFailed, Progress: 0}, q.GetProgress(2))

	st, _ := f.tracker.Get(2)
	assert.NotEmpty(t, st.Error)
}

func TestProcessVideo_ZeroFrameSource(t *testing.T) {
	f := newPipelineFixture(t)
	f.media.addSource("uploads/empty.mp4", 0)
	f.notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil)

	err := f.uc.Run(context.Background(), entity.NewVideoJob(3, "uploads/empty.mp4"))

	assert.ErrorIs(t, err, entity.ErrSourceOpen)
	assert.Equal(t, 0, f.media.sinkOpened)
	assert.True(t, f.media.srcClosed["uploads/empty.mp4"])
	f.store.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	st, _ := f.tracker.Get(3)
	assert.Equal(t, entity.StatusFailed, st.Status)
}

func TestProcessVideo_SinkOpenFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.media.addSource("uploads/a.mp4", 3)
	f.media.sinkErr = errors.New("encoder not found")
	f.notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil)

	err := f.uc.Run(context.Background(), entity.NewVideoJob(4, "uploads/a.mp4"))

	assert.ErrorIs(t, err, entity.ErrSinkOpen)
	assert.True(t, f.media.srcClosed["uploads/a.mp4"], "source released on failure")
}

func TestProcessVideo_StoreFailureStopsRun(t *testing.T) {
	f := newPipelineFixture(t)
	f.media.addSource("uploads/a.mp4", 8)
	person := []entity.ObjectDetection{{Class: "person", Confidence: 0.7, Box: entity.Box{X: 1, Y: 1, Width: 2, Height: 2}}}
	f.detector.perFrame[1] = person
	f.detector.perFrame[3] = person
	f.detector.perFrame[5] = person

	f.store.On("Record", mock.Anything, int64(5), 1, mock.Anything, 0.7, "person").Return(&entity.Detection{}, nil).Once()
	f.store.On("Record", mock.Anything, int64(5), 3, mock.Anything, 0.7, "person").Return(nil, errors.New("connection lost")).Once()
	f.notifier.On("NotifyFailure", mock.Anything, int64(5), "uploads/a.mp4", mock.MatchedBy(func(msg string) bool {
		return assert.Contains(t, msg, "connection lost")
	})).Return(nil).Once()
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(errors.New("broker down"))

	err := f.uc.Run(context.Background(), entity.NewVideoJob(5, "uploads/a.mp4"))

	assert.ErrorIs(t, err, entity.ErrStore)
	f.store.AssertExpectations(t)
	f.store.AssertNotCalled(t, "Record", mock.Anything, int64(5), 5, mock.Anything, mock.Anything, mock.Anything)
	f.videos.AssertNotCalled(t, "SetOutputPath", mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertExpectations(t)

	outPath := filepath.Join(f.outDir, "video_5.mp4")
	assert.Equal(t, []int{0, 1, 2}, f.media.framesWritten(outPath))
	assert.True(t, f.media.closed[outPath], "sink released on failure")
	assert.True(t, f.media.srcClosed["uploads/a.mp4"])

	st, _ := f.tracker.Get(5)
	assert.Equal(t, entity.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "connection lost")
}

func TestProcessVideo_ClearingPreviousDetectionsFails(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.ExpectedCalls = nil
	f.store.On("DeleteByVideo", mock.Anything, int64(6)).Return(int64(0), errors.New("relation locked")).Once()
	f.media.addSource("uploads/a.mp4", 4)
	f.notifier.On("NotifyFailure", mock.Anything, int64(6), "uploads/a.mp4", mock.Anything).Return(nil).Once()
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil).Once()

	err := f.uc.Run(context.Background(), entity.NewVideoJob(6, "uploads/a.mp4"))

	assert.ErrorIs(t, err, entity.ErrStore)
	assert.False(t, f.media.srcClosed["uploads/a.mp4"], "source never opened")
	assert.Equal(t, 0, f.media.sinkOpened)
	f.store.AssertExpectations(t)
	f.store.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	st, _ := f.tracker.Get(6)
	assert.Equal(t, entity.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "relation locked")
}

func TestProcessVideo_DetectorFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.media.addSource("uploads/a.mp4", 6)
	f.detector.errAt[4] = errors.New("inference timeout")
	f.notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil)

	err := f.uc.Run(context.Background(), entity.NewVideoJob(6, "uploads/a.mp4"))

	assert.ErrorIs(t, err, entity.ErrDetection)
	history := f.tracker.progressOf(6)
	assert.InDelta(t, 4.0/6.0*100, history[len(history)-1], 0.001)
}

func TestProcessVideo_PanicBecomesFailedState(t *testing.T) {
	f := newPipelineFixture(t)
	f.media.addSource("uploads/a.mp4", 4)
	f.detector.panicAt = 2
	f.notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil)

	var err error
	assert.NotPanics(t, func() {
		err = f.uc.Run(context.Background(), entity.NewVideoJob(7, "uploads/a.mp4"))
	})

	assert.ErrorIs(t, err, entity.ErrUnexpected)
	st, _ := f.tracker.Get(7)
	assert.Equal(t, entity.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "model exploded")
	assert.True(t, f.media.srcClosed["uploads/a.mp4"])
}

func TestProcessVideo_OutputPathFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.media.addSource("uploads/a.mp4", 2)
	f.videos.On("SetOutputPath", mock.Anything, int64(8), mock.Anything).Return(errors.New("db gone")).Once()
	f.notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishStatus", mock.Anything, statusIs(entity.StatusFailed)).Return(nil)

	err := f.uc.Run(context.Background(), entity.NewVideoJob(8, "uploads/a.mp4"))

	assert.ErrorIs(t, err, entity.ErrStore)
	st, _ := f.tracker.Get(8)
	assert.Equal(t, entity.StatusFailed, st.Status)
}

func TestProcessVideo_ArchivesCompletedOutput(t *testing.T) {
	f := newPipelineFixture(t)
	archive := new(MockArchive)
	f.uc = NewProcessVideoUseCase(
		f.media, f.media, f.detector, passthroughRenderer{},
		f.store, f.videos, f.tracker,
		nil, archive, nil,
		zap.NewNop(),
		ProcessVideoConfig{OutputDir: f.outDir},
	)
	f.media.addSource("uploads/a.mp4", 1)
	outPath := filepath.Join(f.outDir, "video_9.mp4")
	f.videos.On("SetOutputPath", mock.Anything, int64(9), outPath).Return(nil)
	archive.On("ArchiveOutput", mock.Anything, "video_9.mp4", outPath).Return(errors.New("bucket missing")).Once()

	err := f.uc.Run(context.Background(), entity.NewVideoJob(9, "uploads/a.mp4"))

	require.NoError(t, err, "archive failures never fail a run")
	archive.AssertExpectations(t)
	st, _ := f.tracker.Get(9)
	assert.Equal(t, entity.StatusCompleted, st.Status)
}

func TestProcessVideo_UnencodableStatusIsLoggedNotPublished(t *testing.T) {
	f := newPipelineFixture(t)
	core, logs := observer.New(zap.ErrorLevel)

	f.uc.publishStatus(context.Background(), entity.VideoStatusMessage{VideoID: 1, Progress: math.NaN()}, zap.New(core))

	f.publisher.AssertNotCalled(t, "PublishStatus", mock.Anything, mock.Anything)
	require.Equal(t, 1, logs.FilterMessage("failed to encode status message").Len())
}

func TestOutputPathIsDeterministic(t *testing.T) {
	uc := NewProcessVideoUseCase(nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, zap.NewNop(),
		ProcessVideoConfig{OutputDir: "processed_videos"})
	assert.Equal(t, filepath.Join("processed_videos", "video_42.mp4"), uc.OutputPath(42))
	assert.Equal(t, uc.OutputPath(42), uc.OutputPath(42))
}
