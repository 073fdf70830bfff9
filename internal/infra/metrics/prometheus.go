package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_runs_total",
		Help: "Total number of processing runs that reached a terminal state, by status",
	}, []string{"status"})

	RunFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_run_failures_total",
		Help: "Failed runs by error kind",
	}, []string{"kind"})

	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_triggers_total",
		Help: "Processing triggers by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "detection_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "detection_inference_duration_seconds",
		Help:    "Per-frame detector latency",
		Buckets: prometheus.DefBuckets,
	})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detection_frames_processed_total",
		Help: "Total number of frames run through the detector across all runs",
	})

	DetectionsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detection_records_total",
		Help: "Total number of target-class detections persisted",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "detection_active_runs",
		Help: "Number of runs currently in progress",
	})
)
