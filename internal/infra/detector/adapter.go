package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"go.uber.org/zap"
)

// Model is the opaque inference function: frame in, raw detections out.
type Model interface {
	Infer(ctx context.Context, frame *entity.Frame) ([]entity.ObjectDetection, error)
}

// Loader builds the model. It is called at most once successfully per Adapter.
type Loader func(ctx context.Context) (Model, error)

// Adapter owns the single model instance shared by every run and forwards
// only detections of the target class. No confidence threshold is applied.
type Adapter struct {
	load        Loader
	targetClass string
	serialize   bool
	logger      *zap.Logger

	initMu sync.Mutex
	model  Model

	inferMu sync.Mutex
}

type AdapterConfig struct {
	TargetClass string
	// Serialize guards models that cannot run concurrent inferences.
	Serialize bool
}

func NewAdapter(load Loader, cfg AdapterConfig, logger *zap.Logger) *Adapter {
	target := cfg.TargetClass
	if target == "" {
		target = entity.DefaultTargetClass
	}
	return &Adapter{
		load:        load,
		targetClass: target,
		serialize:   cfg.Serialize,
		logger:      logger,
	}
}

func (a *Adapter) TargetClass() string { return a.targetClass }

// Loaded reports whether the model instance exists yet.
func (a *Adapter) Loaded() bool {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	return a.model != nil
}

// Warmup loads the model eagerly; startup calls it so the first run does not pay for it.
func (a *Adapter) Warmup(ctx context.Context) error {
	_, err := a.instance(ctx)
	return err
}

func (a *Adapter) Detect(ctx context.Context, frame *entity.Frame) ([]entity.ObjectDetection, error) {
	m, err := a.instance(ctx)
	if err != nil {
		return nil, err
	}

	if a.serialize {
		a.inferMu.Lock()
		defer a.inferMu.Unlock()
	}

	raw, err := m.Infer(ctx, frame)
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindDetection, fmt.Sprintf("infer frame %d", frame.Index), err)
	}
	return FilterClass(raw, a.targetClass), nil
}

// instance lazily loads the model. A failed load is retried on the next call.
func (a *Adapter) instance(ctx context.Context) (Model, error) {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.model != nil {
		return a.model, nil
	}

	a.logger.Info("loading detection model", zap.String("target_class", a.targetClass))
	m, err := a.load(ctx)
	if err != nil {
		a.logger.Error("failed to load detection model", zap.Error(err))
		return nil, entity.NewProcessingError(entity.KindDetection, "load model", err)
	}
	a.model = m
	a.logger.Info("detection model loaded")
	return m, nil
}

// FilterClass keeps detections whose class equals target, preserving order.
func FilterClass(in []entity.ObjectDetection, target string) []entity.ObjectDetection {
	out := make([]entity.ObjectDetection, 0, len(in))
	for _, d := range in {
		if d.Class == target {
			out = append(out, d)
		}
	}
	return out
}
