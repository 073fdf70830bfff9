package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	"github.com/Sane-Sunil/Human-detection/internal/infra/config"
	"github.com/Sane-Sunil/Human-detection/internal/infra/detector"
	"github.com/Sane-Sunil/Human-detection/internal/infra/email"
	"github.com/Sane-Sunil/Human-detection/internal/infra/ffmpeg"
	"github.com/Sane-Sunil/Human-detection/internal/infra/httpapi"
	"github.com/Sane-Sunil/Human-detection/internal/infra/memory"
	"github.com/Sane-Sunil/Human-detection/internal/infra/metrics"
	miniostorage "github.com/Sane-Sunil/Human-detection/internal/infra/minio"
	natstrigger "github.com/Sane-Sunil/Human-detection/internal/infra/nats"
	"github.com/Sane-Sunil/Human-detection/internal/infra/postgres"
	"github.com/Sane-Sunil/Human-detection/internal/infra/rabbitmq"
	"github.com/Sane-Sunil/Human-detection/internal/infra/render"
	"github.com/Sane-Sunil/Human-detection/internal/infra/sqlite"
	"github.com/Sane-Sunil/Human-detection/internal/infra/tracing"
	"github.com/Sane-Sunil/Human-detection/internal/usecase"
	"github.com/Sane-Sunil/Human-detection/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting person detection worker", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, version)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Records
	detections, videos, closeStore := openStores(ctx, cfg, log)
	defer closeStore()

	// Media, model, rendering
	toolkit := ffmpeg.NewToolkit(ffmpeg.ToolkitConfig{
		FFmpegBin:  cfg.FFmpegBin,
		FFprobeBin: cfg.FFprobeBin,
		Codec:      cfg.OutputCodec,
	}, log)
	fatalOnErr(os.MkdirAll(cfg.OutputDir, 0o755), "create output dir")

	model := detector.NewAdapter(
		detector.NewHTTPLoader(detector.HTTPModelConfig{
			Endpoint:    cfg.DetectorURL,
			Timeout:     cfg.DetectorTimeout,
			JPEGQuality: cfg.DetectorJPEGQuality,
		}),
		detector.AdapterConfig{TargetClass: cfg.TargetClass, Serialize: cfg.DetectorSerialize},
		log,
	)
	go func() {
		warmCtx, warmCancel := context.WithTimeout(ctx, cfg.DetectorTimeout)
		defer warmCancel()
		if err := model.Warmup(warmCtx); err != nil {
			log.Warn("model warmup failed, will load on first run", zap.Error(err))
		}
	}()

	annotator := render.NewAnnotator(render.DefaultColor, cfg.BoxThickness)
	tracker := memory.NewProgressTracker()

	// Optional side effects
	var (
		statusPub port.StatusPublisher
		dlqPub    port.DLQPublisher
		archive   port.OutputArchive
		notifier  port.FailureNotifier
	)

	if cfg.MinIOEndpoint != "" {
		a, err := miniostorage.NewArchive(miniostorage.ArchiveConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
		})
		fatalOnErr(err, "create minio archive")
		fatalOnErr(a.EnsureBucket(ctx), "ensure minio bucket")
		archive = a
	}

	if cfg.SMTPHost != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.NotificationTo, log)
	}

	// Bound late: the consumer's connection feeds the publishers the use cases need.
	var upload *usecase.HandleUploadUseCase
	handleTrigger := func(ctx context.Context, body []byte) error { return upload.Execute(ctx, body) }

	var rmqConsumer *rabbitmq.TriggerConsumer
	if cfg.RabbitMQURL != "" {
		rmqConsumer, err = rabbitmq.NewTriggerConsumer(rabbitmq.ConsumerConfig{
			URL:              cfg.RabbitMQURL,
			Exchange:         cfg.RabbitMQExchange,
			Queue:            cfg.RabbitMQProcessingQueue,
			RoutingKey:       cfg.RabbitMQUploadRoutingKey,
			DLQ:              cfg.RabbitMQDLQ,
			StatusQueue:      cfg.RabbitMQStatusQueue,
			StatusRoutingKey: cfg.RabbitMQStatusRoutingKey,
			Prefetch:         cfg.RabbitMQPrefetch,
			WorkerCount:      cfg.RabbitMQWorkers,
			BaseDelay:        cfg.RabbitMQRetryBaseDelay,
		}, handleTrigger, log)
		fatalOnErr(err, "create rabbitmq consumer")
		defer rmqConsumer.Close()

		pub, err := rabbitmq.NewPublisher(rmqConsumer.Conn(), cfg.RabbitMQExchange)
		fatalOnErr(err, "create rabbitmq publisher")
		defer pub.Close()

		statusPub = rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusRoutingKey)
		dlqPub = rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)
	}

	// Use cases
	process := usecase.NewProcessVideoUseCase(
		toolkit, toolkit, model, annotator,
		detections, videos, tracker,
		statusPub, archive, notifier,
		log,
		usecase.ProcessVideoConfig{OutputDir: cfg.OutputDir},
	)
	supervisor := usecase.NewSupervisor(process, detections, videos, tracker, log,
		usecase.SupervisorConfig{UploadDir: cfg.UploadDir})
	upload = usecase.NewHandleUploadUseCase(supervisor, dlqPub, log)
	status := usecase.NewStatusQuery(tracker, detections, videos)

	if cfg.NATSURL != "" {
		nc, err := natstrigger.NewTriggerConsumer(natstrigger.ConsumerConfig{
			URL:     cfg.NATSURL,
			Stream:  cfg.NATSStream,
			Subject: cfg.NATSSubject,
			Durable: cfg.NATSDurable,
		}, handleTrigger, log)
		fatalOnErr(err, "create nats consumer")
		fatalOnErr(nc.EnsureStream(), "ensure nats stream")
		fatalOnErr(nc.Listen(ctx), "subscribe nats")
		defer nc.Close()
	}

	// Servers
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func() error {
		if !model.Loaded() {
			return errors.New("detection model not loaded")
		}
		return nil
	}, log)

	api := httpapi.NewVideoHandler(supervisor, status, supervisor, supervisor, log)
	apiSrv := httpapi.StartServer(cfg.HTTPPort, httpapi.NewRouter(api, log), log)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("person detection worker started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Bool("rabbitmq", rmqConsumer != nil),
		zap.Bool("nats", cfg.NATSURL != ""),
	)

	if rmqConsumer != nil {
		if err := rmqConsumer.Start(ctx); err != nil {
			log.Error("consumer error", zap.Error(err))
		}
	} else {
		<-ctx.Done()
	}

	// Shutdown: stop intake first, then let in-flight runs finish.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	apiSrv.Shutdown(httpCtx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer waitCancel()
	if err := supervisor.Wait(waitCtx); err != nil {
		log.Warn("runs still active at shutdown", zap.Int("active", len(supervisor.Active())), zap.Error(err))
	}
	tracker.Reset()

	metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer metricsCancel()
	metricsSrv.Shutdown(metricsCtx)

	log.Info("person detection worker stopped")
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.DetectionStore, port.VideoRepository, func()) {
	if cfg.DBDriver == "sqlite" {
		store, err := sqlite.Open(cfg.SQLitePath)
		fatalOnErr(err, "open sqlite")
		log.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return store, store, func() { store.Close() }
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}
	return postgres.NewDetectionRepository(pool), postgres.NewVideoRepository(pool), pool.Close
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
