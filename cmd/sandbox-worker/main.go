package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dsajudge/internal/common/mq"
	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/sandbox"
	"dsajudge/internal/judge/sandbox/synth"
	"dsajudge/internal/judge/worker"
	"dsajudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/sandbox_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Requests normally carry their problem inline; the catalog is a fallback
	// for requests that only name one.
	var problems worker.ProblemSource
	if appCfg.Catalog.Path != "" || appCfg.Catalog.Key != "" {
		var objStorage storage.ObjectStorage
		if appCfg.MinIO.Endpoint != "" {
			minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
			if err != nil {
				logger.Error(ctx, "init minio failed", zap.Error(err))
				return
			}
			objStorage = minioStorage
		}
		loaded, err := catalog.Load(ctx, appCfg.Catalog, objStorage)
		if err != nil {
			logger.Error(ctx, "load problem catalog failed", zap.Error(err))
			return
		}
		logger.Info(ctx, "problem catalog loaded", zap.Int("problems", loaded.Len()), zap.String("checksum", loaded.Checksum()))
		problems = loaded
	}

	host := sandbox.NewHost(sandbox.Config{
		Limits:   appCfg.Sandbox.Limits,
		Types:    synth.NewTypeRegistry(appCfg.Sandbox.Primitives...),
		Reporter: sandbox.CaseReporterFunc(logCase),
	})
	runWorker, err := worker.New(host, problems)
	if err != nil {
		logger.Error(ctx, "init worker failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(ctx, "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	queueCfg := appCfg.Worker.Queue
	queueCfg.Limiter = mq.NewTokenLimiter(appCfg.Worker.PoolSize)
	if _, err := worker.NewQueueConsumer(ctx, runWorker, mqClient, queueCfg); err != nil {
		logger.Error(ctx, "subscribe run requests failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "sandbox worker started",
		zap.String("topic", queueCfg.RequestTopic),
		zap.String("group", queueCfg.ConsumerGroup),
		zap.Int("pool_size", appCfg.Worker.PoolSize),
	)

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")
	if err := mqClient.Stop(); err != nil {
		logger.Error(context.Background(), "stop kafka consumer failed", zap.Error(err))
	}
}

func logCase(ctx context.Context, report sandbox.CaseReport) {
	logger.Debug(ctx, "test case finished",
		zap.String("problem_id", report.ProblemID),
		zap.Int("case", report.Index+1),
		zap.Int("total", report.Total),
		zap.Bool("pass", report.Result.Pass),
	)
}
