package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dsajudge/internal/common/cache"
	commonmw "dsajudge/internal/common/http/middleware"
	"dsajudge/internal/common/mq"
	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/controller"
	"dsajudge/internal/judge/repository"
	"dsajudge/internal/judge/sandbox"
	"dsajudge/internal/judge/sandbox/synth"
	"dsajudge/internal/judge/service"
	"dsajudge/internal/judge/worker"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/logger"
	"dsajudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultConfigPath    = "configs/sandbox_service.yaml"
	defaultHealthTimeout = 2 * time.Second
)

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

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(rootCtx, "init minio failed", zap.Error(err))
			return
		}
		objStorage = minioStorage
	}

	problems, err := catalog.Load(rootCtx, appCfg.Catalog, objStorage)
	if err != nil {
		logger.Error(rootCtx, "load problem catalog failed", zap.Error(err))
		return
	}
	logger.Info(rootCtx, "problem catalog loaded", zap.Int("problems", problems.Len()), zap.String("checksum", problems.Checksum()))

	host := sandbox.NewHost(sandbox.Config{
		Limits: appCfg.Sandbox.Limits,
		Types:  synth.NewTypeRegistry(appCfg.Sandbox.Primitives...),
	})

	svcCfg := service.Config{
		Catalog:      problems,
		Starter:      host.Synthesizer(),
		MaxCodeBytes: appCfg.Run.MaxCodeBytes,
		RunTimeout:   appCfg.Run.Timeout,
		EventTimeout: appCfg.Run.EventTimeout,
	}

	checks := map[string]func(context.Context) error{}
	var mqClient *mq.KafkaQueue
	if appCfg.needsKafka() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(rootCtx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		checks["kafka"] = mqClient.Ping
	}

	switch appCfg.Worker.Mode {
	case workerModeInline:
		svcCfg.Runner = host
	case workerModePool:
		runWorker, err := worker.New(host, problems)
		if err != nil {
			logger.Error(rootCtx, "init worker failed", zap.Error(err))
			return
		}
		pool := worker.NewPool(runWorker, appCfg.Worker.PoolSize, appCfg.Worker.QueueSize)
		pool.Start(rootCtx)
		defer pool.Close()
		client, err := worker.NewClient(pool)
		if err != nil {
			logger.Error(rootCtx, "init worker client failed", zap.Error(err))
			return
		}
		defer client.Close()
		svcCfg.Submitter = client
	case workerModeKafka:
		transport, err := worker.NewQueueTransport(rootCtx, mqClient, appCfg.Worker.Queue)
		if err != nil {
			logger.Error(rootCtx, "init worker transport failed", zap.Error(err))
			return
		}
		client, err := worker.NewClient(transport)
		if err != nil {
			logger.Error(rootCtx, "init worker client failed", zap.Error(err))
			return
		}
		defer client.Close()
		svcCfg.Submitter = client
	}

	if appCfg.needsRedis() {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(rootCtx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		checks["redis"] = redisCache.Ping
		if appCfg.Draft.Enabled {
			svcCfg.Drafts = repository.NewDraftRepository(redisCache, appCfg.Draft.TTL, appCfg.Draft.MaxBytes)
		}
		if appCfg.Draft.QuotaLimit > 0 {
			svcCfg.Quota = repository.NewRunQuota(redisCache, appCfg.Draft.QuotaLimit, appCfg.Draft.QuotaWindow)
		}
	}
	if appCfg.Run.EventsTopic != "" {
		svcCfg.Events = repository.NewMQRunEventPublisher(mqClient, appCfg.Run.EventsTopic)
	}

	sandboxSvc, err := service.NewService(svcCfg)
	if err != nil {
		logger.Error(rootCtx, "init sandbox service failed", zap.Error(err))
		return
	}

	if mqClient != nil {
		if err := mqClient.Start(); err != nil {
			logger.Error(rootCtx, "start kafka consumer failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	}

	httpServer := buildHTTPServer(appCfg.Server, sandboxSvc, problems, checks)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(rootCtx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(rootCtx, "sandbox http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("worker_mode", appCfg.Worker.Mode),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(rootCtx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(rootCtx, "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(rootCtx, "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, sandboxSvc *service.Service, problems *catalog.Catalog, checks map[string]func(context.Context) error) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLog())

	router.GET("/healthz", healthHandler(problems, checks))

	api := router.Group("/api/v1/problems")
	controller.NewSandboxController(sandboxSvc).Register(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(problems *catalog.Catalog, checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultHealthTimeout)
		defer cancel()
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn(ctx, "health check failed", zap.String("dependency", name), zap.Error(err))
				response.ErrorWithCode(c, appErr.ServiceUnavailable, name+" is unavailable")
				return
			}
			deps[name] = "ok"
		}
		response.Success(c, gin.H{"status": "ok", "problems": problems.Len(), "checksum": problems.Checksum(), "dependencies": deps})
	}
}
