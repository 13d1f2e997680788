package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"dsajudge/internal/common/cache"
	"dsajudge/internal/common/mq"
	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/repository"
	"dsajudge/internal/judge/sandbox/engine"
	"dsajudge/internal/judge/worker"
	"dsajudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRunTimeout      = 30 * time.Second
	defaultDraftTTL        = 7 * 24 * time.Hour
	defaultQuotaWindow     = time.Minute
)

// Worker modes.
const (
	workerModeInline = "inline"
	workerModePool   = "pool"
	workerModeKafka  = "kafka"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
}

// SandboxConfig holds interpreter limits and extra primitive type names.
type SandboxConfig struct {
	engine.Limits `yaml:",inline"`
	Primitives    []string `yaml:"primitives"`
}

// WorkerConfig selects where runs execute.
type WorkerConfig struct {
	// Mode is inline, pool or kafka.
	Mode      string             `yaml:"mode"`
	PoolSize  int                `yaml:"poolSize"`
	QueueSize int                `yaml:"queueSize"`
	Queue     worker.QueueConfig `yaml:"queue"`
}

// DraftConfig holds draft persistence and run quota settings.
type DraftConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TTL         time.Duration `yaml:"ttl"`
	MaxBytes    int           `yaml:"maxBytes"`
	QuotaLimit  int64         `yaml:"quotaLimit"`
	QuotaWindow time.Duration `yaml:"quotaWindow"`
}

// RunConfig holds run request settings.
type RunConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxCodeBytes int           `yaml:"maxCodeBytes"`
	// EventsTopic, when set, receives one event per finished run.
	EventsTopic  string        `yaml:"eventsTopic"`
	EventTimeout time.Duration `yaml:"eventTimeout"`
}

// AppConfig holds sandbox-service config.
type AppConfig struct {
	Server  ServerConfig        `yaml:"server"`
	Logger  logger.Config       `yaml:"logger"`
	Catalog catalog.Config      `yaml:"catalog"`
	Sandbox SandboxConfig       `yaml:"sandbox"`
	Worker  WorkerConfig        `yaml:"worker"`
	Kafka   KafkaConfig         `yaml:"kafka"`
	Redis   cache.RedisConfig   `yaml:"redis"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
	Draft   DraftConfig         `yaml:"draft"`
	Run     RunConfig           `yaml:"run"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Catalog.Path == "" && cfg.Catalog.Key == "" {
		return nil, fmt.Errorf("catalog path or key is required")
	}
	if cfg.Catalog.Key != "" && cfg.Catalog.Bucket == "" {
		cfg.Catalog.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Logger.Service == "" {
		cfg.Logger.Service = "sandbox-service"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	cfg.Sandbox.Limits = cfg.Sandbox.Limits.WithDefaults()

	cfg.Worker.Mode = strings.ToLower(strings.TrimSpace(cfg.Worker.Mode))
	if cfg.Worker.Mode == "" {
		cfg.Worker.Mode = workerModePool
	}
	switch cfg.Worker.Mode {
	case workerModeInline, workerModePool:
	case workerModeKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers are required in kafka worker mode")
		}
		if cfg.Worker.Queue.RequestTopic == "" {
			cfg.Worker.Queue.RequestTopic = "sandbox.run.request"
		}
		if cfg.Worker.Queue.ReplyTopic == "" {
			cfg.Worker.Queue.ReplyTopic = "sandbox.run.reply"
		}
	default:
		return nil, fmt.Errorf("unknown worker mode %q", cfg.Worker.Mode)
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = cfg.Worker.PoolSize * 4
	}

	if cfg.Draft.Enabled || cfg.Draft.QuotaLimit > 0 {
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("redis addr is required for drafts and quota")
		}
		applyRedisDefaults(&cfg.Redis)
	}
	if cfg.Draft.TTL == 0 {
		cfg.Draft.TTL = defaultDraftTTL
	}
	if cfg.Draft.MaxBytes <= 0 {
		cfg.Draft.MaxBytes = repository.DefaultMaxDraftBytes
	}
	if cfg.Draft.QuotaWindow == 0 {
		cfg.Draft.QuotaWindow = defaultQuotaWindow
	}

	if cfg.Run.Timeout == 0 {
		cfg.Run.Timeout = defaultRunTimeout
	}
	if cfg.Run.EventsTopic != "" && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required for run events")
	}
	return &cfg, nil
}

// needsKafka reports whether any component publishes or consumes through Kafka.
func (c *AppConfig) needsKafka() bool {
	return c.Worker.Mode == workerModeKafka || c.Run.EventsTopic != ""
}

// needsRedis reports whether drafts or quota are configured.
func (c *AppConfig) needsRedis() bool {
	return c.Draft.Enabled || c.Draft.QuotaLimit > 0
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
