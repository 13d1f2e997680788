package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"dsajudge/internal/common/mq"
	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/sandbox/engine"
	"dsajudge/internal/judge/worker"
	"dsajudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

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

// WorkerConfig holds consumer settings.
type WorkerConfig struct {
	// PoolSize bounds runs executing at once.
	PoolSize int                `yaml:"poolSize"`
	Queue    worker.QueueConfig `yaml:"queue"`
}

// AppConfig holds sandbox-worker config.
type AppConfig struct {
	Logger  logger.Config       `yaml:"logger"`
	Catalog catalog.Config      `yaml:"catalog"`
	Sandbox SandboxConfig       `yaml:"sandbox"`
	Worker  WorkerConfig        `yaml:"worker"`
	Kafka   KafkaConfig         `yaml:"kafka"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Catalog.Key != "" && cfg.Catalog.Bucket == "" {
		cfg.Catalog.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Logger.Service == "" {
		cfg.Logger.Service = "sandbox-worker"
	}
	cfg.Sandbox.Limits = cfg.Sandbox.Limits.WithDefaults()
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Worker.Queue.RequestTopic == "" {
		cfg.Worker.Queue.RequestTopic = "sandbox.run.request"
	}
	if cfg.Worker.Queue.ReplyTopic == "" {
		cfg.Worker.Queue.ReplyTopic = "sandbox.run.reply"
	}
	if cfg.Worker.Queue.ConsumerGroup == "" {
		cfg.Worker.Queue.ConsumerGroup = "sandbox-worker"
	}
	if cfg.Worker.Queue.Concurrency <= 0 {
		cfg.Worker.Queue.Concurrency = cfg.Worker.PoolSize
	}
	return &cfg, nil
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
	switch strings.ToLower(k.Compression) {
	case "gzip":
		cfg.Compression = kafka.Gzip
	case "snappy":
		cfg.Compression = kafka.Snappy
	case "lz4":
		cfg.Compression = kafka.Lz4
	case "zstd":
		cfg.Compression = kafka.Zstd
	}
	return cfg
}
