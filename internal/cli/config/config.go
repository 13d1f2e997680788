package config

import (
	"fmt"
	"os"

	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/sandbox/engine"
	"dsajudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCatalogPath = "configs/problems.yaml"
	DefaultHistoryFile = "/tmp/dsajudge_history"
)

// Config holds CLI configuration.
type Config struct {
	Catalog    catalog.Config      `yaml:"catalog"`
	Sandbox    engine.Limits       `yaml:"sandbox"`
	Primitives []string            `yaml:"primitives"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Logger     logger.Config       `yaml:"logger"`
	// HistoryFile keeps readline history; "-" disables it.
	HistoryFile string `yaml:"historyFile"`
	PrettyJSON  *bool  `yaml:"prettyJSON"`
}

// Load reads path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file failed: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Catalog.Path == "" && cfg.Catalog.Key == "" {
		cfg.Catalog.Path = DefaultCatalogPath
	}
	if cfg.Catalog.Key != "" && cfg.Catalog.Bucket == "" {
		cfg.Catalog.Bucket = cfg.MinIO.Bucket
	}
	cfg.Sandbox = cfg.Sandbox.WithDefaults()
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.HistoryFile == "-" {
		cfg.HistoryFile = ""
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "warn"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
}
